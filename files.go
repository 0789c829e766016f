package identity

import (
	"context"
	"embed"
	"path"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsDir = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// ApplySchema executes the embedded migrations in lexical order. The
// statements are idempotent so applying on every boot is safe.
func ApplySchema(ctx context.Context, db *bun.DB) error {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to read embedded migrations")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		stmts, err := migrationsFS.ReadFile(path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to read migration").
				WithMetadata(map[string]any{"file": entry.Name()})
		}

		if _, err := db.ExecContext(ctx, string(stmts)); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to apply migration").
				WithMetadata(map[string]any{"file": entry.Name()})
		}
	}

	return nil
}
