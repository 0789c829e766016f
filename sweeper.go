package identity

import (
	"context"
	"time"
)

// DefaultSweepInterval matches the monthly cadence of the reference
// cleanup job. The interval is policy, not correctness: verification
// only ever checks the expiration timestamp.
const DefaultSweepInterval = 30 * 24 * time.Hour

type expiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically removes expired validation tokens. It runs on
// its own goroutine and never blocks request serving: a sweep that
// races an in flight verification is harmless because verification
// checks the expiration timestamp, not the row's continued existence.
type Sweeper struct {
	store    expiredTokenDeleter
	interval time.Duration
	clock    Clock
	logger   Logger
}

// NewSweeper will create a new Sweeper
func NewSweeper(store expiredTokenDeleter) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		clock:    systemClock{},
		logger:   defLogger{},
	}
}

func (s *Sweeper) WithInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

func (s *Sweeper) WithClock(clock Clock) *Sweeper {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *Sweeper) WithLogger(logger Logger) *Sweeper {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Run sweeps on the configured interval until ctx is cancelled. Sweep
// failures are logged and the loop continues; a broken store never
// takes the process down.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("expired token sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce removes every token whose expiration has passed and
// returns the number of rows deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info("removed expired validation tokens", "count", removed)
	}

	return removed, nil
}
