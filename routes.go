package identity

import (
	"strings"

	"github.com/goliatone/go-router"
)

// RouteTable is the static registry of every route the service serves.
// It answers two questions for the interceptor chain: is this
// method/path pair served at all, and if so does it require a
// credential. Classification never inspects headers or tokens, only
// the request line.
//
// Patterns are segment based: `*` and `:param` match exactly one
// segment, a trailing `**` matches any remainder including none, and
// method `*` matches every verb. Matching is case sensitive on the
// path and case insensitive on the method.
type RouteTable struct {
	entries []routeEntry
}

type routeEntry struct {
	method   string
	segments []string
	public   bool
}

func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Register adds a protected route.
func (t *RouteTable) Register(method, pattern string) *RouteTable {
	return t.add(method, pattern, false)
}

// RegisterPublic adds a route served without a credential.
func (t *RouteTable) RegisterPublic(method, pattern string) *RouteTable {
	return t.add(method, pattern, true)
}

func (t *RouteTable) add(method, pattern string, public bool) *RouteTable {
	t.entries = append(t.entries, routeEntry{
		method:   strings.ToUpper(strings.TrimSpace(method)),
		segments: splitPath(pattern),
		public:   public,
	})
	return t
}

// Matches reports whether any registered route serves the pair.
func (t *RouteTable) Matches(method, path string) bool {
	_, ok := t.lookup(method, path)
	return ok
}

// IsPublic reports whether the pair is served without a credential.
// Unknown routes are not public: they never make it past the existence
// gate, so the question does not arise.
func (t *RouteTable) IsPublic(method, path string) bool {
	entry, ok := t.lookup(method, path)
	return ok && entry.public
}

func (t *RouteTable) lookup(method, path string) (routeEntry, bool) {
	m := strings.ToUpper(strings.TrimSpace(method))
	segments := splitPath(path)

	for _, entry := range t.entries {
		if entry.method != "*" && entry.method != m {
			continue
		}
		if matchSegments(entry.segments, segments) {
			return entry, true
		}
	}

	return routeEntry{}, false
}

func matchSegments(pattern, path []string) bool {
	for i, p := range pattern {
		if p == "**" && i == len(pattern)-1 {
			return true
		}

		if i >= len(path) {
			return false
		}

		if p == "*" || strings.HasPrefix(p, ":") {
			continue
		}

		if p != path[i] {
			return false
		}
	}

	return len(pattern) == len(path)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// NotFoundGate rejects requests for unregistered method/path pairs
// before any authentication runs. An unknown route looks exactly the
// same to an anonymous caller and to an authenticated one.
func NotFoundGate(table *RouteTable) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if !table.Matches(ctx.Method(), ctx.Path()) {
				return ctx.JSON(router.StatusNotFound, map[string]string{
					"error": "Route not found",
				})
			}
			return ctx.Next()
		}
	}
}
