package route

import (
	"sort"
	"sync"
	"sync/atomic"
)

// =============================================================================
// Route Table
// =============================================================================

// Route binds a matcher rule to a backend target. Owner is the container the
// route was discovered on; routes live exactly as long as their owner stays
// registered.
type Route struct {
	Name   string // router name from the labels
	Rule   Rule
	Target Target
	Owner  string // container ID
}

// snapshot is the immutable view served to readers. Routes are pre-sorted by
// specificity so Resolve can take the first match.
type snapshot struct {
	routes []Route
}

// Table is the dynamic route table. Writers (the discovery watcher) are
// serialized by a mutex; readers (the ingress hot path) load an immutable
// snapshot without taking any lock.
type Table struct {
	mu      sync.Mutex          // serializes writers
	byOwner map[string][]Route  // authoritative state
	current atomic.Pointer[snapshot]
}

// NewTable creates an empty route table.
func NewTable() *Table {
	t := &Table{byOwner: make(map[string][]Route)}
	t.current.Store(&snapshot{})
	return t
}

// Upsert replaces all routes owned by the given container.
func (t *Table) Upsert(owner string, routes []Route) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range routes {
		routes[i].Owner = owner
	}
	t.byOwner[owner] = routes
	t.publish()
}

// Remove deregisters every route owned by the given container.
// Removing an unknown owner is a no-op.
func (t *Table) Remove(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byOwner[owner]; !ok {
		return
	}
	delete(t.byOwner, owner)
	t.publish()
}

// publish rebuilds and atomically swaps the reader snapshot.
// Callers must hold t.mu.
func (t *Table) publish() {
	var routes []Route
	for _, rs := range t.byOwner {
		routes = append(routes, rs...)
	}
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Rule.Specificity() != routes[j].Rule.Specificity() {
			return routes[i].Rule.Specificity() > routes[j].Rule.Specificity()
		}
		return routes[i].Name < routes[j].Name
	})
	t.current.Store(&snapshot{routes: routes})
}

// Resolve finds the target for a request. TLS selects between the secure and
// plain routers when both exist for a host; when only one posture is
// registered it serves both schemes.
//
// Lock-free: reads the current snapshot only.
func (t *Table) Resolve(host, path string, tls bool) (Target, error) {
	snap := t.current.Load()

	var fallback *Route
	for i := range snap.routes {
		r := &snap.routes[i]
		if !r.Rule.Matches(host, path) {
			continue
		}
		if r.Target.TLS == tls {
			if !r.Target.CanRoute() {
				return Target{}, NewUnavailableError(host)
			}
			return r.Target, nil
		}
		if fallback == nil {
			fallback = r
		}
	}

	if fallback != nil {
		if !fallback.Target.CanRoute() {
			return Target{}, NewUnavailableError(host)
		}
		return fallback.Target, nil
	}
	return Target{}, NewNotFoundError(host)
}

// Snapshot returns a copy of the current routes, sorted by specificity.
func (t *Table) Snapshot() []Route {
	snap := t.current.Load()
	out := make([]Route, len(snap.routes))
	copy(out, snap.routes)
	return out
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	return len(t.current.Load().routes)
}
