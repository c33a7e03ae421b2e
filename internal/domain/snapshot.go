package domain

import "time"

// SnapshotVersion tags serialized snapshots so older caches stay readable.
const SnapshotVersion = 1

// RouteProgressSnapshot is a complete copy of a route's progression state.
// While active, 0 <= CurrentIndex < len(Route.Stops) and
// Totals.CompletedCount == len(Completed).
type RouteProgressSnapshot struct {
	UserID            string                 `json:"user_id"`
	Route             Route                  `json:"route"`
	CurrentIndex      int                    `json:"current_index"`
	IsActive          bool                   `json:"is_active"`
	Visit             VisitSessionState      `json:"visit"`
	Completed         []CompletedVisitRecord `json:"completed"`
	Totals            RouteTotals            `json:"totals"`
	LegStartTime      *time.Time             `json:"leg_start_time,omitempty"`
	LastTravelMinutes int                    `json:"last_travel_minutes"`
	UpdatedAt         time.Time              `json:"updated_at"`

	// Revision orders snapshots taken from one in-process controller.
	// It is not persisted.
	Revision uint64 `json:"-"`
}

// CurrentStop returns the stop being travelled to or worked at.
func (s RouteProgressSnapshot) CurrentStop() (Stop, bool) {
	if !s.IsActive || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Route.Stops) {
		return Stop{}, false
	}
	return s.Route.Stops[s.CurrentIndex], true
}

// RouteLoadKind tags the outcome of loading progress from the Status Store.
type RouteLoadKind int

const (
	NoActiveRoute RouteLoadKind = iota
	ActiveRoute
	LoadFailed
	// LoadPending: local progress applied, Status Store not read yet.
	LoadPending
)

func (k RouteLoadKind) String() string {
	switch k {
	case NoActiveRoute:
		return "no_active_route"
	case ActiveRoute:
		return "active_route"
	case LoadFailed:
		return "load_failed"
	case LoadPending:
		return "pending"
	default:
		return "unknown"
	}
}

// RouteLoadResult is NoActiveRoute, ActiveRoute(Snapshot), LoadFailed(Err)
// or LoadPending. On LoadFailed and LoadPending, Snapshot holds the locally
// cached progress if any was applied.
type RouteLoadResult struct {
	Kind     RouteLoadKind
	Snapshot *RouteProgressSnapshot
	Err      error
}
