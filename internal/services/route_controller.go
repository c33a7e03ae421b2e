package services

import (
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RouteController owns the ordered stop list of one user's active trip and
// composes a GeofenceTracker and a VisitSession for the current stop.
//
// It is the only writer of its state; every operation takes the mutex, so
// no two operations for the same route are ever in flight together.
// Invalid transitions are no-ops reported through the return value.
type RouteController struct {
	mu sync.Mutex

	userID string
	clock  ports.Clock
	newID  func() string

	route             domain.Route
	currentIndex      int
	isActive          bool
	legStartTime      *time.Time
	lastTravelMinutes int
	completed         []domain.CompletedVisitRecord
	totals            domain.RouteTotals
	updatedAt         time.Time
	revision          uint64

	geofence *GeofenceTracker
	session  *VisitSession
}

func NewRouteController(userID string, radiusMeters float64, clock ports.Clock) *RouteController {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &RouteController{
		userID:   userID,
		clock:    clock,
		newID:    uuid.NewString,
		geofence: NewGeofenceTracker(radiusMeters),
		session:  NewVisitSession(),
	}
}

func (c *RouteController) UserID() string { return c.userID }

// Start begins a trip at the first stop. It returns false for an empty
// route or when another route is still active; the caller must Cancel first.
func (c *RouteController) Start(route domain.Route, startTime time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if route.Len() == 0 || c.isActive {
		return false
	}

	stops := make([]domain.Stop, len(route.Stops))
	copy(stops, route.Stops)

	c.route = domain.Route{ID: route.ID, Stops: stops}
	c.currentIndex = 0
	c.isActive = true
	leg := startTime
	c.legStartTime = &leg
	c.lastTravelMinutes = 0
	c.completed = nil
	c.totals = domain.RouteTotals{}
	c.retarget()
	c.updatedAt = startTime
	c.revision++

	return true
}

// ConfirmArrival starts work at the current stop and books the travel time
// of the leg, rounded up to whole minutes. It returns false when no arrival
// has been detected yet.
func (c *RouteController) ConfirmArrival(now time.Time) (travelMinutes int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive || !c.session.ConfirmArrival(now) {
		return 0, false
	}

	if c.legStartTime != nil {
		travelMinutes = ceilMinutes(now.Sub(*c.legStartTime))
	}
	c.lastTravelMinutes = travelMinutes
	c.totals.TravelMinutes += travelMinutes
	c.updatedAt = now
	c.revision++

	return travelMinutes, true
}

// CompleteCurrentStop closes the current visit, records it, and moves on to
// the next stop or finishes the route. It returns nil when the current visit
// is not WORKING.
func (c *RouteController) CompleteCurrentStop(now time.Time) *domain.CompletedVisitRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return nil
	}

	arrival := c.session.ArrivalTime()
	if arrival == nil {
		return nil
	}
	arrivedAt := *arrival

	res := c.session.CompleteWork(now)
	if res == nil {
		return nil
	}

	stop := c.route.Stops[c.currentIndex]
	rec := domain.CompletedVisitRecord{
		ID:            c.newID(),
		UserID:        c.userID,
		RouteID:       c.route.ID,
		StopID:        stop.ID,
		StopName:      stop.Name,
		DepartedAt:    copyTime(c.legStartTime),
		ArrivedAt:     arrivedAt,
		CompletedAt:   now,
		TravelMinutes: c.lastTravelMinutes,
		WorkMinutes:   res.DurationMinutes,
	}

	c.completed = append(c.completed, rec)
	c.totals.WorkMinutes += rec.WorkMinutes
	c.totals.CompletedCount++
	c.lastTravelMinutes = 0
	c.updatedAt = now
	c.revision++

	if c.currentIndex < c.route.Len()-1 {
		c.currentIndex++
		leg := now
		c.legStartTime = &leg
		c.retarget()
	} else {
		c.isActive = false
		c.legStartTime = nil
		c.session.Reset()
		c.geofence.Reset()
	}

	return &rec
}

// Cancel stops the active route. Completed records and totals are kept.
func (c *RouteController) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return false
	}

	c.isActive = false
	c.legStartTime = nil
	c.lastTravelMinutes = 0
	c.session.Reset()
	c.geofence.Reset()
	c.updatedAt = c.clock.Now()
	c.revision++

	return true
}

// ObservePosition feeds a sample (or nil for "no fix") to the geofence and
// reports whether it produced the arrival event for the current stop.
func (c *RouteController) ObservePosition(sample *domain.PositionSample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return false
	}

	wasNearby := c.session.IsNearby()
	arrived := c.geofence.Observe(sample, c.clock.Now())
	c.session.SetNearby(c.geofence.IsNearby())
	if arrived {
		c.session.MarkArrived(*c.geofence.ArrivalTime())
		c.updatedAt = *c.geofence.ArrivalTime()
	}
	if arrived || wasNearby != c.session.IsNearby() {
		c.revision++
	}

	return arrived
}

// Snapshot returns a deep copy of the current progression state.
func (c *RouteController) Snapshot() domain.RouteProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *RouteController) snapshotLocked() domain.RouteProgressSnapshot {
	stops := make([]domain.Stop, len(c.route.Stops))
	copy(stops, c.route.Stops)
	completed := make([]domain.CompletedVisitRecord, len(c.completed))
	copy(completed, c.completed)

	return domain.RouteProgressSnapshot{
		UserID:            c.userID,
		Route:             domain.Route{ID: c.route.ID, Stops: stops},
		CurrentIndex:      c.currentIndex,
		IsActive:          c.isActive,
		Visit:             c.session.Snapshot(),
		Completed:         completed,
		Totals:            c.totals,
		LegStartTime:      copyTime(c.legStartTime),
		LastTravelMinutes: c.lastTravelMinutes,
		UpdatedAt:         c.updatedAt,
		Revision:          c.revision,
	}
}

// ProgressView is the snapshot plus live geofence readings.
type ProgressView struct {
	Snapshot       domain.RouteProgressSnapshot
	State          domain.VisitState
	DistanceMeters *float64
	IsNearby       bool
}

func (c *RouteController) View() ProgressView {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := ProgressView{
		Snapshot: c.snapshotLocked(),
		State:    c.session.State(),
		IsNearby: c.geofence.IsNearby(),
	}
	if d, ok := c.geofence.Distance(); ok {
		v.DistanceMeters = &d
	}
	return v
}

// IsActive reports whether a route is in progress.
func (c *RouteController) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isActive
}

// Restore replaces all state with snap. It returns false, leaving state
// untouched, when snap belongs to another user or violates its invariants.
func (c *RouteController) Restore(snap domain.RouteProgressSnapshot) bool {
	if !ValidSnapshot(snap, c.userID) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.restoreLocked(snap)
	return true
}

// Revision counts state changes; every transition and restore bumps it.
func (c *RouteController) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// ApplyIfUnchanged restores snap, or resets when snap is nil, only if no
// state change happened after revision since. It reports whether the state
// was replaced; false with a valid snap means a newer local transition won.
func (c *RouteController) ApplyIfUnchanged(snap *domain.RouteProgressSnapshot, since uint64) bool {
	if snap != nil && !ValidSnapshot(*snap, c.userID) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revision != since {
		return false
	}
	if snap == nil {
		c.resetLocked()
	} else {
		c.restoreLocked(*snap)
	}
	return true
}

func (c *RouteController) restoreLocked(snap domain.RouteProgressSnapshot) {
	c.revision++

	stops := make([]domain.Stop, len(snap.Route.Stops))
	copy(stops, snap.Route.Stops)
	completed := make([]domain.CompletedVisitRecord, len(snap.Completed))
	copy(completed, snap.Completed)

	c.route = domain.Route{ID: snap.Route.ID, Stops: stops}
	c.currentIndex = snap.CurrentIndex
	c.isActive = snap.IsActive
	c.legStartTime = copyTime(snap.LegStartTime)
	c.lastTravelMinutes = snap.LastTravelMinutes
	c.completed = completed
	c.totals = snap.Totals
	c.updatedAt = snap.UpdatedAt

	if !c.isActive {
		c.session.Reset()
		c.geofence.Reset()
		return
	}

	stop := &c.route.Stops[c.currentIndex]
	c.session.Restore(stop, snap.Visit)
	c.geofence.Restore(stop, c.session.ArrivalTime(), snap.Visit.IsNearby)
}

// Reset forgets everything, including completed history held in memory.
func (c *RouteController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *RouteController) resetLocked() {
	c.revision++
	c.route = domain.Route{}
	c.currentIndex = 0
	c.isActive = false
	c.legStartTime = nil
	c.lastTravelMinutes = 0
	c.completed = nil
	c.totals = domain.RouteTotals{}
	c.updatedAt = time.Time{}
	c.session.Reset()
	c.geofence.Reset()
}

func (c *RouteController) retarget() {
	stop := &c.route.Stops[c.currentIndex]
	c.session.SetTarget(stop)
	c.geofence.SetTarget(stop)
}

// ValidSnapshot checks ownership and the structural invariants of snap.
func ValidSnapshot(snap domain.RouteProgressSnapshot, userID string) bool {
	if snap.UserID != userID {
		return false
	}
	if snap.Totals.CompletedCount != len(snap.Completed) {
		return false
	}
	if snap.IsActive && (snap.CurrentIndex < 0 || snap.CurrentIndex >= len(snap.Route.Stops)) {
		return false
	}
	if snap.Visit.IsWorking && snap.Visit.ArrivalTime == nil {
		return false
	}
	if snap.Visit.WorkStartTime != nil && !snap.Visit.IsWorking {
		return false
	}
	return true
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
