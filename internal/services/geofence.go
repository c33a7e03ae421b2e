package services

import (
	"field-visit-service/internal/domain"
	"time"
)

// DefaultGeofenceRadiusMeters is the proximity threshold used when none is configured.
const DefaultGeofenceRadiusMeters = 100.0

// GeofenceTracker turns position samples into a nearby/away flag and a
// one-shot arrival timestamp for a single target stop.
//
// Arrival is latched: moving back out of range clears IsNearby but never
// the arrival time. The tracker is not safe for concurrent use; the
// RouteController serializes access to it.
type GeofenceTracker struct {
	threshold   float64
	target      *domain.Stop
	isNearby    bool
	arrivalTime *time.Time
	distance    *float64
}

func NewGeofenceTracker(thresholdMeters float64) *GeofenceTracker {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultGeofenceRadiusMeters
	}
	return &GeofenceTracker{threshold: thresholdMeters}
}

// SetTarget changes the tracked stop and resets all state.
// A nil target makes the tracker idle.
func (g *GeofenceTracker) SetTarget(stop *domain.Stop) {
	g.Reset()
	if stop != nil {
		s := *stop
		g.target = &s
	}
}

// Reset clears the target and all derived state.
func (g *GeofenceTracker) Reset() {
	g.target = nil
	g.isNearby = false
	g.arrivalTime = nil
	g.distance = nil
}

// Observe processes one sample and reports whether it produced the arrival event.
// A nil sample (no fix or a source error) only forgets the last distance.
func (g *GeofenceTracker) Observe(sample *domain.PositionSample, now time.Time) bool {
	if g.target == nil {
		g.distance = nil
		return false
	}
	if sample == nil {
		g.distance = nil
		return false
	}

	d := domain.DistanceMeters(sample.Coordinates, g.target.Location)
	g.distance = &d

	within := d <= g.threshold
	if !within {
		g.isNearby = false
		return false
	}
	if g.isNearby {
		return false
	}

	g.isNearby = true
	if g.arrivalTime != nil {
		return false
	}

	at := now
	if !sample.Timestamp.IsZero() {
		at = sample.Timestamp
	}
	g.arrivalTime = &at
	return true
}

// Restore re-applies persisted state for the given target without emitting events.
func (g *GeofenceTracker) Restore(stop *domain.Stop, arrival *time.Time, nearby bool) {
	g.SetTarget(stop)
	if g.target == nil {
		return
	}
	g.isNearby = nearby
	if arrival != nil {
		at := *arrival
		g.arrivalTime = &at
	}
}

func (g *GeofenceTracker) Target() *domain.Stop { return g.target }

func (g *GeofenceTracker) IsNearby() bool { return g.isNearby }

func (g *GeofenceTracker) ArrivalTime() *time.Time { return g.arrivalTime }

func (g *GeofenceTracker) Threshold() float64 { return g.threshold }

// Distance returns the distance to the target from the last sample, if known.
func (g *GeofenceTracker) Distance() (float64, bool) {
	if g.distance == nil {
		return 0, false
	}
	return *g.distance, true
}
