package services

import (
	"field-visit-service/internal/domain"
	"math"
	"time"
)

// VisitSession is the per-stop state machine AWAY -> NEARBY -> WORKING -> CLOSED.
//
// AWAY -> NEARBY is driven by the geofence arrival event; NEARBY -> WORKING
// and WORKING -> CLOSED are manual. Completing resets the session so it is
// ready for the next target.
type VisitSession struct {
	target        *domain.Stop
	arrivalTime   *time.Time
	isNearby      bool
	isWorking     bool
	workStartTime *time.Time
	closed        bool
}

func NewVisitSession() *VisitSession {
	return &VisitSession{}
}

// SetTarget starts a fresh session for stop.
func (v *VisitSession) SetTarget(stop *domain.Stop) {
	v.Reset()
	if stop != nil {
		s := *stop
		v.target = &s
	}
}

// Reset discards all in-progress state without producing a record.
func (v *VisitSession) Reset() {
	*v = VisitSession{}
}

// State derives the lifecycle state from the session fields.
func (v *VisitSession) State() domain.VisitState {
	switch {
	case v.closed:
		return domain.VisitClosed
	case v.isWorking:
		return domain.VisitWorking
	case v.arrivalTime != nil:
		return domain.VisitNearby
	default:
		return domain.VisitAway
	}
}

// MarkArrived records the geofence arrival. Only the first arrival counts.
func (v *VisitSession) MarkArrived(at time.Time) {
	if v.target == nil || v.arrivalTime != nil {
		return
	}
	v.arrivalTime = &at
	v.isNearby = true
}

// SetNearby mirrors the live proximity flag without touching the arrival time.
func (v *VisitSession) SetNearby(nearby bool) {
	if v.target == nil {
		return
	}
	v.isNearby = nearby
}

// ConfirmArrival moves NEARBY -> WORKING. It returns false when no arrival
// was detected or work already started.
func (v *VisitSession) ConfirmArrival(now time.Time) bool {
	if v.target == nil || v.arrivalTime == nil || v.isWorking {
		return false
	}
	v.isWorking = true
	v.workStartTime = &now
	return true
}

// CompleteWork moves WORKING -> CLOSED and returns the rounded work duration.
// It returns nil and changes nothing when the session is not WORKING.
func (v *VisitSession) CompleteWork(now time.Time) *domain.WorkResult {
	if !v.isWorking || v.workStartTime == nil {
		return nil
	}

	start := *v.workStartTime
	res := &domain.WorkResult{
		DurationMinutes: roundMinutes(now.Sub(start)),
		StartTime:       start,
	}

	v.Reset()
	v.closed = true
	return res
}

func (v *VisitSession) Target() *domain.Stop      { return v.target }
func (v *VisitSession) ArrivalTime() *time.Time   { return v.arrivalTime }
func (v *VisitSession) WorkStartTime() *time.Time { return v.workStartTime }
func (v *VisitSession) IsWorking() bool           { return v.isWorking }
func (v *VisitSession) IsNearby() bool            { return v.isNearby }

// Snapshot returns the serializable state.
func (v *VisitSession) Snapshot() domain.VisitSessionState {
	st := domain.VisitSessionState{
		IsNearby:  v.isNearby,
		IsWorking: v.isWorking,
	}
	if v.target != nil {
		st.TargetStopID = v.target.ID
	}
	if v.arrivalTime != nil {
		at := *v.arrivalTime
		st.ArrivalTime = &at
	}
	if v.workStartTime != nil {
		ws := *v.workStartTime
		st.WorkStartTime = &ws
	}
	return st
}

// Restore applies persisted state for stop. Inconsistent combinations are
// repaired toward the earlier state rather than rejected.
func (v *VisitSession) Restore(stop *domain.Stop, st domain.VisitSessionState) {
	v.SetTarget(stop)
	if v.target == nil {
		return
	}
	if st.ArrivalTime != nil {
		at := *st.ArrivalTime
		v.arrivalTime = &at
	}
	v.isNearby = st.IsNearby
	if st.IsWorking && v.arrivalTime != nil && st.WorkStartTime != nil {
		ws := *st.WorkStartTime
		v.isWorking = true
		v.workStartTime = &ws
	}
}

// roundMinutes rounds half away from zero, clamping negatives to zero.
func roundMinutes(d time.Duration) int {
	m := int(math.Round(d.Minutes()))
	if m < 0 {
		return 0
	}
	return m
}

// ceilMinutes counts any partial minute as a full one, clamping negatives to zero.
func ceilMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 0 {
		return 0
	}
	return m
}
