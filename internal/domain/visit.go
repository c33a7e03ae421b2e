package domain

import "time"

// VisitState is the position of a Visit Session in its lifecycle.
type VisitState string

const (
	VisitAway    VisitState = "away"
	VisitNearby  VisitState = "nearby"
	VisitWorking VisitState = "working"
	VisitClosed  VisitState = "closed"
)

// VisitSessionState is the serializable form of a Visit Session.
// IsWorking implies ArrivalTime != nil; WorkStartTime != nil implies IsWorking.
type VisitSessionState struct {
	TargetStopID  string     `json:"target_stop_id,omitempty"`
	ArrivalTime   *time.Time `json:"arrival_time,omitempty"`
	IsNearby      bool       `json:"is_nearby"`
	IsWorking     bool       `json:"is_working"`
	WorkStartTime *time.Time `json:"work_start_time,omitempty"`
}

// WorkResult is returned when work at a stop is completed.
type WorkResult struct {
	DurationMinutes int
	StartTime       time.Time
}

// VisitEventKind names the notifications emitted while tracking.
type VisitEventKind string

const (
	EventRouteStarted   VisitEventKind = "route.started"
	EventArrived        VisitEventKind = "visit.arrived"
	EventWorkStarted    VisitEventKind = "visit.work_started"
	EventVisitCompleted VisitEventKind = "visit.completed"
	EventRouteFinished  VisitEventKind = "route.finished"
	EventRouteCancelled VisitEventKind = "route.cancelled"
)

// VisitEvent is published to observers (notifications, dashboards).
type VisitEvent struct {
	Kind       VisitEventKind        `json:"kind"`
	UserID     string                `json:"user_id"`
	RouteID    string                `json:"route_id,omitempty"`
	StopID     string                `json:"stop_id,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
	Record     *CompletedVisitRecord `json:"record,omitempty"`
}
