package dto

import "time"

type StopRequest struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Latitude   *float64          `json:"latitude"`
	Longitude  *float64          `json:"longitude"`
	Attributes map[string]string `json:"attributes"`
}

type StartRouteRequest struct {
	UserID    string        `json:"user_id"`
	RouteID   string        `json:"route_id"`
	StartTime *time.Time    `json:"start_time"`
	Stops     []StopRequest `json:"stops"`
}

// TransitionRequest drives arrive/complete/cancel/clear. At defaults to now.
type TransitionRequest struct {
	UserID string     `json:"user_id"`
	At     *time.Time `json:"at"`
}

type StopResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Address    string            `json:"address,omitempty"`
	Latitude   float64           `json:"latitude"`
	Longitude  float64           `json:"longitude"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type VisitRecordResponse struct {
	ID            string     `json:"id"`
	RouteID       string     `json:"route_id"`
	StopID        string     `json:"stop_id"`
	StopName      string     `json:"stop_name"`
	DepartedAt    *time.Time `json:"departed_at"`
	ArrivedAt     time.Time  `json:"arrived_at"`
	CompletedAt   time.Time  `json:"completed_at"`
	TravelMinutes int        `json:"travel_minutes"`
	WorkMinutes   int        `json:"work_minutes"`
}

type TotalsResponse struct {
	TravelMinutes  int `json:"travel_minutes"`
	WorkMinutes    int `json:"work_minutes"`
	CompletedCount int `json:"completed_count"`
}

type RouteStatusResponse struct {
	UserID            string                `json:"user_id"`
	RouteID           string                `json:"route_id,omitempty"`
	IsActive          bool                  `json:"is_active"`
	CurrentIndex      int                   `json:"current_index"`
	StopCount         int                   `json:"stop_count"`
	CurrentStop       *StopResponse         `json:"current_stop"`
	State             string                `json:"state"`
	IsNearby          bool                  `json:"is_nearby"`
	DistanceMeters    *float64              `json:"distance_meters"`
	ArrivalTime       *time.Time            `json:"arrival_time"`
	WorkStartTime     *time.Time            `json:"work_start_time"`
	LegStartTime      *time.Time            `json:"leg_start_time"`
	LastTravelMinutes int                   `json:"last_travel_minutes"`
	Totals            TotalsResponse        `json:"totals"`
	Completed         []VisitRecordResponse `json:"completed"`
	UpdatedAt         *time.Time            `json:"updated_at"`
}

type ResumeResponse struct {
	Result string              `json:"result"`
	Error  string              `json:"error,omitempty"`
	Status RouteStatusResponse `json:"status"`
}

type ArriveResponse struct {
	TravelMinutes int                 `json:"travel_minutes"`
	Status        RouteStatusResponse `json:"status"`
}

type CompleteResponse struct {
	Record VisitRecordResponse `json:"record"`
	Status RouteStatusResponse `json:"status"`
}
