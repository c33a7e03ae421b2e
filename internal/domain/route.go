package domain

import "time"

// Represents a single place a technician must visit.
// Stops are owned by the Route and are never mutated by tracking code.
type Stop struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Address    string            `json:"address,omitempty"`
	Location   Coordinates       `json:"location"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Represents the ordered list of stops for one trip.
type Route struct {
	ID    string `json:"id"`
	Stops []Stop `json:"stops"`
}

// Len returns the number of stops on the route.
func (r Route) Len() int { return len(r.Stops) }

// CompletedVisitRecord is appended to the Work Ledger exactly once per finished stop.
// DepartedAt is the start of the leg that led to the stop and may be unknown.
type CompletedVisitRecord struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	RouteID       string     `json:"route_id"`
	StopID        string     `json:"stop_id"`
	StopName      string     `json:"stop_name"`
	DepartedAt    *time.Time `json:"departed_at,omitempty"`
	ArrivedAt     time.Time  `json:"arrived_at"`
	CompletedAt   time.Time  `json:"completed_at"`
	TravelMinutes int        `json:"travel_minutes"`
	WorkMinutes   int        `json:"work_minutes"`
}

// Running totals kept alongside the completed records.
type RouteTotals struct {
	TravelMinutes  int `json:"travel_minutes"`
	WorkMinutes    int `json:"work_minutes"`
	CompletedCount int `json:"completed_count"`
}
