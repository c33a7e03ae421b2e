package dto

import "time"

// PositionRequest is one fix reported by a device. Error marks a failed fix
// (for example permission denied) and makes the coordinates optional.
type PositionRequest struct {
	UserID    string     `json:"user_id"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
	Accuracy  *float64   `json:"accuracy"`
	Error     string     `json:"error"`
}

type PositionResponse struct {
	Delivered int `json:"delivered"`
}

type NearbyResponse struct {
	UserIDs []string `json:"user_ids"`
}
