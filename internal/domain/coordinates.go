package domain

import (
	"strings"
	"time"
)

// NormalizeAddress collapses whitespace so address keys are consistent
// across the geocoder, its caches and submitted stops.
func NormalizeAddress(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Immutable geographic coordinates in degrees.
type Coordinates struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// PositionSample is a single fix emitted by a Position Source.
type PositionSample struct {
	Coordinates
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
}

// PositionUpdate carries either a sample or the reason no sample is available.
// Both an error and a nil sample mean "unknown distance" to consumers.
type PositionUpdate struct {
	Sample *PositionSample
	Err    error
}
