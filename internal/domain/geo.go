package domain

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine distance between two coordinates.
func DistanceMeters(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// MinuteInterval is a half-open [Start, End) range of minutes within one day.
type MinuteInterval struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// MinutesOverlap sums the overlap between [startMin, endMin) and each interval.
// Intervals are expected not to overlap each other.
func MinutesOverlap(startMin, endMin int, intervals []MinuteInterval) int {
	if endMin <= startMin {
		return 0
	}

	total := 0
	for _, iv := range intervals {
		lo := max(startMin, iv.Start)
		hi := min(endMin, iv.End)
		if hi > lo {
			total += hi - lo
		}
	}

	return total
}
