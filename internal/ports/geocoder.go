package ports

import (
	"context"
	"field-visit-service/internal/domain"
)

// Port: resolve free-form addresses into coordinates.
type Geocoder interface {
	// Return coordinates keyed by normalized address.
	Geocode(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
}
