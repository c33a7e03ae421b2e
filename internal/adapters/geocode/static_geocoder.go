package geocode

import (
	"context"
	"field-visit-service/internal/domain"
	"fmt"
)

// StaticGeocoder resolves addresses from a fixed table.
// It backs local runs without an ORS key and tests.
type StaticGeocoder struct {
	m map[string]domain.Coordinates
}

func NewStaticGeocoder(entries map[string]domain.Coordinates) *StaticGeocoder {
	m := make(map[string]domain.Coordinates, len(entries))
	for addr, c := range entries {
		m[domain.NormalizeAddress(addr)] = c
	}
	return &StaticGeocoder{m: m}
}

func (g *StaticGeocoder) Geocode(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	out := make(map[string]domain.Coordinates, len(addresses))
	for _, a := range addresses {
		norm := domain.NormalizeAddress(a)
		c, ok := g.m[norm]
		if !ok {
			return nil, fmt.Errorf("missing address %q", a)
		}
		out[norm] = c
	}

	return out, nil
}
