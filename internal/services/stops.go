package services

import (
	"context"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"fmt"
)

// PendingStop is a submitted stop. Located is false when the caller gave
// no coordinates; (0,0) is a valid location and says nothing about presence.
type PendingStop struct {
	Stop    domain.Stop
	Located bool
}

// ResolveStops fills in coordinates for stops that only carry an address.
// Located stops are passed through untouched.
func ResolveStops(ctx context.Context, geocoder ports.Geocoder, pending []PendingStop) ([]domain.Stop, error) {
	out := make([]domain.Stop, len(pending))

	var missing []string
	for i, p := range pending {
		out[i] = p.Stop
		if p.Located {
			continue
		}
		addr := domain.NormalizeAddress(p.Stop.Address)
		if addr == "" {
			return nil, fmt.Errorf("resolve stops: stop %q: %w", p.Stop.ID, domain.ErrMissingLocation)
		}
		missing = append(missing, addr)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if geocoder == nil {
		return nil, fmt.Errorf("resolve stops: no geocoder configured: %w", domain.ErrMissingLocation)
	}

	coords, err := geocoder.Geocode(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve stops: %w", err)
	}

	for i, p := range pending {
		if p.Located {
			continue
		}
		c, ok := coords[domain.NormalizeAddress(p.Stop.Address)]
		if !ok {
			return nil, fmt.Errorf("resolve stops: stop %q address %q: %w", p.Stop.ID, p.Stop.Address, domain.ErrMissingLocation)
		}
		out[i].Location = c
	}

	return out, nil
}
