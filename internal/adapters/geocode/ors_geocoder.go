package geocode

import (
	"context"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Cache persists address -> coordinate lookups between runs.
type Cache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}

// ORSGeocoder implements the Geocoder port using OpenRouteService.
//
// Addresses are normalized, looked up in the cache, and only misses are sent
// to the ORS search API (with retry/backoff). Fresh results are written back
// to the cache; a failed cache write is logged and does not fail the call.
//
// The geocoder is safe for concurrent use.
type ORSGeocoder struct {
	session *http.Client
	apiKey  string
	baseURL string
	country string
	cache   Cache
}

func NewORSGeocoder(apiKey, country string, cache Cache) (*ORSGeocoder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	return &ORSGeocoder{
		session: &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: "https://api.openrouteservice.org",
		country: country,
		cache:   cache,
	}, nil
}

// Geocode resolves every address or fails. Results are keyed by the
// normalized address.
func (o *ORSGeocoder) Geocode(ctx context.Context, addresses []string) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	needed := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		norm := domain.NormalizeAddress(a)
		if norm == "" {
			return nil, errors.New("geocode: address must be non-empty")
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		needed = append(needed, norm)
	}

	hits := make(map[string]domain.Coordinates)
	if o.cache != nil && len(needed) > 0 {
		hits, err = o.cache.GetMany(ctx, needed)
		if err != nil {
			return nil, fmt.Errorf("ORS get geocode cache: %w", err)
		}
	}

	misses := make([]string, 0, len(needed))
	for _, a := range needed {
		if _, ok := hits[a]; !ok {
			misses = append(misses, a)
		}
	}

	fresh := make(map[string]domain.Coordinates)
	if len(misses) > 0 {
		fresh, err = o.searchMany(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("retrieving coordinates: %w", err)
		}
	}

	if o.cache != nil && len(fresh) > 0 {
		if err := o.cache.PutMany(ctx, fresh); err != nil {
			log.Printf("geocode cache write failed: %v", err)
		}
	}

	out := make(map[string]domain.Coordinates, len(hits)+len(fresh))
	for k, v := range hits {
		out[k] = v
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out, nil
}
