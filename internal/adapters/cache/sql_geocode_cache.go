package cache

import (
	"context"
	"database/sql"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"fmt"
)

// SQLGeocodeCache is the Postgres-backed geocode cache shared by every
// device behind the server. Keys are normalized addresses.
type SQLGeocodeCache struct {
	DB *sql.DB
}

func NewSQLGeocodeCache(db *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db}
}

// GetMany returns the cached coordinates for addresses, keyed by the
// spelling the caller passed in. Misses are absent from the map.
func (s *SQLGeocodeCache) GetMany(ctx context.Context, addresses []string) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.cache.sql.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	spellings, keys := addressKeys(addresses)
	if len(keys) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	texts := make([]string, len(keys))
	for i, k := range keys {
		texts[i] = k.(string)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT address, lon, lat FROM geocode_cache WHERE address = ANY($1::text[]);`, texts)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: %w", err)
	}
	out, err := scanCoordinates(rows, spellings)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: %w", err)
	}
	return out, nil
}

func (s *SQLGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) (err error) {
	defer obs.Time(ctx, "geocode.cache.sql.PutMany")(&err)

	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(results) == 0 {
		return nil
	}

	err = putCoordinates(ctx, s.DB, `
	INSERT INTO geocode_cache (address, lon, lat)
	VALUES ($1, $2, $3)
	ON CONFLICT (address) DO UPDATE
	SET lon = EXCLUDED.lon, lat = EXCLUDED.lat;
	`, results)
	if err != nil {
		return fmt.Errorf("put geocode cache: %w", err)
	}
	return nil
}
