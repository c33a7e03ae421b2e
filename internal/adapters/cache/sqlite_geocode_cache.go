package cache

import (
	"context"
	"database/sql"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"fmt"
	"strings"
)

// SqliteGeocodeCache is the device-local geocode cache, so routes over
// previously seen addresses start without a geocoding round trip.
type SqliteGeocodeCache struct {
	DB *sql.DB
}

func NewSqliteGeocodeCache(db *sql.DB) *SqliteGeocodeCache {
	return &SqliteGeocodeCache{DB: db}
}

// GetMany returns the cached coordinates for addresses, keyed by the
// spelling the caller passed in. Misses are absent from the map.
func (s *SqliteGeocodeCache) GetMany(ctx context.Context, addresses []string) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.cache.sqlite.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	spellings, keys := addressKeys(addresses)
	if len(keys) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	// Only the placeholder list is interpolated; values stay bound.
	q := fmt.Sprintf(`SELECT address, lon, lat FROM geocode_cache WHERE address IN (%s);`,
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","))
	rows, err := s.DB.QueryContext(ctx, q, keys...)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: %w", err)
	}
	out, err := scanCoordinates(rows, spellings)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: %w", err)
	}
	return out, nil
}

func (s *SqliteGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) (err error) {
	defer obs.Time(ctx, "geocode.cache.sqlite.PutMany")(&err)

	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(results) == 0 {
		return nil
	}

	err = putCoordinates(ctx, s.DB,
		`INSERT OR REPLACE INTO geocode_cache (address, lon, lat) VALUES (?, ?, ?);`, results)
	if err != nil {
		return fmt.Errorf("put geocode cache: %w", err)
	}
	return nil
}
