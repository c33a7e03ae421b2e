package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SqliteSnapshotStore is the device-local key-value cache for serialized
// route progress. It implements the LocalSnapshotStore port.
type SqliteSnapshotStore struct {
	DB *sql.DB
}

func NewSqliteSnapshotStore(db *sql.DB) *SqliteSnapshotStore {
	return &SqliteSnapshotStore{DB: db}
}

func (s *SqliteSnapshotStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.DB == nil {
		return nil, false, errors.New("snapshot cache: db is nil")
	}

	var payload []byte
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM snapshot_cache WHERE cache_key = ?;`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot cache key=%q: %w", key, err)
	}
	return payload, true, nil
}

func (s *SqliteSnapshotStore) Put(ctx context.Context, key string, payload []byte) error {
	if s.DB == nil {
		return errors.New("snapshot cache: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("put snapshot cache: empty key")
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT OR REPLACE INTO snapshot_cache (
        cache_key,
        payload,
        updated_at
    )
    VALUES (?, ?, ?);
	`, key, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put snapshot cache key=%q: %w", key, err)
	}
	return nil
}

func (s *SqliteSnapshotStore) Delete(ctx context.Context, key string) error {
	if s.DB == nil {
		return errors.New("snapshot cache: db is nil")
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM snapshot_cache WHERE cache_key = ?;`, key); err != nil {
		return fmt.Errorf("delete snapshot cache key=%q: %w", key, err)
	}
	return nil
}
