package cache

import (
	"context"
	"database/sql"
	"errors"
	"field-visit-service/internal/domain"
	"fmt"
)

// addressKeys maps each normalized cache key to the spellings the caller
// used for it. Blank addresses are dropped.
func addressKeys(addresses []string) (map[string][]string, []any) {
	spellings := make(map[string][]string, len(addresses))
	keys := make([]any, 0, len(addresses))
	for _, a := range addresses {
		key := domain.NormalizeAddress(a)
		if key == "" {
			continue
		}
		if _, ok := spellings[key]; !ok {
			keys = append(keys, key)
		}
		spellings[key] = append(spellings[key], a)
	}
	return spellings, keys
}

// scanCoordinates reads (address, lon, lat) rows and reports each hit
// under every spelling that asked for it.
func scanCoordinates(rows *sql.Rows, spellings map[string][]string) (map[string]domain.Coordinates, error) {
	defer rows.Close()

	out := make(map[string]domain.Coordinates, len(spellings))
	for rows.Next() {
		var key string
		var c domain.Coordinates
		if err := rows.Scan(&key, &c.Lon, &c.Lat); err != nil {
			return nil, fmt.Errorf("scan rows: %w", err)
		}
		for _, a := range spellings[key] {
			out[a] = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}

// putCoordinates upserts every result under its normalized key in one
// transaction. insert takes (address, lon, lat).
func putCoordinates(ctx context.Context, db *sql.DB, insert string, results map[string]domain.Coordinates) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("db prepare: %w", err)
	}
	defer stmt.Close()

	for addr, c := range results {
		key := domain.NormalizeAddress(addr)
		if key == "" {
			return errors.New("empty address key")
		}
		if _, err := stmt.ExecContext(ctx, key, c.Lon, c.Lat); err != nil {
			return fmt.Errorf("address=%q: %w", key, err)
		}
	}
	return tx.Commit()
}
