package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"fmt"
	"os"
	"strings"
)

// Initialize the SQLite database schema.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	createSnapshotCacheQuery := `
	CREATE TABLE IF NOT EXISTS snapshot_cache (
		cache_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	createVisitLedgerQuery := `
	CREATE TABLE IF NOT EXISTS visit_ledger (
        record_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        route_id TEXT NOT NULL,
        stop_id TEXT NOT NULL,
        stop_name TEXT NOT NULL,
        departed_at INTEGER,
        arrived_at INTEGER NOT NULL,
        completed_at INTEGER NOT NULL,
        travel_minutes INTEGER NOT NULL,
        work_minutes INTEGER NOT NULL
    );
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        address TEXT PRIMARY KEY,
        lon REAL NOT NULL,
        lat REAL NOT NULL
    );
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_visit_ledger_user_completed
    ON visit_ledger(user_id, completed_at);
	`

	return execSchema(db, []string{
		createSnapshotCacheQuery,
		createVisitLedgerQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	})
}

// Initialize the Postgres schema used by the shared stores.
func InitPostgresSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init postgres schema: DB is nil")
	}

	createRouteStatusQuery := `
	CREATE TABLE IF NOT EXISTS route_status (
		user_id TEXT PRIMARY KEY,
		snapshot JSONB NOT NULL,
		is_active BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`

	createPositionStatusQuery := `
	CREATE TABLE IF NOT EXISTS position_status (
		user_id TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		accuracy DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ NOT NULL
	);
	`

	createVisitLedgerQuery := `
	CREATE TABLE IF NOT EXISTS visit_ledger (
        record_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        route_id TEXT NOT NULL,
        stop_id TEXT NOT NULL,
        stop_name TEXT NOT NULL,
        departed_at TIMESTAMPTZ,
        arrived_at TIMESTAMPTZ NOT NULL,
        completed_at TIMESTAMPTZ NOT NULL,
        travel_minutes INTEGER NOT NULL,
        work_minutes INTEGER NOT NULL
    );
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        address TEXT PRIMARY KEY,
        lon DOUBLE PRECISION NOT NULL,
        lat DOUBLE PRECISION NOT NULL
    );
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_visit_ledger_user_completed
    ON visit_ledger(user_id, completed_at);
	`

	return execSchema(db, []string{
		createRouteStatusQuery,
		createPositionStatusQuery,
		createVisitLedgerQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	})
}

func execSchema(db *sql.DB, statements []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Load completed visit records from a JSON file into a Work Ledger.
// Records are validated before any of them is written.
func ImportRecordsJSON(ctx context.Context, ledger ports.WorkLedger, jsonPath string) (int, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("import records: read %q: %w", jsonPath, err)
	}

	var data []domain.CompletedVisitRecord
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("import records: parse json: %w", err)
	}

	for i, rec := range data {
		if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" {
			return 0, fmt.Errorf("import records: record at index %d: id and user_id are required", i+1)
		}
		if rec.CompletedAt.Before(rec.ArrivedAt) {
			return 0, fmt.Errorf("import records: record %q: completed_at before arrived_at", rec.ID)
		}
	}

	for _, rec := range data {
		if err := ledger.Append(ctx, rec); err != nil {
			return 0, fmt.Errorf("import records: append %q: %w", rec.ID, err)
		}
	}

	return len(data), nil
}
