package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"fmt"
)

// Postgres-backed implementation of the StatusStore port.
// One row per user holds the latest snapshot; writes are upserts.
type SQLStatusStore struct{ DB *sql.DB }

func NewSQLStatusStore(db *sql.DB) *SQLStatusStore {
	return &SQLStatusStore{DB: db}
}

func (s *SQLStatusStore) Write(ctx context.Context, userID string, snap domain.RouteProgressSnapshot) (err error) {
	defer obs.Time(ctx, "status.sql.Write")(&err)

	if s.DB == nil {
		return errors.New("sql status store: DB is nil")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("write status user=%s: encode snapshot: %w", userID, err)
	}

	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO route_status (user_id, snapshot, is_active, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id) DO UPDATE
	SET snapshot = EXCLUDED.snapshot,
		is_active = EXCLUDED.is_active,
		updated_at = EXCLUDED.updated_at;
	`, userID, payload, snap.IsActive, snap.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("write status user=%s: %w", userID, err)
	}
	return nil
}

func (s *SQLStatusStore) Read(ctx context.Context, userID string) (_ domain.RouteProgressSnapshot, _ bool, err error) {
	defer obs.Time(ctx, "status.sql.Read")(&err)

	if s.DB == nil {
		return domain.RouteProgressSnapshot{}, false, errors.New("sql status store: DB is nil")
	}

	var payload []byte
	err = s.DB.QueryRowContext(ctx, `SELECT snapshot FROM route_status WHERE user_id = $1;`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RouteProgressSnapshot{}, false, nil
	}
	if err != nil {
		return domain.RouteProgressSnapshot{}, false, fmt.Errorf("read status user=%s: %w", userID, err)
	}

	var snap domain.RouteProgressSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.RouteProgressSnapshot{}, false, fmt.Errorf("read status user=%s: decode snapshot: %w", userID, err)
	}
	return snap, true, nil
}

func (s *SQLStatusStore) Clear(ctx context.Context, userID string) (err error) {
	defer obs.Time(ctx, "status.sql.Clear")(&err)

	if s.DB == nil {
		return errors.New("sql status store: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear status user=%s: begin: %w", userID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM route_status WHERE user_id = $1;`, userID); err != nil {
		return fmt.Errorf("clear status user=%s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM position_status WHERE user_id = $1;`, userID); err != nil {
		return fmt.Errorf("clear status user=%s: position: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear status user=%s: commit: %w", userID, err)
	}
	return nil
}

func (s *SQLStatusStore) PushPosition(ctx context.Context, userID string, sample domain.PositionSample) (err error) {
	defer obs.Time(ctx, "status.sql.PushPosition")(&err)

	if s.DB == nil {
		return errors.New("sql status store: DB is nil")
	}

	var accuracy sql.NullFloat64
	if sample.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *sample.Accuracy, Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO position_status (user_id, lat, lon, accuracy, recorded_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE
	SET lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		accuracy = EXCLUDED.accuracy,
		recorded_at = EXCLUDED.recorded_at;
	`, userID, sample.Lat, sample.Lon, accuracy, sample.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("push position user=%s: %w", userID, err)
	}
	return nil
}
