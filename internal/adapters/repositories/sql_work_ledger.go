package repositories

import (
	"context"
	"database/sql"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"field-visit-service/internal/ports"
	"fmt"
	"strings"
	"time"
)

// Postgres-backed implementation of the WorkLedger port.
type SQLWorkLedger struct{ DB *sql.DB }

func NewSQLWorkLedger(db *sql.DB) *SQLWorkLedger {
	return &SQLWorkLedger{DB: db}
}

// Append a completed visit. Re-appending the same record id is a no-op.
func (s *SQLWorkLedger) Append(ctx context.Context, rec domain.CompletedVisitRecord) (err error) {
	defer obs.Time(ctx, "ledger.sql.Append")(&err)

	if s.DB == nil {
		return errors.New("sql work ledger: DB is nil")
	}

	var departed sql.NullTime
	if rec.DepartedAt != nil {
		departed = sql.NullTime{Time: rec.DepartedAt.UTC(), Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO visit_ledger (
		record_id, user_id, route_id, stop_id, stop_name,
		departed_at, arrived_at, completed_at, travel_minutes, work_minutes
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (record_id) DO NOTHING;
	`,
		rec.ID, rec.UserID, rec.RouteID, rec.StopID, rec.StopName,
		departed, rec.ArrivedAt.UTC(), rec.CompletedAt.UTC(),
		rec.TravelMinutes, rec.WorkMinutes,
	)
	if err != nil {
		return fmt.Errorf("append visit record id=%s: %w", rec.ID, err)
	}
	return nil
}

// Return records whose completion falls in [From, To), oldest first.
func (s *SQLWorkLedger) List(ctx context.Context, q ports.LedgerQuery) (_ []domain.CompletedVisitRecord, err error) {
	defer obs.Time(ctx, "ledger.sql.List")(&err)

	if s.DB == nil {
		return nil, errors.New("sql work ledger: DB is nil")
	}

	where, args := pgLedgerFilter(q.UserIDs, q.From, q.To)
	rows, err := s.DB.QueryContext(ctx, `
	SELECT
		record_id, user_id, route_id, stop_id, stop_name,
		departed_at, arrived_at, completed_at, travel_minutes, work_minutes
	FROM visit_ledger`+where+`
	ORDER BY completed_at, record_id;
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list visit records: query visit_ledger table: %w", err)
	}
	defer rows.Close()

	records := make([]domain.CompletedVisitRecord, 0, 64)
	for rows.Next() {
		var rec domain.CompletedVisitRecord
		var departed sql.NullTime
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.RouteID, &rec.StopID, &rec.StopName,
			&departed, &rec.ArrivedAt, &rec.CompletedAt,
			&rec.TravelMinutes, &rec.WorkMinutes,
		)
		if err != nil {
			return nil, fmt.Errorf("list visit records: scan row: %w", err)
		}
		if departed.Valid {
			t := departed.Time.UTC()
			rec.DepartedAt = &t
		}
		rec.ArrivedAt = rec.ArrivedAt.UTC()
		rec.CompletedAt = rec.CompletedAt.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list visit records: row iteration: %w", err)
	}

	return records, nil
}

// Return the distinct users with records completed in [from, to).
func (s *SQLWorkLedger) ListUsers(ctx context.Context, from, to time.Time) (_ []string, err error) {
	defer obs.Time(ctx, "ledger.sql.ListUsers")(&err)

	if s.DB == nil {
		return nil, errors.New("sql work ledger: DB is nil")
	}

	where, args := pgLedgerFilter(nil, from, to)
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT user_id FROM visit_ledger`+where+` ORDER BY user_id;`, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger users: query visit_ledger table: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("list ledger users: scan row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ledger users: row iteration: %w", err)
	}

	return users, nil
}

func pgLedgerFilter(userIDs []string, from, to time.Time) (string, []any) {
	var conds []string
	var args []any

	if len(userIDs) > 0 {
		args = append(args, userIDs)
		conds = append(conds, fmt.Sprintf("user_id = ANY($%d::text[])", len(args)))
	}
	if !from.IsZero() {
		args = append(args, from.UTC())
		conds = append(conds, fmt.Sprintf("completed_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.UTC())
		conds = append(conds, fmt.Sprintf("completed_at < $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
