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

// SQLite-backed implementation of the WorkLedger port.
// Timestamps are stored as unix milliseconds in UTC.
type SqliteWorkLedger struct{ DB *sql.DB }

func NewSqliteWorkLedger(db *sql.DB) *SqliteWorkLedger {
	return &SqliteWorkLedger{DB: db}
}

// Append a completed visit. Re-appending the same record id is a no-op.
func (s *SqliteWorkLedger) Append(ctx context.Context, rec domain.CompletedVisitRecord) (err error) {
	defer obs.Time(ctx, "ledger.sqlite.Append")(&err)

	if s.DB == nil {
		return errors.New("sqlite work ledger: DB is nil")
	}

	var departed sql.NullInt64
	if rec.DepartedAt != nil {
		departed = sql.NullInt64{Int64: rec.DepartedAt.UnixMilli(), Valid: true}
	}

	query := `
	INSERT OR IGNORE INTO visit_ledger (
		record_id,
		user_id,
		route_id,
		stop_id,
		stop_name,
		departed_at,
		arrived_at,
		completed_at,
		travel_minutes,
		work_minutes
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = s.DB.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.RouteID, rec.StopID, rec.StopName,
		departed, rec.ArrivedAt.UnixMilli(), rec.CompletedAt.UnixMilli(),
		rec.TravelMinutes, rec.WorkMinutes,
	)
	if err != nil {
		return fmt.Errorf("append visit record id=%s: %w", rec.ID, err)
	}
	return nil
}

// Return records whose completion falls in [From, To), oldest first.
func (s *SqliteWorkLedger) List(ctx context.Context, q ports.LedgerQuery) (_ []domain.CompletedVisitRecord, err error) {
	defer obs.Time(ctx, "ledger.sqlite.List")(&err)

	if s.DB == nil {
		return nil, errors.New("sqlite work ledger: DB is nil")
	}

	where, args := sqliteLedgerFilter(q.UserIDs, q.From, q.To)
	query := `
	SELECT
		record_id,
		user_id,
		route_id,
		stop_id,
		stop_name,
		departed_at,
		arrived_at,
		completed_at,
		travel_minutes,
		work_minutes
	FROM visit_ledger` + where + `
	ORDER BY completed_at, record_id;
	`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visit records: query visit_ledger table: %w", err)
	}
	defer rows.Close()

	records := make([]domain.CompletedVisitRecord, 0, 64)
	for rows.Next() {
		var rec domain.CompletedVisitRecord
		var departed sql.NullInt64
		var arrived, completed int64
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.RouteID, &rec.StopID, &rec.StopName,
			&departed, &arrived, &completed,
			&rec.TravelMinutes, &rec.WorkMinutes,
		)
		if err != nil {
			return nil, fmt.Errorf("list visit records: scan row: %w", err)
		}
		if departed.Valid {
			t := time.UnixMilli(departed.Int64).UTC()
			rec.DepartedAt = &t
		}
		rec.ArrivedAt = time.UnixMilli(arrived).UTC()
		rec.CompletedAt = time.UnixMilli(completed).UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list visit records: row iteration: %w", err)
	}

	return records, nil
}

// Return the distinct users with records completed in [from, to).
func (s *SqliteWorkLedger) ListUsers(ctx context.Context, from, to time.Time) (_ []string, err error) {
	defer obs.Time(ctx, "ledger.sqlite.ListUsers")(&err)

	if s.DB == nil {
		return nil, errors.New("sqlite work ledger: DB is nil")
	}

	where, args := sqliteLedgerFilter(nil, from, to)
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

// SQLite cannot bind a slice in IN (...); only placeholders are interpolated.
func sqliteLedgerFilter(userIDs []string, from, to time.Time) (string, []any) {
	var conds []string
	var args []any

	if len(userIDs) > 0 {
		ph := make([]string, len(userIDs))
		for i, u := range userIDs {
			ph[i] = "?"
			args = append(args, u)
		}
		conds = append(conds, "user_id IN ("+strings.Join(ph, ",")+")")
	}
	if !from.IsZero() {
		conds = append(conds, "completed_at >= ?")
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		conds = append(conds, "completed_at < ?")
		args = append(args, to.UnixMilli())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
