package ports

import (
	"context"
	"field-visit-service/internal/domain"
	"time"
)

// Filter for reading the Work Ledger. Zero values mean "unbounded".
type LedgerQuery struct {
	UserIDs []string
	From    time.Time
	To      time.Time
}

// Port: append-only record of completed visits.
type WorkLedger interface {
	Append(ctx context.Context, rec domain.CompletedVisitRecord) error
	// Records whose CompletedAt lies in [From, To).
	List(ctx context.Context, q LedgerQuery) ([]domain.CompletedVisitRecord, error)
	// Distinct users with records in [From, To).
	ListUsers(ctx context.Context, from, to time.Time) ([]string, error)
}
