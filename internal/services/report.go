package services

import (
	"context"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxLedgerFetches bounds concurrent per-user ledger reads.
const maxLedgerFetches = 5

// BuildReport loads ledger records for the query window and aggregates them.
// When no users are named, every user with records in the window is included.
func BuildReport(
	ctx context.Context,
	ledger ports.WorkLedger,
	q ports.LedgerQuery,
	schedule domain.WeeklySchedule,
) (*domain.Summary, error) {
	users := q.UserIDs
	if len(users) == 0 {
		listed, err := ledger.ListUsers(ctx, q.From, q.To)
		if err != nil {
			return nil, fmt.Errorf("build report: list users: %w", err)
		}
		users = listed
	}

	var (
		mu      sync.Mutex
		records []domain.CompletedVisitRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxLedgerFetches)
	for _, u := range users {
		u := u
		g.Go(func() error {
			recs, err := ledger.List(gctx, ports.LedgerQuery{UserIDs: []string{u}, From: q.From, To: q.To})
			if err != nil {
				return fmt.Errorf("build report: list records for user %q: %w", u, err)
			}
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Aggregate(records, schedule), nil
}

// ReportRow is one (user, date) line of a flattened summary.
type ReportRow struct {
	UserID          string                  `json:"user_id"`
	Date            domain.Date             `json:"date"`
	Travel          domain.MinuteAllocation `json:"travel"`
	Work            domain.MinuteAllocation `json:"work"`
	Combined        domain.MinuteAllocation `json:"combined"`
	CompletedVisits int                     `json:"completed_visits"`
}

// Rows flattens a summary, sorted by user then date.
func Rows(s *domain.Summary) []ReportRow {
	rows := make([]ReportRow, 0)
	for userID, u := range s.Users {
		for _, d := range u.Days {
			rows = append(rows, ReportRow{
				UserID:          userID,
				Date:            d.Date,
				Travel:          d.Travel,
				Work:            d.Work,
				Combined:        d.Combined,
				CompletedVisits: d.CompletedVisits,
			})
		}
	}

	slices.SortFunc(rows, func(a, b ReportRow) int {
		if c := strings.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		if a.Date.Before(b.Date) {
			return -1
		}
		if b.Date.Before(a.Date) {
			return 1
		}
		return 0
	})

	return rows
}
