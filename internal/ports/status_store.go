package ports

import (
	"context"
	"field-visit-service/internal/domain"
)

// Port: the durable, shared record of a user's route progress.
// Writes are last-write-wins per user; no retries happen behind this interface.
type StatusStore interface {
	// Replace the stored snapshot for a user.
	Write(ctx context.Context, userID string, snap domain.RouteProgressSnapshot) error
	// Return the stored snapshot; found is false when the user has none.
	Read(ctx context.Context, userID string) (snap domain.RouteProgressSnapshot, found bool, err error)
	// Remove the current snapshot without touching historical ledger data.
	Clear(ctx context.Context, userID string) error
	// Publish the latest live position for observers.
	PushPosition(ctx context.Context, userID string, sample domain.PositionSample) error
}
