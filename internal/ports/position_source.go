package ports

import (
	"context"
	"field-visit-service/internal/domain"
)

// Port: a stream of position fixes for one user.
// The channel is closed when ctx is cancelled.
type PositionSource interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.PositionUpdate, error)
}
