package ports

import (
	"context"
	"field-visit-service/internal/domain"
)

// Port: delivery of visit events to notification consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.VisitEvent) error
}
