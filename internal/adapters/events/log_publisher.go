package events

import (
	"context"
	"field-visit-service/internal/domain"
	"log"
)

// LogPublisher writes visit events to the process log.
// It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, ev domain.VisitEvent) error {
	stop := ev.StopID
	if stop == "" {
		stop = "-"
	}
	log.Printf("event: kind=%s user=%s route=%s stop=%s at=%s",
		ev.Kind, ev.UserID, ev.RouteID, stop, ev.OccurredAt.UTC().Format("2006-01-02T15:04:05Z"))
	return nil
}
