package events

import (
	"context"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
)

// Fanout delivers each event to every publisher and joins their errors.
type Fanout []ports.EventPublisher

func (f Fanout) Publish(ctx context.Context, ev domain.VisitEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
