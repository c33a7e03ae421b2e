package events

import (
	"context"
	"encoding/json"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "field_visits_topic"

// AMQPPublisher sends visit events to a durable topic exchange using
// publisher confirms. The routing key is the event kind (for example
// "visit.completed") so consumers can bind to just what they need.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // confirms are matched to publishes in order
}

func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, acks: acks}, nil
}

// Publish sends ev and waits for the broker's ack or ctx cancellation.
func (p *AMQPPublisher) Publish(ctx context.Context, ev domain.VisitEvent) (err error) {
	defer obs.Time(ctx, "events.amqp.Publish")(&err)

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("publish %s: encode event: %w", ev.Kind, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Kind), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"user_id": ev.UserID},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}

	select {
	case conf, ok := <-p.acks:
		if !ok {
			return fmt.Errorf("publish %s: confirm channel closed", ev.Kind)
		}
		if !conf.Ack {
			return fmt.Errorf("publish %s: broker nack", ev.Kind)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping reports whether the broker connection is still open.
func (p *AMQPPublisher) Ping() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp connection is closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
