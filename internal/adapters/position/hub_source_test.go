package position

import (
	"context"
	"field-visit-service/internal/domain"
	"testing"
	"time"
)

func update(lat float64) domain.PositionUpdate {
	return domain.PositionUpdate{Sample: &domain.PositionSample{
		Coordinates: domain.Coordinates{Lat: lat, Lon: -112},
		Timestamp:   time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
	}}
}

func TestHubSourceFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHubSource(4)
	a, err := hub.Subscribe(ctx, "tech-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b, _ := hub.Subscribe(ctx, "tech-1")
	other, _ := hub.Subscribe(ctx, "tech-2")

	if n := hub.Publish("tech-1", update(33.1)); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}

	for _, ch := range []<-chan domain.PositionUpdate{a, b} {
		u := <-ch
		if u.Sample.Lat != 33.1 {
			t.Fatalf("lat = %v, want 33.1", u.Sample.Lat)
		}
	}
	select {
	case u := <-other:
		t.Fatalf("tech-2 received %+v", u)
	default:
	}
}

func TestHubSourceWaitsForSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHubSource(1)
	ch, _ := hub.Subscribe(ctx, "tech-1")

	hub.Publish("tech-1", update(1))
	delivered := make(chan int, 1)
	go func() { delivered <- hub.Publish("tech-1", update(2)) }()

	// The consumer is busy for a while; nothing may be lost.
	time.Sleep(50 * time.Millisecond)
	if got := (<-ch).Sample.Lat; got != 1 {
		t.Fatalf("first lat = %v, want 1", got)
	}
	if got := (<-ch).Sample.Lat; got != 2 {
		t.Fatalf("second lat = %v, want 2", got)
	}
	if n := <-delivered; n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
}

func TestHubSourceDropsOldestAfterWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHubSource(2)
	hub.sendWait = 10 * time.Millisecond
	ch, _ := hub.Subscribe(ctx, "tech-1")

	hub.Publish("tech-1", update(1))
	hub.Publish("tech-1", update(2))
	if n := hub.Publish("tech-1", update(3)); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}

	if got := (<-ch).Sample.Lat; got != 2 {
		t.Fatalf("first lat = %v, want 2", got)
	}
	if got := (<-ch).Sample.Lat; got != 3 {
		t.Fatalf("second lat = %v, want 3", got)
	}
}

func TestHubSourcePublishEndsWhenSubscriberLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHubSource(1)
	hub.Subscribe(ctx, "tech-1")
	hub.Publish("tech-1", update(1))

	delivered := make(chan int, 1)
	go func() { delivered <- hub.Publish("tech-1", update(2)) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case n := <-delivered:
		if n != 0 {
			t.Fatalf("delivered = %d, want 0", n)
		}
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after the subscriber left")
	}
}

func TestHubSourceClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHubSource(0)
	ch, _ := hub.Subscribe(ctx, "tech-1")

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected update")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if n := hub.Subscribers("tech-1"); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}

	hub.Close()
	if _, err := hub.Subscribe(context.Background(), "tech-1"); err == nil {
		t.Fatal("expected error after close")
	}
}
