package position

import (
	"context"
	"errors"
	"field-visit-service/internal/domain"
	"log"
	"sync"
	"time"
)

const (
	defaultBuffer   = 16
	defaultSendWait = 5 * time.Second
)

// HubSource is an in-process PositionSource. Fixes reported over HTTP are
// published to it and fanned out to every subscriber of that user.
//
// A subscriber that falls behind makes Publish wait up to sendWait for room;
// only after that is its oldest pending update dropped. The wait outlasts a
// synchronous event publish in the consumer, so a short proximity window is
// not lost while an arrival is being announced.
type HubSource struct {
	buffer   int
	sendWait time.Duration

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan domain.PositionUpdate
	quit chan struct{}
	once sync.Once

	mu   sync.RWMutex
	done bool
}

// send delivers u, waiting up to wait for buffer space. It reports false
// when the subscriber is gone or the wait ran out.
func (s *subscriber) send(u domain.PositionUpdate, wait time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.done {
		return false
	}
	select {
	case s.ch <- u:
		return true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- u:
		return true
	case <-s.quit:
		return false
	case <-timer.C:
		return false
	}
}

// replaceOldest makes room by discarding the oldest pending update.
func (s *subscriber) replaceOldest(u domain.PositionUpdate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.done {
		return false
	}
	for {
		select {
		case s.ch <- u:
			return true
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.quit)
		s.mu.Lock()
		s.done = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func NewHubSource(buffer int) *HubSource {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &HubSource{
		buffer:   buffer,
		sendWait: defaultSendWait,
		subs:     make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe returns a stream of updates for userID. The channel is closed
// when ctx is done or the hub is closed.
func (h *HubSource) Subscribe(ctx context.Context, userID string) (<-chan domain.PositionUpdate, error) {
	if userID == "" {
		return nil, errors.New("hub subscribe: user id must not be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("hub subscribe: hub closed")
	}

	sub := &subscriber{
		ch:   make(chan domain.PositionUpdate, h.buffer),
		quit: make(chan struct{}),
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}

	go func() {
		<-ctx.Done()
		h.remove(userID, sub)
	}()

	return sub.ch, nil
}

func (h *HubSource) remove(userID string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers an update to the user's subscribers and reports how many
// received it.
func (h *HubSource) Publish(userID string, update domain.PositionUpdate) int {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs[userID]))
	for sub := range h.subs[userID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	n := 0
	for _, sub := range subs {
		if sub.send(update, h.sendWait) {
			n++
			continue
		}
		if sub.replaceOldest(update) {
			log.Printf("position: op=publish user=%s dropped=oldest", userID)
			n++
		}
	}
	return n
}

// Subscribers returns the number of live subscriptions for a user.
func (h *HubSource) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close ends every subscription.
func (h *HubSource) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*subscriber
	for userID, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
		delete(h.subs, userID)
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
