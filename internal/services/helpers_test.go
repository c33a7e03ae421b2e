package services

import (
	"context"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

// metersNorth returns a point roughly m meters north of c.
func metersNorth(c domain.Coordinates, m float64) domain.Coordinates {
	return domain.Coordinates{Lat: c.Lat + m/(domain.EarthRadiusMeters*math.Pi/180), Lon: c.Lon}
}

func sampleAt(c domain.Coordinates, at time.Time) *domain.PositionSample {
	return &domain.PositionSample{Coordinates: c, Timestamp: at}
}

func threeStopRoute() domain.Route {
	return domain.Route{
		ID: "route-1",
		Stops: []domain.Stop{
			{ID: "s1", Name: "Boiler room", Location: domain.Coordinates{Lat: 33.4484, Lon: -112.0740}},
			{ID: "s2", Name: "Pump house", Location: domain.Coordinates{Lat: 33.4500, Lon: -112.0800}},
			{ID: "s3", Name: "Substation", Location: domain.Coordinates{Lat: 33.4600, Lon: -112.0900}},
		},
	}
}

type memLocalStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemLocalStore() *memLocalStore { return &memLocalStore{data: make(map[string][]byte)} }

func (m *memLocalStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memLocalStore) Put(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), payload...)
	return nil
}

func (m *memLocalStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memLocalStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type memStatusStore struct {
	mu        sync.Mutex
	snaps     map[string]domain.RouteProgressSnapshot
	positions map[string][]domain.PositionSample
	writes    int
	readErr   error
	writeErr  error
	// Read blocks until readGate is closed when it is set.
	readGate chan struct{}
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{
		snaps:     make(map[string]domain.RouteProgressSnapshot),
		positions: make(map[string][]domain.PositionSample),
	}
}

func (m *memStatusStore) Write(_ context.Context, userID string, snap domain.RouteProgressSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.snaps[userID] = snap
	return nil
}

func (m *memStatusStore) Read(ctx context.Context, userID string) (domain.RouteProgressSnapshot, bool, error) {
	if m.readGate != nil {
		select {
		case <-m.readGate:
		case <-ctx.Done():
			return domain.RouteProgressSnapshot{}, false, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return domain.RouteProgressSnapshot{}, false, m.readErr
	}
	s, ok := m.snaps[userID]
	return s, ok, nil
}

func (m *memStatusStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, userID)
	return nil
}

func (m *memStatusStore) PushPosition(_ context.Context, userID string, sample domain.PositionSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[userID] = append(m.positions[userID], sample)
	return nil
}

func (m *memStatusStore) snapshot(userID string) (domain.RouteProgressSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[userID]
	return s, ok
}

func (m *memStatusStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStatusStore) pushCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions[userID])
}

type memLedger struct {
	mu      sync.Mutex
	records []domain.CompletedVisitRecord
}

func (m *memLedger) Append(_ context.Context, rec domain.CompletedVisitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memLedger) List(_ context.Context, q ports.LedgerQuery) ([]domain.CompletedVisitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CompletedVisitRecord(nil), m.records...), nil
}

func (m *memLedger) ListUsers(_ context.Context, from, to time.Time) ([]string, error) {
	return nil, nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.VisitEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.VisitEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []domain.VisitEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.VisitEventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

// chanSource hands out one channel per subscription.
type chanSource struct {
	mu   sync.Mutex
	subs map[string]chan domain.PositionUpdate
}

func newChanSource() *chanSource { return &chanSource{subs: make(map[string]chan domain.PositionUpdate)} }

func (s *chanSource) Subscribe(ctx context.Context, userID string) (<-chan domain.PositionUpdate, error) {
	ch := make(chan domain.PositionUpdate, 8)
	s.mu.Lock()
	s.subs[userID] = ch
	s.mu.Unlock()
	return ch, nil
}

func (s *chanSource) send(userID string, u domain.PositionUpdate) bool {
	s.mu.Lock()
	ch, ok := s.subs[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- u
	return true
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
