package services

import (
	"context"
	"errors"
	"field-visit-service/internal/domain"
	"reflect"
	"testing"
	"time"
)

type dispatcherFixture struct {
	clock  *fakeClock
	local  *memLocalStore
	remote *memStatusStore
	ledger *memLedger
	events *recordingPublisher
	source *chanSource
	deps   DispatcherDeps
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		clock:  newFakeClock(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)),
		local:  newMemLocalStore(),
		remote: newMemStatusStore(),
		ledger: &memLedger{},
		events: &recordingPublisher{},
		source: newChanSource(),
	}
	f.deps = DispatcherDeps{
		Local:     f.local,
		Remote:    f.remote,
		Ledger:    f.ledger,
		Events:    f.events,
		Positions: f.source,
		Clock:     f.clock,
		Sync: SyncConfig{
			LocalDebounce:    time.Millisecond,
			PositionInterval: 10 * time.Millisecond,
			RemoteTimeout:    time.Second,
		},
	}
	return f
}

func TestDispatcherFullRoute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newDispatcherFixture()
	d := NewDispatcher(ctx, "tech-1", f.deps)
	route := threeStopRoute()

	if err := d.StartRoute(ctx, route, f.clock.Now()); err != nil {
		t.Fatalf("start route: %v", err)
	}
	if !d.Tracking() {
		t.Fatal("position tracking not started with the route")
	}

	for i, stop := range route.Stops {
		at := f.clock.Advance(15 * time.Minute)
		if !f.source.send("tech-1", domain.PositionUpdate{Sample: sampleAt(stop.Location, at)}) {
			t.Fatal("no position subscription")
		}
		eventually(t, func() bool {
			kinds := f.events.kinds()
			return len(kinds) > 0 && kinds[len(kinds)-1] == domain.EventArrived
		})

		travel, err := d.ConfirmArrival(ctx, at)
		if err != nil {
			t.Fatalf("stop %d: confirm: %v", i, err)
		}
		if travel != 15 {
			t.Fatalf("stop %d: travel = %d, want 15", i, travel)
		}
		rec, err := d.CompleteStop(ctx, f.clock.Advance(30*time.Minute))
		if err != nil {
			t.Fatalf("stop %d: complete: %v", i, err)
		}
		if rec.StopID != stop.ID || rec.WorkMinutes != 30 {
			t.Fatalf("stop %d: record = %+v", i, rec)
		}
	}

	if d.Tracking() {
		t.Fatal("tracking still running after the route finished")
	}
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := f.ledger.count(); got != 3 {
		t.Fatalf("ledger records = %d, want 3", got)
	}
	snap, ok := f.remote.snapshot("tech-1")
	if !ok || snap.IsActive || snap.Totals.CompletedCount != 3 {
		t.Fatalf("remote snapshot = %+v (found=%t)", snap, ok)
	}

	want := []domain.VisitEventKind{domain.EventRouteStarted}
	for range route.Stops {
		want = append(want, domain.EventArrived, domain.EventWorkStarted, domain.EventVisitCompleted)
	}
	want = append(want, domain.EventRouteFinished)
	if got := f.events.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestDispatcherTransitionErrors(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	d := NewDispatcher(ctx, "tech-1", f.deps)
	defer d.Close(ctx)

	if _, err := d.ConfirmArrival(ctx, f.clock.Now()); !errors.Is(err, domain.ErrNoActiveRoute) {
		t.Fatalf("confirm without route: err = %v", err)
	}
	if err := d.StartRoute(ctx, domain.Route{ID: "empty"}, f.clock.Now()); !errors.Is(err, domain.ErrEmptyRoute) {
		t.Fatalf("empty route: err = %v", err)
	}

	if err := d.StartRoute(ctx, threeStopRoute(), f.clock.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.StartRoute(ctx, threeStopRoute(), f.clock.Now()); !errors.Is(err, domain.ErrRouteActive) {
		t.Fatalf("second start: err = %v", err)
	}
	if _, err := d.ConfirmArrival(ctx, f.clock.Now()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("confirm before arrival: err = %v", err)
	}
	if _, err := d.CompleteStop(ctx, f.clock.Now()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("complete before work: err = %v", err)
	}
	if err := d.Clear(ctx); !errors.Is(err, domain.ErrRouteActive) {
		t.Fatalf("clear during route: err = %v", err)
	}
}

func TestDispatcherStopAtOrigin(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	d := NewDispatcher(ctx, "tech-1", f.deps)
	defer d.Close(ctx)

	route := domain.Route{ID: "r-origin", Stops: []domain.Stop{{ID: "origin", Location: domain.Coordinates{}}}}
	if err := d.StartRoute(ctx, route, f.clock.Now()); err != nil {
		t.Fatalf("start at (0,0): %v", err)
	}

	// ~50 m north of the target.
	at := f.clock.Advance(5 * time.Minute)
	if !d.ObservePosition(ctx, domain.PositionUpdate{Sample: sampleAt(domain.Coordinates{Lat: 0.00045}, at)}) {
		t.Fatal("no arrival at (0,0)")
	}
	if _, err := d.ConfirmArrival(ctx, at); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rec, err := d.CompleteStop(ctx, f.clock.Advance(10*time.Minute))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if rec.StopID != "origin" || rec.WorkMinutes != 10 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestDispatcherCancelStopsTracking(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	d := NewDispatcher(ctx, "tech-1", f.deps)
	defer d.Close(ctx)

	if err := d.StartRoute(ctx, threeStopRoute(), f.clock.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if d.Tracking() {
		t.Fatal("tracking survived cancel")
	}
	if err := d.Cancel(ctx); !errors.Is(err, domain.ErrNoActiveRoute) {
		t.Fatalf("second cancel: err = %v", err)
	}
	if err := d.Clear(ctx); err != nil {
		t.Fatalf("clear after cancel: %v", err)
	}
}

func TestDispatcherPositionErrorIsUnknownDistance(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	d := NewDispatcher(ctx, "tech-1", f.deps)
	defer d.Close(ctx)

	if err := d.StartRoute(ctx, threeStopRoute(), f.clock.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}

	stop := threeStopRoute().Stops[0]
	update := domain.PositionUpdate{Sample: sampleAt(stop.Location, f.clock.Now()), Err: errors.New("gps lost")}
	if d.ObservePosition(ctx, update) {
		t.Fatal("errored update produced an arrival")
	}
	if v := d.View(); v.DistanceMeters != nil || v.IsNearby {
		t.Fatalf("view after error = %+v, want unknown distance", v)
	}
}

func TestRegistryResumesActiveRoute(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	f.remote.snaps["tech-1"] = activeSnapshot(t, "tech-1", f.clock)

	r := NewRegistry(ctx, f.deps)
	defer r.Close(ctx)

	d, err := r.Get(ctx, "tech-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	eventually(t, func() bool { return d.Resume(ctx).Kind == domain.ActiveRoute })
	if v := d.View(); !v.Snapshot.IsActive || v.Snapshot.CurrentIndex != 1 {
		t.Fatalf("resumed view = %+v", v.Snapshot)
	}
	eventually(t, d.Tracking)

	again, _ := r.Get(ctx, "tech-1")
	if again != d {
		t.Fatal("registry returned a second dispatcher for the same user")
	}
	if _, err := r.Get(ctx, ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestRegistryGetDoesNotWaitForStatusStore(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	f.remote.snaps["tech-1"] = activeSnapshot(t, "tech-1", f.clock)
	gate := make(chan struct{})
	f.remote.readGate = gate

	r := NewRegistry(ctx, f.deps)
	defer r.Close(ctx)

	d, err := r.Get(ctx, "tech-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res := d.Resume(ctx); res.Kind != domain.LoadPending {
		t.Fatalf("load result while remote is slow = %s, want pending", res.Kind)
	}
	if d.View().Snapshot.IsActive {
		t.Fatal("remote snapshot applied before the read finished")
	}

	close(gate)
	eventually(t, func() bool { return d.Resume(ctx).Kind == domain.ActiveRoute })
	if v := d.View(); v.Snapshot.CurrentIndex != 1 {
		t.Fatalf("resumed index = %d, want 1", v.Snapshot.CurrentIndex)
	}
	eventually(t, d.Tracking)
}

func TestResumeKeepsTransitionMadeDuringRemoteRead(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	gate := make(chan struct{})
	f.remote.readGate = gate

	r := NewRegistry(ctx, f.deps)
	defer r.Close(ctx)

	d, err := r.Get(ctx, "tech-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := d.StartRoute(ctx, threeStopRoute(), f.clock.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The store still reports no route; the newer local start must survive.
	close(gate)
	eventually(t, func() bool { return d.Resume(ctx).Kind == domain.ActiveRoute })
	if !d.View().Snapshot.IsActive || !d.Tracking() {
		t.Fatal("local start was overwritten by the stale remote read")
	}
	eventually(t, func() bool {
		snap, ok := f.remote.snapshot("tech-1")
		return ok && snap.IsActive
	})
}
