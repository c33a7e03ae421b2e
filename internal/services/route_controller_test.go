package services

import (
	"field-visit-service/internal/domain"
	"testing"
	"time"
)

// visitStop drives the controller through arrival, confirm, and completion
// at the current stop and returns the completed record.
func visitStop(t *testing.T, c *RouteController, clk *fakeClock, stop domain.Stop, travel, work time.Duration) *domain.CompletedVisitRecord {
	t.Helper()

	at := clk.Advance(travel)
	if !c.ObservePosition(sampleAt(stop.Location, at)) {
		t.Fatalf("stop %s: expected arrival", stop.ID)
	}
	if _, ok := c.ConfirmArrival(at); !ok {
		t.Fatalf("stop %s: confirm failed", stop.ID)
	}
	rec := c.CompleteCurrentStop(clk.Advance(work))
	if rec == nil {
		t.Fatalf("stop %s: expected record", stop.ID)
	}
	return rec
}

func TestRouteControllerThreeStops(t *testing.T) {
	t0 := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	clk := newFakeClock(t0)
	c := NewRouteController("tech-1", 100, clk)
	route := threeStopRoute()

	if !c.Start(route, t0) {
		t.Fatal("start failed")
	}

	wantIndex := []int{1, 2, 2}
	for i, stop := range route.Stops {
		rec := visitStop(t, c, clk, stop, 10*time.Minute+20*time.Second, 30*time.Minute)

		if rec.StopID != stop.ID {
			t.Fatalf("record stop = %s, want %s", rec.StopID, stop.ID)
		}
		if rec.TravelMinutes != 11 {
			t.Fatalf("travel = %d, want 11 (ceiling)", rec.TravelMinutes)
		}
		if rec.WorkMinutes != 30 {
			t.Fatalf("work = %d, want 30", rec.WorkMinutes)
		}
		if rec.DepartedAt == nil || !rec.ArrivedAt.Equal(rec.DepartedAt.Add(10*time.Minute+20*time.Second)) {
			t.Fatalf("departed=%v arrived=%v", rec.DepartedAt, rec.ArrivedAt)
		}

		snap := c.Snapshot()
		if snap.CurrentIndex != wantIndex[i] {
			t.Fatalf("after stop %d index = %d, want %d", i, snap.CurrentIndex, wantIndex[i])
		}
		if snap.Totals.CompletedCount != len(snap.Completed) {
			t.Fatalf("completed count %d != records %d", snap.Totals.CompletedCount, len(snap.Completed))
		}
	}

	snap := c.Snapshot()
	if snap.IsActive {
		t.Fatal("route must be inactive after the last stop")
	}
	if snap.Totals.CompletedCount != 3 {
		t.Fatalf("completed = %d, want 3", snap.Totals.CompletedCount)
	}
	if snap.Totals.TravelMinutes != 33 || snap.Totals.WorkMinutes != 90 {
		t.Fatalf("totals = %+v", snap.Totals)
	}
	if rec := c.CompleteCurrentStop(clk.Advance(time.Minute)); rec != nil {
		t.Fatal("finished route must not produce records")
	}
}

func TestRouteControllerCompleteWithoutWorkingProducesNothing(t *testing.T) {
	t0 := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	clk := newFakeClock(t0)
	c := NewRouteController("tech-1", 100, clk)
	route := threeStopRoute()
	c.Start(route, t0)

	if rec := c.CompleteCurrentStop(clk.Advance(time.Minute)); rec != nil {
		t.Fatal("complete before arrival must return nil")
	}

	c.ObservePosition(sampleAt(route.Stops[0].Location, clk.Advance(time.Minute)))
	if rec := c.CompleteCurrentStop(clk.Advance(time.Minute)); rec != nil {
		t.Fatal("complete before confirm must return nil")
	}

	snap := c.Snapshot()
	if snap.CurrentIndex != 0 || snap.Totals.CompletedCount != 0 || len(snap.Completed) != 0 {
		t.Fatalf("state changed: %+v", snap)
	}
}

func TestRouteControllerStartRules(t *testing.T) {
	t0 := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	c := NewRouteController("tech-1", 100, newFakeClock(t0))

	if c.Start(domain.Route{ID: "empty"}, t0) {
		t.Fatal("empty route must not start")
	}
	if c.IsActive() {
		t.Fatal("empty route must leave controller inactive")
	}

	if !c.Start(threeStopRoute(), t0) {
		t.Fatal("start failed")
	}
	other := domain.Route{ID: "route-2", Stops: []domain.Stop{{ID: "x"}}}
	if c.Start(other, t0) {
		t.Fatal("start must refuse to overwrite an active route")
	}
	if c.Snapshot().Route.ID != "route-1" {
		t.Fatal("active route was overwritten")
	}

	c.Cancel()
	if !c.Start(other, t0) {
		t.Fatal("start after cancel must succeed")
	}
}

func TestRouteControllerCancelKeepsHistory(t *testing.T) {
	t0 := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	clk := newFakeClock(t0)
	c := NewRouteController("tech-1", 100, clk)
	route := threeStopRoute()
	c.Start(route, t0)

	first := visitStop(t, c, clk, route.Stops[0], 5*time.Minute, 20*time.Minute)
	second := visitStop(t, c, clk, route.Stops[1], 5*time.Minute, 20*time.Minute)

	if !c.Cancel() {
		t.Fatal("cancel failed")
	}
	if c.Cancel() {
		t.Fatal("second cancel must be a no-op")
	}

	snap := c.Snapshot()
	if snap.IsActive {
		t.Fatal("route must be inactive after cancel")
	}
	if snap.Totals.CompletedCount != 2 || len(snap.Completed) != 2 {
		t.Fatalf("completed = %d/%d, want 2", snap.Totals.CompletedCount, len(snap.Completed))
	}
	if snap.Completed[0].ID != first.ID || snap.Completed[1].ID != second.ID {
		t.Fatal("cancel must preserve existing records")
	}
	if snap.Visit.TargetStopID != "" || snap.Visit.ArrivalTime != nil {
		t.Fatalf("visit session must be reset: %+v", snap.Visit)
	}
}

func TestRouteControllerTravelStartsAtPreviousCompletion(t *testing.T) {
	t0 := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	clk := newFakeClock(t0)
	c := NewRouteController("tech-1", 100, clk)
	route := threeStopRoute()
	c.Start(route, t0)

	first := visitStop(t, c, clk, route.Stops[0], time.Minute, 15*time.Minute)
	second := visitStop(t, c, clk, route.Stops[1], 90*time.Second, 15*time.Minute)

	if second.DepartedAt == nil || !second.DepartedAt.Equal(first.CompletedAt) {
		t.Fatalf("second leg departed = %v, want %v", second.DepartedAt, first.CompletedAt)
	}
	if second.TravelMinutes != 2 {
		t.Fatalf("travel = %d, want 2", second.TravelMinutes)
	}
}

func TestRouteControllerRestore(t *testing.T) {
	t0 := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	clk := newFakeClock(t0)
	c := NewRouteController("tech-1", 100, clk)
	route := threeStopRoute()
	c.Start(route, t0)
	visitStop(t, c, clk, route.Stops[0], 5*time.Minute, 20*time.Minute)
	c.ObservePosition(sampleAt(route.Stops[1].Location, clk.Advance(4*time.Minute)))
	c.ConfirmArrival(clk.Now())
	snap := c.Snapshot()

	other := NewRouteController("tech-2", 100, clk)
	if other.Restore(snap) {
		t.Fatal("restore must reject another user's snapshot")
	}

	restored := NewRouteController("tech-1", 100, clk)
	if !restored.Restore(snap) {
		t.Fatal("restore failed")
	}
	got := restored.Snapshot()
	if got.CurrentIndex != 1 || got.Totals != snap.Totals {
		t.Fatalf("restored index=%d totals=%+v, want 1 %+v", got.CurrentIndex, got.Totals, snap.Totals)
	}
	if restored.View().State != domain.VisitWorking {
		t.Fatalf("state = %s, want working", restored.View().State)
	}

	rec := restored.CompleteCurrentStop(clk.Advance(10 * time.Minute))
	if rec == nil || rec.StopID != "s2" || rec.WorkMinutes != 10 || rec.TravelMinutes != 4 {
		t.Fatalf("record after restore = %+v", rec)
	}
}

func TestValidSnapshotRejectsBrokenInvariants(t *testing.T) {
	base := domain.RouteProgressSnapshot{UserID: "u", Route: threeStopRoute(), IsActive: true}

	bad := base
	bad.CurrentIndex = 3
	if ValidSnapshot(bad, "u") {
		t.Fatal("index out of range must be invalid")
	}

	bad = base
	bad.Totals.CompletedCount = 1
	if ValidSnapshot(bad, "u") {
		t.Fatal("count mismatch must be invalid")
	}

	if !ValidSnapshot(base, "u") {
		t.Fatal("base snapshot must be valid")
	}
}

func TestRouteControllerRevisionAdvancesOnEveryChange(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	c := NewRouteController("u", 0, clock)
	route := threeStopRoute()

	last := c.Revision()
	step := func(name string, changed bool) {
		t.Helper()
		rev := c.Revision()
		if changed && rev <= last {
			t.Fatalf("%s: revision = %d, want > %d", name, rev, last)
		}
		if !changed && rev != last {
			t.Fatalf("%s: revision = %d, want unchanged %d", name, rev, last)
		}
		if got := c.Snapshot().Revision; got != rev {
			t.Fatalf("%s: snapshot revision = %d, want %d", name, got, rev)
		}
		last = rev
	}

	c.Start(route, clock.Now())
	step("start", true)
	c.ConfirmArrival(clock.Now())
	step("confirm before arrival", false)
	c.ObservePosition(nil)
	step("no fix", false)
	c.ObservePosition(sampleAt(route.Stops[0].Location, clock.Advance(time.Minute)))
	step("arrival", true)
	c.ConfirmArrival(clock.Now())
	step("confirm", true)
	c.CompleteCurrentStop(clock.Advance(time.Minute))
	step("complete", true)
	c.Cancel()
	step("cancel", true)
}

func TestApplyIfUnchangedRefusesAfterTransition(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	c := NewRouteController("u", 0, clock)

	base := c.Revision()
	c.Start(threeStopRoute(), clock.Now())

	if c.ApplyIfUnchanged(nil, base) {
		t.Fatal("reset applied over a newer start")
	}
	if !c.IsActive() {
		t.Fatal("route lost")
	}
	if !c.ApplyIfUnchanged(nil, c.Revision()) || c.IsActive() {
		t.Fatal("reset at the current revision not applied")
	}
}
