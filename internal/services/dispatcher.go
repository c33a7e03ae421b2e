package services

import (
	"context"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"field-visit-service/internal/ports"
	"fmt"
	"log"
	"sync"
	"time"
)

// DispatcherDeps are the collaborators shared by every user's Dispatcher.
// Ledger, Events and Positions may be nil.
type DispatcherDeps struct {
	Local         ports.LocalSnapshotStore
	Remote        ports.StatusStore
	Ledger        ports.WorkLedger
	Events        ports.EventPublisher
	Positions     ports.PositionSource
	Clock         ports.Clock
	RadiusMeters  float64
	Sync          SyncConfig
	LedgerTimeout time.Duration
	EventTimeout  time.Duration
}

// Dispatcher drives one user's route: it runs transitions on the
// RouteController, commits every transition through the sync bridge,
// appends finished visits to the Work Ledger and publishes visit events.
//
// While a route is active it consumes the user's position stream and runs
// the live position push; both stop as soon as the route becomes inactive.
type Dispatcher struct {
	userID     string
	deps       DispatcherDeps
	baseCtx    context.Context
	controller *RouteController
	bridge     *ProgressSyncBridge

	resumeOnce sync.Once

	trackMu      sync.Mutex
	mu           sync.Mutex
	loaded       domain.RouteLoadResult
	cancelResume context.CancelFunc
	cancelSub    context.CancelFunc
	subDone      chan struct{}

	background sync.WaitGroup
}

func NewDispatcher(ctx context.Context, userID string, deps DispatcherDeps) *Dispatcher {
	ctx = obs.WithUser(ctx, userID)
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.LedgerTimeout <= 0 {
		deps.LedgerTimeout = 10 * time.Second
	}
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = 2 * time.Second
	}

	controller := NewRouteController(userID, deps.RadiusMeters, deps.Clock)
	bridge := NewProgressSyncBridge(controller, deps.Local, deps.Remote, deps.Sync)
	bridge.Start(ctx)

	return &Dispatcher{
		userID:     userID,
		deps:       deps,
		baseCtx:    ctx,
		controller: controller,
		bridge:     bridge,
	}
}

func (d *Dispatcher) UserID() string { return d.userID }

// Resume applies the locally cached progress and returns at once; the
// Status Store is read in the background and its copy wins unless a
// transition happened in the meantime. Only the first call loads anything;
// every call reports the latest load result.
func (d *Dispatcher) Resume(ctx context.Context) domain.RouteLoadResult {
	d.resumeOnce.Do(func() {
		res := domain.RouteLoadResult{Kind: domain.LoadPending}
		if d.bridge.LoadLocal(ctx) {
			snap := d.controller.Snapshot()
			res.Snapshot = &snap
		}
		base := d.controller.Revision()

		rctx, cancel := context.WithCancel(d.baseCtx)
		d.mu.Lock()
		d.loaded = res
		d.cancelResume = cancel
		d.mu.Unlock()

		d.syncTracking()

		d.background.Add(1)
		go func() {
			defer d.background.Done()
			defer cancel()
			d.reconcile(rctx, base)
		}()
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Dispatcher) reconcile(ctx context.Context, base uint64) {
	res := d.bridge.ReconcileFrom(ctx, base)
	log.Printf("dispatch: op=resume user=%s result=%s", d.userID, res.Kind)

	d.mu.Lock()
	d.loaded = res
	d.mu.Unlock()

	if res.Kind == domain.LoadFailed || ctx.Err() != nil {
		return
	}
	d.syncTracking()
}

// StartRoute begins a new route. Stops must already be located; see ResolveStops.
func (d *Dispatcher) StartRoute(ctx context.Context, route domain.Route, at time.Time) error {
	if route.Len() == 0 {
		return domain.ErrEmptyRoute
	}

	if !d.controller.Start(route, at) {
		if d.controller.IsActive() {
			return domain.ErrRouteActive
		}
		return domain.ErrEmptyRoute
	}

	d.bridge.Commit(d.controller.Snapshot())
	d.publish(ctx, domain.VisitEvent{Kind: domain.EventRouteStarted, RouteID: route.ID, OccurredAt: at})
	d.syncTracking()
	return nil
}

// ConfirmArrival starts work at the current stop and returns the booked
// travel minutes.
func (d *Dispatcher) ConfirmArrival(ctx context.Context, at time.Time) (int, error) {
	if !d.controller.IsActive() {
		return 0, domain.ErrNoActiveRoute
	}

	travel, ok := d.controller.ConfirmArrival(at)
	if !ok {
		return 0, fmt.Errorf("confirm arrival: %w", domain.ErrInvalidTransition)
	}

	snap := d.controller.Snapshot()
	d.bridge.Commit(snap)
	stop, _ := snap.CurrentStop()
	d.publish(ctx, domain.VisitEvent{Kind: domain.EventWorkStarted, RouteID: snap.Route.ID, StopID: stop.ID, OccurredAt: at})
	return travel, nil
}

// CompleteStop finishes work at the current stop. The record is appended to
// the Work Ledger in the background; a ledger failure never rolls back
// progression.
func (d *Dispatcher) CompleteStop(ctx context.Context, at time.Time) (*domain.CompletedVisitRecord, error) {
	if !d.controller.IsActive() {
		return nil, domain.ErrNoActiveRoute
	}

	rec := d.controller.CompleteCurrentStop(at)
	if rec == nil {
		return nil, fmt.Errorf("complete stop: %w", domain.ErrInvalidTransition)
	}

	snap := d.controller.Snapshot()
	d.bridge.Commit(snap)
	d.appendLedger(*rec)
	d.publish(ctx, domain.VisitEvent{Kind: domain.EventVisitCompleted, RouteID: rec.RouteID, StopID: rec.StopID, OccurredAt: at, Record: rec})

	if !snap.IsActive {
		d.syncTracking()
		d.publish(ctx, domain.VisitEvent{Kind: domain.EventRouteFinished, RouteID: rec.RouteID, OccurredAt: at})
	}
	return rec, nil
}

// Cancel abandons the active route, keeping completed visits.
func (d *Dispatcher) Cancel(ctx context.Context) error {
	if !d.controller.Cancel() {
		return domain.ErrNoActiveRoute
	}

	snap := d.controller.Snapshot()
	d.bridge.Commit(snap)
	d.syncTracking()
	d.publish(ctx, domain.VisitEvent{Kind: domain.EventRouteCancelled, RouteID: snap.Route.ID, OccurredAt: d.deps.Clock.Now()})
	return nil
}

// Clear removes the user's stored progress once no route is active.
func (d *Dispatcher) Clear(ctx context.Context) error {
	if d.controller.IsActive() {
		return domain.ErrRouteActive
	}
	return d.bridge.Clear(ctx)
}

// ObservePosition feeds one update to the geofence. Errors and missing
// fixes are treated as unknown distance. It reports whether the update
// produced an arrival.
func (d *Dispatcher) ObservePosition(ctx context.Context, update domain.PositionUpdate) bool {
	if update.Err != nil {
		log.Printf("dispatch: op=position user=%s err=%v", d.userID, update.Err)
	}

	sample := update.Sample
	if update.Err != nil {
		sample = nil
	}
	if sample != nil {
		d.bridge.RecordPosition(*sample)
	}

	if !d.controller.ObservePosition(sample) {
		return false
	}

	snap := d.controller.Snapshot()
	d.bridge.Commit(snap)
	var arrivedAt time.Time
	if snap.Visit.ArrivalTime != nil {
		arrivedAt = *snap.Visit.ArrivalTime
	}
	d.publish(ctx, domain.VisitEvent{Kind: domain.EventArrived, RouteID: snap.Route.ID, StopID: snap.Visit.TargetStopID, OccurredAt: arrivedAt})
	return true
}

// View returns the current progress with live geofence readings.
func (d *Dispatcher) View() ProgressView {
	return d.controller.View()
}

// Flush pushes pending snapshots to both stores synchronously.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.bridge.Flush(ctx)
}

// Tracking reports whether the position subscription is running.
func (d *Dispatcher) Tracking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelSub != nil
}

// Close abandons a pending resume, waits for background ledger writes,
// stops tracking and flushes.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	cancelResume := d.cancelResume
	d.mu.Unlock()
	if cancelResume != nil {
		cancelResume()
	}

	d.background.Wait()

	d.trackMu.Lock()
	d.stopTracking()
	d.trackMu.Unlock()
	return d.bridge.Close(ctx)
}

// syncTracking runs the position subscription exactly while a route is
// active. trackMu makes the check and the start or stop one step.
func (d *Dispatcher) syncTracking() {
	d.trackMu.Lock()
	defer d.trackMu.Unlock()

	if d.controller.IsActive() {
		d.startTracking()
	} else {
		d.stopTracking()
	}
}

func (d *Dispatcher) startTracking() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelSub != nil {
		return
	}

	subCtx, cancel := context.WithCancel(d.baseCtx)
	done := make(chan struct{})
	d.cancelSub = cancel
	d.subDone = done

	d.bridge.StartLivePush(d.baseCtx)

	var updates <-chan domain.PositionUpdate
	if d.deps.Positions != nil {
		ch, err := d.deps.Positions.Subscribe(subCtx, d.userID)
		if err != nil {
			log.Printf("dispatch: op=subscribe user=%s err=%v", d.userID, err)
		} else {
			updates = ch
		}
	}

	go func() {
		defer close(done)
		if updates == nil {
			<-subCtx.Done()
			return
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				d.ObservePosition(subCtx, u)
			}
		}
	}()
}

func (d *Dispatcher) stopTracking() {
	d.mu.Lock()
	cancel, done := d.cancelSub, d.subDone
	d.cancelSub, d.subDone = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	d.bridge.StopLivePush()
}

func (d *Dispatcher) appendLedger(rec domain.CompletedVisitRecord) {
	if d.deps.Ledger == nil {
		return
	}

	d.background.Add(1)
	go func() {
		defer d.background.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(d.baseCtx), d.deps.LedgerTimeout)
		defer cancel()

		if err := d.deps.Ledger.Append(ctx, rec); err != nil {
			log.Printf("dispatch: op=ledger_append user=%s record=%s err=%v", d.userID, rec.ID, err)
		}
	}()
}

func (d *Dispatcher) publish(ctx context.Context, ev domain.VisitEvent) {
	if d.deps.Events == nil {
		return
	}
	ev.UserID = d.userID

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deps.EventTimeout)
	defer cancel()

	if err := d.deps.Events.Publish(pctx, ev); err != nil {
		log.Printf("dispatch: op=publish user=%s kind=%s err=%v", d.userID, ev.Kind, err)
	}
}

// Registry lazily creates one Dispatcher per user.
type Registry struct {
	ctx  context.Context
	deps DispatcherDeps

	mu          sync.Mutex
	dispatchers map[string]*Dispatcher
}

func NewRegistry(ctx context.Context, deps DispatcherDeps) *Registry {
	return &Registry{ctx: ctx, deps: deps, dispatchers: make(map[string]*Dispatcher)}
}

// Get returns the user's Dispatcher, resuming stored progress on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Dispatcher, error) {
	if userID == "" {
		return nil, errors.New("registry: user id must not be empty")
	}

	r.mu.Lock()
	d, ok := r.dispatchers[userID]
	if !ok {
		d = NewDispatcher(r.ctx, userID, r.deps)
		r.dispatchers[userID] = d
	}
	r.mu.Unlock()

	d.Resume(ctx)
	return d, nil
}

// Close shuts down every Dispatcher.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Dispatcher, 0, len(r.dispatchers))
	for _, d := range r.dispatchers {
		all = append(all, d)
	}
	r.dispatchers = make(map[string]*Dispatcher)
	r.mu.Unlock()

	var errs []error
	for _, d := range all {
		if err := d.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher %q: %w", d.userID, err))
		}
	}
	return errors.Join(errs...)
}
