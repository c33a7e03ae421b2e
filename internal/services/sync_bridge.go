package services

import (
	"context"
	"encoding/json"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"fmt"
	"log"
	"sync"
	"time"
)

// SyncConfig tunes the Progress Sync Bridge.
type SyncConfig struct {
	LocalDebounce    time.Duration
	PositionInterval time.Duration
	RemoteTimeout    time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.LocalDebounce <= 0 {
		c.LocalDebounce = 500 * time.Millisecond
	}
	if c.PositionInterval <= 0 {
		c.PositionInterval = 15 * time.Second
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 10 * time.Second
	}
	return c
}

// snapshotEnvelope is the versioned local cache payload.
type snapshotEnvelope struct {
	Version  int                          `json:"version"`
	UserID   string                       `json:"user_id"`
	SavedAt  time.Time                    `json:"saved_at"`
	Snapshot domain.RouteProgressSnapshot `json:"snapshot"`
}

// ProgressSyncBridge keeps a RouteController in step with a fast local
// cache and the authoritative Status Store.
//
// Consistency is last-writer-wins: the remote snapshot replaces local state
// on load, and every committed transition replaces the remote snapshot.
// Local cache writes are debounced. Remote writes are coalesced so only the
// latest pending snapshot is sent, but a committed transition is never
// skipped without a newer snapshot superseding it. Failed writes are logged
// and not retried; the next successful write re-synchronizes.
type ProgressSyncBridge struct {
	userID     string
	controller *RouteController
	local      ports.LocalSnapshotStore
	remote     ports.StatusStore
	cfg        SyncConfig

	mu            sync.Mutex
	localTimer    *time.Timer
	pendingLocal  *domain.RouteProgressSnapshot
	pendingRemote *domain.RouteProgressSnapshot
	committedRev  uint64
	lastRemoteErr error
	lastPosition  *domain.PositionSample
	remoteSignal  chan struct{}
	stopWriter    context.CancelFunc
	writerDone    chan struct{}
	stopLive      context.CancelFunc
	liveDone      chan struct{}

	localWriteMu  sync.Mutex
	remoteWriteMu sync.Mutex
}

func NewProgressSyncBridge(
	controller *RouteController,
	local ports.LocalSnapshotStore,
	remote ports.StatusStore,
	cfg SyncConfig,
) *ProgressSyncBridge {
	return &ProgressSyncBridge{
		userID:       controller.UserID(),
		controller:   controller,
		local:        local,
		remote:       remote,
		cfg:          cfg.withDefaults(),
		remoteSignal: make(chan struct{}, 1),
	}
}

func (b *ProgressSyncBridge) localKey() string {
	return "route-progress:" + b.userID
}

// Load applies the local snapshot optimistically, then reconciles with the
// Status Store.
func (b *ProgressSyncBridge) Load(ctx context.Context) domain.RouteLoadResult {
	b.LoadLocal(ctx)
	return b.Reconcile(ctx)
}

// LoadLocal applies the cached snapshot if it is readable and belongs to this
// user. Unreadable payloads are discarded.
func (b *ProgressSyncBridge) LoadLocal(ctx context.Context) bool {
	if b.local == nil {
		return false
	}

	payload, ok, err := b.local.Get(ctx, b.localKey())
	if err != nil {
		log.Printf("sync: op=load_local user=%s err=%v", b.userID, err)
		return false
	}
	if !ok {
		return false
	}

	snap, err := decodeLocalSnapshot(payload, b.userID)
	if err != nil {
		log.Printf("sync: op=load_local user=%s discard=true err=%v", b.userID, err)
		b.deleteLocal(ctx)
		return false
	}
	if !b.controller.Restore(snap) {
		log.Printf("sync: op=load_local user=%s discard=true err=invalid snapshot", b.userID)
		b.deleteLocal(ctx)
		return false
	}

	return true
}

// Reconcile fetches the authoritative snapshot. The remote copy wins; an
// explicit "no active route" discards any local snapshot. On failure local
// state stays in place. A transition committed while the read was in flight
// is newer than the remote copy and is kept; its own write re-syncs the store.
func (b *ProgressSyncBridge) Reconcile(ctx context.Context) domain.RouteLoadResult {
	return b.ReconcileFrom(ctx, b.controller.Revision())
}

// ReconcileFrom is Reconcile against controller state as of revision base.
// Callers that read asynchronously capture base before handing control back.
func (b *ProgressSyncBridge) ReconcileFrom(ctx context.Context, base uint64) domain.RouteLoadResult {
	rctx, cancel := context.WithTimeout(ctx, b.cfg.RemoteTimeout)
	defer cancel()

	snap, found, err := b.remote.Read(rctx, b.userID)
	if err != nil {
		log.Printf("sync: op=reconcile user=%s err=%v", b.userID, err)
		return b.failed(fmt.Errorf("reconcile: read status store: %w", err))
	}

	if !found {
		if !b.controller.ApplyIfUnchanged(nil, base) {
			return b.superseded()
		}
		b.deleteLocal(ctx)
		return domain.RouteLoadResult{Kind: domain.NoActiveRoute}
	}

	if !ValidSnapshot(snap, b.userID) {
		log.Printf("sync: op=reconcile user=%s err=malformed remote snapshot", b.userID)
		return b.failed(errors.New("reconcile: malformed remote snapshot"))
	}
	if !b.controller.ApplyIfUnchanged(&snap, base) {
		return b.superseded()
	}

	if !snap.IsActive {
		b.deleteLocal(ctx)
		return domain.RouteLoadResult{Kind: domain.NoActiveRoute, Snapshot: &snap}
	}

	b.writeLocal(ctx, snap)
	return domain.RouteLoadResult{Kind: domain.ActiveRoute, Snapshot: &snap}
}

func (b *ProgressSyncBridge) superseded() domain.RouteLoadResult {
	log.Printf("sync: op=reconcile user=%s superseded=true", b.userID)
	snap := b.controller.Snapshot()
	if snap.IsActive {
		return domain.RouteLoadResult{Kind: domain.ActiveRoute, Snapshot: &snap}
	}
	return domain.RouteLoadResult{Kind: domain.NoActiveRoute, Snapshot: &snap}
}

func (b *ProgressSyncBridge) failed(err error) domain.RouteLoadResult {
	res := domain.RouteLoadResult{Kind: domain.LoadFailed, Err: err}
	if b.controller.IsActive() {
		snap := b.controller.Snapshot()
		res.Snapshot = &snap
	}
	return res
}

// Commit schedules the snapshot for the local cache and the Status Store.
// A snapshot older than one already committed is dropped, so concurrent
// callers cannot move the stores back behind the controller.
func (b *ProgressSyncBridge) Commit(snap domain.RouteProgressSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if snap.Revision < b.committedRev {
		return
	}
	b.committedRev = snap.Revision

	s := snap
	b.pendingLocal = &s
	if b.localTimer != nil {
		b.localTimer.Stop()
	}
	b.localTimer = time.AfterFunc(b.cfg.LocalDebounce, func() {
		b.flushLocal(context.Background())
	})

	b.pendingRemote = &s
	select {
	case b.remoteSignal <- struct{}{}:
	default:
	}
}

// Start runs the background remote writer until ctx ends or Close is called.
func (b *ProgressSyncBridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopWriter != nil {
		return
	}

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.stopWriter = cancel
	b.writerDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-wctx.Done():
				return
			case <-b.remoteSignal:
				_ = b.flushRemote(wctx)
			}
		}
	}()
}

// Flush writes any pending snapshot to both stores now.
// It returns the remote write error, if any.
func (b *ProgressSyncBridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.localTimer != nil {
		b.localTimer.Stop()
		b.localTimer = nil
	}
	b.mu.Unlock()

	b.flushLocal(ctx)
	return b.flushRemote(ctx)
}

func (b *ProgressSyncBridge) flushLocal(ctx context.Context) {
	b.localWriteMu.Lock()
	defer b.localWriteMu.Unlock()

	b.mu.Lock()
	snap := b.pendingLocal
	b.pendingLocal = nil
	b.mu.Unlock()

	if snap == nil {
		return
	}
	b.writeLocal(ctx, *snap)
}

func (b *ProgressSyncBridge) flushRemote(ctx context.Context) error {
	b.remoteWriteMu.Lock()
	defer b.remoteWriteMu.Unlock()

	b.mu.Lock()
	snap := b.pendingRemote
	b.pendingRemote = nil
	b.mu.Unlock()

	if snap == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, b.cfg.RemoteTimeout)
	defer cancel()

	err := b.remote.Write(wctx, b.userID, *snap)

	b.mu.Lock()
	b.lastRemoteErr = err
	b.mu.Unlock()

	if err != nil {
		log.Printf("sync: op=write_remote user=%s active=%t err=%v", b.userID, snap.IsActive, err)
		return fmt.Errorf("flush remote: %w", err)
	}
	return nil
}

// LastRemoteError returns the result of the most recent remote write.
func (b *ProgressSyncBridge) LastRemoteError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRemoteErr
}

func (b *ProgressSyncBridge) writeLocal(ctx context.Context, snap domain.RouteProgressSnapshot) {
	if b.local == nil {
		return
	}
	payload, err := encodeLocalSnapshot(snap, time.Now().UTC())
	if err != nil {
		log.Printf("sync: op=write_local user=%s err=%v", b.userID, err)
		return
	}
	if err := b.local.Put(ctx, b.localKey(), payload); err != nil {
		log.Printf("sync: op=write_local user=%s err=%v", b.userID, err)
	}
}

func (b *ProgressSyncBridge) deleteLocal(ctx context.Context) {
	if b.local == nil {
		return
	}
	if err := b.local.Delete(ctx, b.localKey()); err != nil {
		log.Printf("sync: op=delete_local user=%s err=%v", b.userID, err)
	}
}

// Clear drops the current snapshot everywhere. Ledger history is untouched.
func (b *ProgressSyncBridge) Clear(ctx context.Context) error {
	b.mu.Lock()
	if b.localTimer != nil {
		b.localTimer.Stop()
		b.localTimer = nil
	}
	b.pendingLocal = nil
	b.pendingRemote = nil
	b.mu.Unlock()

	b.controller.Reset()
	b.deleteLocal(ctx)

	cctx, cancel := context.WithTimeout(ctx, b.cfg.RemoteTimeout)
	defer cancel()
	if err := b.remote.Clear(cctx, b.userID); err != nil {
		return fmt.Errorf("clear status: %w", err)
	}
	return nil
}

// RecordPosition remembers the latest sample for the live push loop.
func (b *ProgressSyncBridge) RecordPosition(sample domain.PositionSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := sample
	b.lastPosition = &s
}

// StartLivePush pushes the latest position to the Status Store every
// PositionInterval until StopLivePush. Unchanged positions are not re-sent.
func (b *ProgressSyncBridge) StartLivePush(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopLive != nil {
		return
	}

	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.stopLive = cancel
	b.liveDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(b.cfg.PositionInterval)
		defer ticker.Stop()

		var lastSent *domain.PositionSample
		for {
			select {
			case <-lctx.Done():
				return
			case <-ticker.C:
				b.mu.Lock()
				pos := b.lastPosition
				b.mu.Unlock()
				if pos == nil || pos == lastSent {
					continue
				}

				pctx, pcancel := context.WithTimeout(lctx, b.cfg.RemoteTimeout)
				err := b.remote.PushPosition(pctx, b.userID, *pos)
				pcancel()
				if err != nil {
					log.Printf("sync: op=push_position user=%s err=%v", b.userID, err)
					continue
				}
				lastSent = pos
			}
		}
	}()
}

// StopLivePush stops the position loop and waits for it to exit.
func (b *ProgressSyncBridge) StopLivePush() {
	b.mu.Lock()
	cancel, done := b.stopLive, b.liveDone
	b.stopLive, b.liveDone = nil, nil
	b.lastPosition = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// LivePushRunning reports whether the position loop is active.
func (b *ProgressSyncBridge) LivePushRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopLive != nil
}

// Close stops background work and flushes pending snapshots.
func (b *ProgressSyncBridge) Close(ctx context.Context) error {
	b.StopLivePush()

	b.mu.Lock()
	cancel, done := b.stopWriter, b.writerDone
	b.stopWriter, b.writerDone = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	return b.Flush(ctx)
}

func encodeLocalSnapshot(snap domain.RouteProgressSnapshot, savedAt time.Time) ([]byte, error) {
	payload, err := json.Marshal(snapshotEnvelope{
		Version:  domain.SnapshotVersion,
		UserID:   snap.UserID,
		SavedAt:  savedAt,
		Snapshot: snap,
	})
	if err != nil {
		return nil, fmt.Errorf("encode local snapshot: %w", err)
	}
	return payload, nil
}

func decodeLocalSnapshot(payload []byte, userID string) (domain.RouteProgressSnapshot, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.RouteProgressSnapshot{}, fmt.Errorf("decode local snapshot: %w", err)
	}
	if env.Version < 1 || env.Version > domain.SnapshotVersion {
		return domain.RouteProgressSnapshot{}, fmt.Errorf("decode local snapshot: unsupported version %d", env.Version)
	}
	if env.UserID != userID || env.Snapshot.UserID != userID {
		return domain.RouteProgressSnapshot{}, fmt.Errorf("decode local snapshot: belongs to user %q", env.UserID)
	}
	return env.Snapshot, nil
}
