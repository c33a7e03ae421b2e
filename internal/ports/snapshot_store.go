package ports

import "context"

// Port: fast local key-value cache for serialized snapshots, scoped by key.
// Get reports ok=false when nothing is stored.
type LocalSnapshotStore interface {
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}
