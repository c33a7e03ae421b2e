package redisstore

import (
	"context"
	"field-visit-service/internal/domain"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStatusStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStatusStore(client), mr
}

func TestRedisStatusStoreWriteReadClear(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if _, found, err := store.Read(ctx, "tech-1"); err != nil || found {
		t.Fatalf("read empty: found=%t err=%v", found, err)
	}

	snap := domain.RouteProgressSnapshot{
		UserID:       "tech-1",
		Route:        domain.Route{ID: "route-1", Stops: []domain.Stop{{ID: "s1", Location: domain.Coordinates{Lat: 1, Lon: 2}}}},
		CurrentIndex: 0,
		IsActive:     true,
		UpdatedAt:    time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	if err := store.Write(ctx, "tech-1", snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !mr.Exists("fieldvisit:status:tech-1") {
		t.Fatal("status key not written")
	}

	got, found, err := store.Read(ctx, "tech-1")
	if err != nil || !found {
		t.Fatalf("read: found=%t err=%v", found, err)
	}
	if got.Route.ID != "route-1" || !got.IsActive || !got.UpdatedAt.Equal(snap.UpdatedAt) {
		t.Fatalf("read snapshot = %+v", got)
	}

	if err := store.Clear(ctx, "tech-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := store.Read(ctx, "tech-1"); found {
		t.Fatal("snapshot survived clear")
	}
}

func TestRedisStatusStoreReadFailure(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	mr.Set("fieldvisit:status:tech-1", "{not json")
	if _, _, err := store.Read(ctx, "tech-1"); err == nil {
		t.Fatal("expected decode error")
	}

	mr.Close()
	if _, _, err := store.Read(ctx, "tech-1"); err == nil {
		t.Fatal("expected error with server down")
	}
}

func TestRedisStatusStorePositions(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	acc := 8.5
	at := time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC)
	near := domain.PositionSample{Coordinates: domain.Coordinates{Lat: 33.4484, Lon: -112.0740}, Timestamp: at, Accuracy: &acc}
	far := domain.PositionSample{Coordinates: domain.Coordinates{Lat: 34.0, Lon: -111.0}, Timestamp: at}

	if err := store.PushPosition(ctx, "tech-1", near); err != nil {
		t.Fatalf("push tech-1: %v", err)
	}
	if err := store.PushPosition(ctx, "tech-2", far); err != nil {
		t.Fatalf("push tech-2: %v", err)
	}

	got, ok, err := store.LastPosition(ctx, "tech-1")
	if err != nil || !ok {
		t.Fatalf("last position: ok=%t err=%v", ok, err)
	}
	if got.Lat != near.Lat || got.Lon != near.Lon || !got.Timestamp.Equal(at) || got.Accuracy == nil || *got.Accuracy != acc {
		t.Fatalf("last position = %+v", got)
	}

	users, err := store.UsersNear(ctx, domain.Coordinates{Lat: 33.4490, Lon: -112.0745}, 1000)
	if err != nil {
		t.Fatalf("users near: %v", err)
	}
	if len(users) != 1 || users[0] != "tech-1" {
		t.Fatalf("users near = %v, want [tech-1]", users)
	}
}

func TestRedisStatusStoreClearDropsLivePosition(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	at := time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC)
	pos := domain.PositionSample{Coordinates: domain.Coordinates{Lat: 33.4484, Lon: -112.0740}, Timestamp: at}
	if err := store.PushPosition(ctx, "tech-1", pos); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := store.PushPosition(ctx, "tech-2", pos); err != nil {
		t.Fatalf("push tech-2: %v", err)
	}

	if err := store.Clear(ctx, "tech-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if mr.Exists("fieldvisit:position:tech-1") {
		t.Fatal("position hash survived clear")
	}
	if _, ok, err := store.LastPosition(ctx, "tech-1"); err != nil || ok {
		t.Fatalf("last position after clear: ok=%t err=%v", ok, err)
	}
	users, err := store.UsersNear(ctx, pos.Coordinates, 500)
	if err != nil {
		t.Fatalf("users near: %v", err)
	}
	if len(users) != 1 || users[0] != "tech-2" {
		t.Fatalf("users near after clear = %v, want [tech-2]", users)
	}
}
