package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/obs"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix   = "fieldvisit:status:"
	positionKeyPrefix = "fieldvisit:position:"
	positionsGeoKey   = "fieldvisit:positions"
)

// RedisStatusStore implements the StatusStore port on Redis.
//
// Each user's snapshot is a JSON string key. Live positions are kept twice:
// a per-user hash with the latest fix, and one shared GEO set so observers
// can query who is near a point.
type RedisStatusStore struct {
	client *redis.Client
}

func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client}
}

func statusKey(userID string) string   { return statusKeyPrefix + userID }
func positionKey(userID string) string { return positionKeyPrefix + userID }

func (s *RedisStatusStore) Write(ctx context.Context, userID string, snap domain.RouteProgressSnapshot) (err error) {
	defer obs.Time(ctx, "status.redis.Write")(&err)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("write status user=%s: encode snapshot: %w", userID, err)
	}
	if err := s.client.Set(ctx, statusKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("write status user=%s: %w", userID, err)
	}
	return nil
}

func (s *RedisStatusStore) Read(ctx context.Context, userID string) (_ domain.RouteProgressSnapshot, _ bool, err error) {
	defer obs.Time(ctx, "status.redis.Read")(&err)

	payload, err := s.client.Get(ctx, statusKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RouteProgressSnapshot{}, false, nil
	}
	if err != nil {
		return domain.RouteProgressSnapshot{}, false, fmt.Errorf("read status user=%s: %w", userID, err)
	}

	var snap domain.RouteProgressSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.RouteProgressSnapshot{}, false, fmt.Errorf("read status user=%s: decode snapshot: %w", userID, err)
	}
	return snap, true, nil
}

// Clear drops the snapshot and the live position, so the user also leaves
// proximity results.
func (s *RedisStatusStore) Clear(ctx context.Context, userID string) (err error) {
	defer obs.Time(ctx, "status.redis.Clear")(&err)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, statusKey(userID), positionKey(userID))
	pipe.ZRem(ctx, positionsGeoKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear status user=%s: %w", userID, err)
	}
	return nil
}

func (s *RedisStatusStore) PushPosition(ctx context.Context, userID string, sample domain.PositionSample) (err error) {
	defer obs.Time(ctx, "status.redis.PushPosition")(&err)

	fields := map[string]any{
		"lat":         strconv.FormatFloat(sample.Lat, 'f', -1, 64),
		"lon":         strconv.FormatFloat(sample.Lon, 'f', -1, 64),
		"recorded_at": sample.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if sample.Accuracy != nil {
		fields["accuracy"] = strconv.FormatFloat(*sample.Accuracy, 'f', -1, 64)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, positionKey(userID), fields)
	if sample.Accuracy == nil {
		pipe.HDel(ctx, positionKey(userID), "accuracy")
	}
	pipe.GeoAdd(ctx, positionsGeoKey, &redis.GeoLocation{
		Name:      userID,
		Longitude: sample.Lon,
		Latitude:  sample.Lat,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push position user=%s: %w", userID, err)
	}
	return nil
}

// LastPosition returns the most recently pushed fix for a user.
func (s *RedisStatusStore) LastPosition(ctx context.Context, userID string) (domain.PositionSample, bool, error) {
	vals, err := s.client.HGetAll(ctx, positionKey(userID)).Result()
	if err != nil {
		return domain.PositionSample{}, false, fmt.Errorf("last position user=%s: %w", userID, err)
	}
	if len(vals) == 0 {
		return domain.PositionSample{}, false, nil
	}

	var sample domain.PositionSample
	if sample.Lat, err = strconv.ParseFloat(vals["lat"], 64); err != nil {
		return domain.PositionSample{}, false, fmt.Errorf("last position user=%s: parse lat: %w", userID, err)
	}
	if sample.Lon, err = strconv.ParseFloat(vals["lon"], 64); err != nil {
		return domain.PositionSample{}, false, fmt.Errorf("last position user=%s: parse lon: %w", userID, err)
	}
	if sample.Timestamp, err = time.Parse(time.RFC3339Nano, vals["recorded_at"]); err != nil {
		return domain.PositionSample{}, false, fmt.Errorf("last position user=%s: parse recorded_at: %w", userID, err)
	}
	if v, ok := vals["accuracy"]; ok {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.PositionSample{}, false, fmt.Errorf("last position user=%s: parse accuracy: %w", userID, err)
		}
		sample.Accuracy = &acc
	}
	return sample, true, nil
}

// UsersNear lists users whose last pushed position is within radiusMeters
// of center, nearest first.
func (s *RedisStatusStore) UsersNear(ctx context.Context, center domain.Coordinates, radiusMeters float64) ([]string, error) {
	locs, err := s.client.GeoRadius(ctx, positionsGeoKey, center.Lon, center.Lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters,
		Unit:   "m",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("users near: %w", err)
	}

	users := make([]string, 0, len(locs))
	for _, l := range locs {
		users = append(users, l.Name)
	}
	return users, nil
}
