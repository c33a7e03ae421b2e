package obs

import (
	"context"
	"log"
	"time"
)

type ctxKey string

const (
	RequestIDKey ctxKey = "req_id"
	UserIDKey    ctxKey = "user_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithUser tags ctx so background work for a field user can be traced
// without a request id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// Time logs the duration of an operation and its error, if any. Use as
// defer obs.Time(ctx, "op")(&err) with a named error result.
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	reqID, _ := ctx.Value(RequestIDKey).(string)
	if reqID == "" {
		reqID = "-"
	}
	user, _ := ctx.Value(UserIDKey).(string)
	if user == "" {
		user = "-"
	}

	return func(errp *error) {
		ms := time.Since(start).Milliseconds()

		if errp != nil && *errp != nil {
			log.Printf("req_id=%s user=%s op=%s dur=%dms err=%v", reqID, user, name, ms, *errp)
			return
		}
		log.Printf("req_id=%s user=%s op=%s dur=%dms", reqID, user, name, ms)
	}
}
