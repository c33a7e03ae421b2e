package domain

import "errors"

var (
	ErrEmptyRoute        = errors.New("route has no stops")
	ErrRouteActive       = errors.New("a route is already active")
	ErrNoActiveRoute     = errors.New("no active route")
	ErrInvalidTransition = errors.New("invalid visit transition")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrMissingLocation   = errors.New("stop has no coordinates")
)
