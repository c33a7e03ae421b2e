package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness plus the state of each named dependency.
// A failing dependency turns the response into 503 so load balancers can
// drain the instance.
type HealthHandler struct {
	Checks map[string]HealthCheck
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	res := map[string]any{"status": "ok", "dependencies": deps}
	if status != http.StatusOK {
		res["status"] = "degraded"
	}
	writeJSON(w, r, status, res)
}
