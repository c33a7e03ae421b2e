package api

import (
	"field-visit-service/internal/api/handlers"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"field-visit-service/internal/services"
	"net/http"
)

// Deps are the collaborators the HTTP layer needs. Nearby and Geocoder may be nil.
type Deps struct {
	Registry  *services.Registry
	Positions handlers.PositionPublisher
	Nearby    handlers.NearbyFinder
	Geocoder  ports.Geocoder
	Ledger    ports.WorkLedger
	Schedule  domain.WeeklySchedule
	Clock     ports.Clock
	Checks    map[string]handlers.HealthCheck
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	healthHandler := &handlers.HealthHandler{Checks: deps.Checks}
	routeHandler := &handlers.RouteHandler{
		Registry: deps.Registry,
		Geocoder: deps.Geocoder,
		Clock:    deps.Clock,
	}
	positionHandler := &handlers.PositionHandler{
		Registry:  deps.Registry,
		Publisher: deps.Positions,
		Nearby:    deps.Nearby,
		Clock:     deps.Clock,
	}
	reportHandler := &handlers.ReportHandler{Ledger: deps.Ledger, Schedule: deps.Schedule}

	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/routes/start", routeHandler.Start)
	mux.HandleFunc("/routes/arrive", routeHandler.Arrive)
	mux.HandleFunc("/routes/complete", routeHandler.Complete)
	mux.HandleFunc("/routes/cancel", routeHandler.Cancel)
	mux.HandleFunc("/routes/clear", routeHandler.Clear)
	mux.HandleFunc("/routes/status", routeHandler.Status)
	mux.HandleFunc("/positions", positionHandler.Report)
	mux.HandleFunc("/positions/near", positionHandler.Near)
	mux.HandleFunc("/reports/summary", reportHandler.Summary)

	return loggingMiddleware(mux)
}
