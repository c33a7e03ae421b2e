package handlers

import (
	"errors"
	"field-visit-service/internal/api/dto"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"field-visit-service/internal/services"
	"log"
	"net/http"
	"strings"
	"time"
)

type RouteHandler struct {
	Registry *services.Registry
	Geocoder ports.Geocoder
	Clock    ports.Clock
}

func (h *RouteHandler) now(at *time.Time) time.Time {
	if at != nil {
		return *at
	}
	if h.Clock != nil {
		return h.Clock.Now()
	}
	return time.Now().UTC()
}

// dispatcher resolves the caller's Dispatcher or writes a 400.
func (h *RouteHandler) dispatcher(w http.ResponseWriter, r *http.Request, userID string) (*services.Dispatcher, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return nil, false
	}
	d, err := h.Registry.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return d, true
}

// Start begins a route. Stops without coordinates are geocoded by address.
func (h *RouteHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.StartRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RouteID) == "" {
		writeError(w, r, http.StatusBadRequest, "route_id is required")
		return
	}
	if len(req.Stops) == 0 {
		writeError(w, r, http.StatusBadRequest, "stops must not be empty")
		return
	}

	stops := make([]services.PendingStop, 0, len(req.Stops))
	seen := make(map[string]struct{}, len(req.Stops))
	for _, s := range req.Stops {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "every stop needs an id")
			return
		}
		if _, dup := seen[id]; dup {
			writeError(w, r, http.StatusBadRequest, "duplicate stop id "+id)
			return
		}
		seen[id] = struct{}{}

		stop := domain.Stop{ID: id, Name: s.Name, Address: s.Address, Attributes: s.Attributes}
		if (s.Latitude == nil) != (s.Longitude == nil) {
			writeError(w, r, http.StatusBadRequest, "latitude and longitude must be given together")
			return
		}
		if s.Latitude != nil {
			stop.Location = domain.Coordinates{Lat: *s.Latitude, Lon: *s.Longitude}
			if !validCoordinates(stop.Location) {
				writeError(w, r, http.StatusBadRequest, "stop coordinates out of range")
				return
			}
		}
		stops = append(stops, services.PendingStop{Stop: stop, Located: s.Latitude != nil})
	}

	d, ok := h.dispatcher(w, r, req.UserID)
	if !ok {
		return
	}

	resolved, err := services.ResolveStops(r.Context(), h.Geocoder, stops)
	if errors.Is(err, domain.ErrMissingLocation) {
		writeDomainError(w, r, err)
		return
	}
	if err != nil {
		log.Printf("geocode stops failed: route=%s err=%v", req.RouteID, err)
		writeError(w, r, http.StatusBadGateway, "geocoding failed")
		return
	}

	route := domain.Route{ID: strings.TrimSpace(req.RouteID), Stops: resolved}
	if err := d.StartRoute(r.Context(), route, h.now(req.StartTime)); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, statusResponse(d.View()))
}

// Arrive confirms arrival at the current stop and starts work.
func (h *RouteHandler) Arrive(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, ok := h.dispatcher(w, r, req.UserID)
	if !ok {
		return
	}

	travel, err := d.ConfirmArrival(r.Context(), h.now(req.At))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.ArriveResponse{TravelMinutes: travel, Status: statusResponse(d.View())})
}

// Complete finishes work at the current stop.
func (h *RouteHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, ok := h.dispatcher(w, r, req.UserID)
	if !ok {
		return
	}

	rec, err := d.CompleteStop(r.Context(), h.now(req.At))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.CompleteResponse{Record: recordResponse(*rec), Status: statusResponse(d.View())})
}

func (h *RouteHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, ok := h.dispatcher(w, r, req.UserID)
	if !ok {
		return
	}

	if err := d.Cancel(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, statusResponse(d.View()))
}

// Clear drops stored progress for a user with no active route.
func (h *RouteHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, ok := h.dispatcher(w, r, req.UserID)
	if !ok {
		return
	}

	if err := d.Clear(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, statusResponse(d.View()))
}

// Status reports the restored load result and the live progress.
func (h *RouteHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	d, ok := h.dispatcher(w, r, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}

	res := d.Resume(r.Context())
	out := dto.ResumeResponse{Result: res.Kind.String(), Status: statusResponse(d.View())}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	writeJSON(w, r, http.StatusOK, out)
}

func validCoordinates(c domain.Coordinates) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func statusResponse(v services.ProgressView) dto.RouteStatusResponse {
	snap := v.Snapshot
	out := dto.RouteStatusResponse{
		UserID:            snap.UserID,
		RouteID:           snap.Route.ID,
		IsActive:          snap.IsActive,
		CurrentIndex:      snap.CurrentIndex,
		StopCount:         snap.Route.Len(),
		State:             string(v.State),
		IsNearby:          v.IsNearby,
		DistanceMeters:    v.DistanceMeters,
		ArrivalTime:       snap.Visit.ArrivalTime,
		WorkStartTime:     snap.Visit.WorkStartTime,
		LegStartTime:      snap.LegStartTime,
		LastTravelMinutes: snap.LastTravelMinutes,
		Totals: dto.TotalsResponse{
			TravelMinutes:  snap.Totals.TravelMinutes,
			WorkMinutes:    snap.Totals.WorkMinutes,
			CompletedCount: snap.Totals.CompletedCount,
		},
		Completed: make([]dto.VisitRecordResponse, 0, len(snap.Completed)),
	}

	if stop, ok := snap.CurrentStop(); ok {
		out.CurrentStop = &dto.StopResponse{
			ID:         stop.ID,
			Name:       stop.Name,
			Address:    stop.Address,
			Latitude:   stop.Location.Lat,
			Longitude:  stop.Location.Lon,
			Attributes: stop.Attributes,
		}
	}
	for _, rec := range snap.Completed {
		out.Completed = append(out.Completed, recordResponse(rec))
	}
	if !snap.UpdatedAt.IsZero() {
		t := snap.UpdatedAt
		out.UpdatedAt = &t
	}

	return out
}

func recordResponse(rec domain.CompletedVisitRecord) dto.VisitRecordResponse {
	return dto.VisitRecordResponse{
		ID:            rec.ID,
		RouteID:       rec.RouteID,
		StopID:        rec.StopID,
		StopName:      rec.StopName,
		DepartedAt:    rec.DepartedAt,
		ArrivedAt:     rec.ArrivedAt,
		CompletedAt:   rec.CompletedAt,
		TravelMinutes: rec.TravelMinutes,
		WorkMinutes:   rec.WorkMinutes,
	}
}
