package handlers

import (
	"context"
	"errors"
	"field-visit-service/internal/api/dto"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"field-visit-service/internal/services"
	"net/http"
	"strconv"
	"strings"
)

// PositionPublisher accepts fixes reported over HTTP.
type PositionPublisher interface {
	Publish(userID string, update domain.PositionUpdate) int
}

// NearbyFinder answers "who is near this point" from pushed live positions.
type NearbyFinder interface {
	UsersNear(ctx context.Context, center domain.Coordinates, radiusMeters float64) ([]string, error)
}

type PositionHandler struct {
	Registry  *services.Registry
	Publisher PositionPublisher
	Nearby    NearbyFinder
	Clock     ports.Clock
}

// Report ingests one position fix for a user.
func (h *PositionHandler) Report(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.PositionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	var update domain.PositionUpdate
	if msg := strings.TrimSpace(req.Error); msg != "" {
		update.Err = errors.New(msg)
	} else {
		if req.Latitude == nil || req.Longitude == nil {
			writeError(w, r, http.StatusBadRequest, "latitude and longitude are required")
			return
		}
		c := domain.Coordinates{Lat: *req.Latitude, Lon: *req.Longitude}
		if !validCoordinates(c) {
			writeError(w, r, http.StatusBadRequest, "coordinates out of range")
			return
		}
		if req.Accuracy != nil && *req.Accuracy < 0 {
			writeError(w, r, http.StatusBadRequest, "accuracy must not be negative")
			return
		}

		sample := &domain.PositionSample{Coordinates: c, Accuracy: req.Accuracy}
		switch {
		case req.Timestamp != nil:
			sample.Timestamp = req.Timestamp.UTC()
		case h.Clock != nil:
			sample.Timestamp = h.Clock.Now()
		}
		update.Sample = sample
	}

	// Resuming first makes sure an active route is subscribed before the fix arrives.
	if h.Registry != nil {
		if _, err := h.Registry.Get(r.Context(), userID); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	n := h.Publisher.Publish(userID, update)
	writeJSON(w, r, http.StatusAccepted, dto.PositionResponse{Delivered: n})
}

// Near lists users whose last pushed position is within radius meters.
func (h *PositionHandler) Near(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.Nearby == nil {
		writeError(w, r, http.StatusNotImplemented, "proximity queries need the redis status backend")
		return
	}

	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("longitude"), 64)
	if errLat != nil || errLon != nil || !validCoordinates(domain.Coordinates{Lat: lat, Lon: lon}) {
		writeError(w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	radius := 1000.0
	if v := q.Get("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > 50000 {
			writeError(w, r, http.StatusBadRequest, "radius must be between 0 and 50000 meters")
			return
		}
		radius = parsed
	}

	users, err := h.Nearby.UsersNear(r.Context(), domain.Coordinates{Lat: lat, Lon: lon}, radius)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if users == nil {
		users = []string{}
	}

	writeJSON(w, r, http.StatusOK, dto.NearbyResponse{UserIDs: users})
}
