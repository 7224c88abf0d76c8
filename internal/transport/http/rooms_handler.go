package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/app"
	"room-event-service/internal/domain"
)

// RoomsHandler serves read-only room projections over HTTP.
type RoomsHandler struct {
	analytics *app.AnalyticsService
	rooms     *app.RoomQueryService
	log       zerolog.Logger
}

func NewRoomsHandler(analytics *app.AnalyticsService, rooms *app.RoomQueryService, log zerolog.Logger) *RoomsHandler {
	return &RoomsHandler{analytics: analytics, rooms: rooms, log: log}
}

// Register mounts the room routes on mux.
func (h *RoomsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /rooms/{roomId}/analytics", h.Analytics)
	mux.HandleFunc("GET /rooms/{roomId}/state", h.State)
	mux.HandleFunc("GET /rooms/{roomId}/questions/{questionId}/windows", h.Windows)
}

func (h *RoomsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "roomId")
	if !ok {
		return
	}
	analytics, err := h.analytics.GetAnalytics(r.Context(), roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, analytics)
}

func (h *RoomsHandler) State(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "roomId")
	if !ok {
		return
	}
	state, err := h.rooms.State(r.Context(), roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *RoomsHandler) Windows(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "roomId")
	if !ok {
		return
	}
	questionID, ok := h.pathID(w, r, "questionId")
	if !ok {
		return
	}
	windows, err := h.rooms.ActiveWindows(r.Context(), roomID, questionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, windows)
}

func (h *RoomsHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		h.writeError(w, domain.Validation("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindStore:
		return http.StatusServiceUnavailable
	case domain.KindUnknownEventKind, domain.KindMalformedPayload, domain.KindDerivation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *RoomsHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("room request failed")
	}
	h.writeJSON(w, status, errorPayload{Kind: domain.KindOf(err).String(), Message: err.Error()})
}

func (h *RoomsHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug().Err(err).Msg("write response")
	}
}
