package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oscelab/simcore/go/internal/session"
	"github.com/oscelab/simcore/go/internal/station"
)

// SessionHandler exposes the HTTP surface for creating sessions and
// reading their state. The session token minted here is opaque to the
// core; it only has to be collision resistant.
type SessionHandler struct {
	registry *session.Registry
	catalog  station.Repository
}

// NewSessionHandler creates the session HTTP handler.
func NewSessionHandler(registry *session.Registry, catalog station.Repository) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		catalog:  catalog,
	}
}

// CreateSessionRequest is the POST /api/sessions body.
type CreateSessionRequest struct {
	StationID       string `json:"stationId"`
	ChecklistID     string `json:"checklistId"`
	DurationMinutes int    `json:"durationMinutes"`
	TimerMode       string `json:"timerMode"`
}

// CreateSessionResponse carries the minted session token.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// HandleCreateSession validates the station and checklist against the
// catalog and registers a new session. An out-of-set duration falls
// back to the default instead of erroring.
func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StationID == "" || req.ChecklistID == "" {
		http.Error(w, "stationId and checklistId are required", http.StatusBadRequest)
		return
	}

	if _, err := h.catalog.GetStation(r.Context(), req.StationID); err != nil {
		if errors.Is(err, station.ErrNotFound) {
			http.Error(w, "unknown stationId", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("station_id", req.StationID).Msg("station catalog lookup failed")
		http.Error(w, "station catalog unavailable", http.StatusBadGateway)
		return
	}
	if _, err := h.catalog.GetChecklist(r.Context(), req.ChecklistID); err != nil {
		if errors.Is(err, station.ErrNotFound) {
			http.Error(w, "unknown checklistId", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("checklist_id", req.ChecklistID).Msg("checklist catalog lookup failed")
		http.Error(w, "station catalog unavailable", http.StatusBadGateway)
		return
	}

	sessionID := uuid.New().String()
	if _, err := h.registry.Create(sessionID, req.StationID, req.ChecklistID, req.DurationMinutes, session.TimerMode(req.TimerMode)); err != nil {
		log.Error().Err(err).Msg("failed to create session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("session_id", sessionID).
		Str("station_id", req.StationID).
		Str("checklist_id", req.ChecklistID).
		Msg("session created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateSessionResponse{SessionID: sessionID})
}

// HandleGetSession returns the current snapshot, including the final
// summary of a finished session while it lingers in the registry.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	room, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	snap, err := room.Snapshot()
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// RegisterRoutes registers the session API routes on the mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
}
