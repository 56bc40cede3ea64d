package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/oscelab/simcore/go/internal/session"
)

// RejectReason is the admission failure code exposed to a connecting
// client before the WebSocket upgrade.
type RejectReason string

const (
	RejectMalformedHandshake RejectReason = "MalformedHandshake"
	RejectSessionNotFound    RejectReason = "SessionNotFound"
	RejectStationMismatch    RejectReason = "StationMismatch"
)

// Handshake is the connection payload presented as query parameters.
type Handshake struct {
	SessionID     string
	ParticipantID string
	Role          session.Role
	StationID     string
	Nickname      string
}

// Handler validates handshakes against the registry and hands admitted
// connections to the connection manager.
type Handler struct {
	registry          *session.Registry
	connectionManager *ConnectionManager
}

// NewHandler creates a WebSocket handshake handler.
func NewHandler(registry *session.Registry, cm *ConnectionManager) *Handler {
	return &Handler{
		registry:          registry,
		connectionManager: cm,
	}
}

// HandleSessionConnection admits or rejects one WebSocket connection.
// Rejections happen before the upgrade with a reason code, never a
// silent drop.
func (h *Handler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	hs, err := parseHandshake(r)
	if err != nil {
		log.Debug().Err(err).Msg("rejected malformed handshake")
		writeReject(w, http.StatusBadRequest, RejectMalformedHandshake, err.Error())
		return
	}

	room, err := h.registry.Get(hs.SessionID)
	if err != nil {
		writeReject(w, http.StatusNotFound, RejectSessionNotFound, "no such session")
		return
	}

	if room.StationID() != hs.StationID {
		log.Debug().
			Str("session_id", hs.SessionID).
			Str("session_station", room.StationID()).
			Str("handshake_station", hs.StationID).
			Msg("rejected handshake for wrong station")
		writeReject(w, http.StatusConflict, RejectStationMismatch, "session belongs to a different station")
		return
	}

	if err := h.connectionManager.Admit(w, r, room, hs); err != nil {
		log.Error().
			Err(err).
			Str("session_id", hs.SessionID).
			Str("participant_id", hs.ParticipantID).
			Msg("failed to admit WebSocket connection")
		// Upgrade failures already wrote to the response.
	}
}

// HandleConnectionStats reports active connection counts.
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, sessions := h.connectionManager.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": total,
		"active_sessions":   sessions,
	})
}

// RegisterRoutes registers the WebSocket routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

func parseHandshake(r *http.Request) (Handshake, error) {
	q := r.URL.Query()
	hs := Handshake{
		SessionID:     q.Get("session_id"),
		ParticipantID: q.Get("participant_id"),
		Role:          session.Role(q.Get("role")),
		StationID:     q.Get("station_id"),
		Nickname:      q.Get("nickname"),
	}

	switch {
	case hs.SessionID == "":
		return Handshake{}, fmt.Errorf("session_id is required")
	case hs.ParticipantID == "":
		return Handshake{}, fmt.Errorf("participant_id is required")
	case hs.StationID == "":
		return Handshake{}, fmt.Errorf("station_id is required")
	case !hs.Role.Valid():
		return Handshake{}, fmt.Errorf("unknown role %q", hs.Role)
	}

	if hs.Nickname == "" {
		hs.Nickname = hs.ParticipantID
	}
	return hs, nil
}

func writeReject(w http.ResponseWriter, status int, reason RejectReason, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"reason": string(reason),
		"detail": detail,
	})
}
