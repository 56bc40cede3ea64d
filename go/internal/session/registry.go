package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned for lookups of unknown or already
// destroyed sessions.
var ErrSessionNotFound = errors.New("session not found")

// Registry owns the mapping from session token to room. It is process
// memory only: an empty registry after restart is the accepted
// durability boundary, not a defect.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	clock clockwork.Clock
	cfg   Config
	sink  EventSink
}

// NewRegistry builds an empty registry. All rooms it creates share the
// given clock, config and event sink.
func NewRegistry(clock clockwork.Clock, cfg Config, sink EventSink) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		clock: clock,
		cfg:   cfg,
		sink:  sink,
	}
}

// Create registers a session and starts its room. A duration outside
// the allowed set falls back to the default rather than failing;
// creation is deliberately lenient. A duplicate token is an error.
func (r *Registry) Create(sessionID, stationID, checklistID string, durationMin int, mode TimerMode) (*Room, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if mode != TimerModeUp {
		mode = TimerModeDown
	}
	if !r.durationAllowed(durationMin) {
		log.Debug().
			Str("session_id", sessionID).
			Int("requested_min", durationMin).
			Int("default_min", r.cfg.DefaultDurationMin).
			Msg("duration outside allowed set, using default")
		durationMin = r.cfg.DefaultDurationMin
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[sessionID]; exists {
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}

	room := NewRoom(sessionID, stationID, checklistID, durationMin, mode, r.clock, r.cfg, r.sink, r.Remove)
	r.rooms[sessionID] = room
	room.Start()
	return room, nil
}

// Get looks up a live session.
func (r *Registry) Get(sessionID string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return room, nil
}

// Remove drops a session and stops its room, cancelling its pending
// ticks and tolerance checks. Unknown ids are a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	room, ok := r.rooms[sessionID]
	if ok {
		delete(r.rooms, sessionID)
	}
	r.mu.Unlock()

	if ok {
		room.Stop()
		log.Info().Str("session_id", sessionID).Msg("session removed from registry")
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) durationAllowed(min int) bool {
	for _, d := range r.cfg.AllowedDurationsMin {
		if d == min {
			return true
		}
	}
	return false
}
