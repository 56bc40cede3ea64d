package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every outbound session event.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType enumerates the closed set of outbound event kinds.
type EventType string

const (
	EventTypeSnapshot                EventType = "Snapshot"
	EventTypeRosterChanged           EventType = "RosterChanged"
	EventTypeTimerStarted            EventType = "TimerStarted"
	EventTypeTimerTick               EventType = "TimerTick"
	EventTypeTimerPaused             EventType = "TimerPaused"
	EventTypeTimerResumed            EventType = "TimerResumed"
	EventTypeTimerExpired            EventType = "TimerExpired"
	EventTypeChecklistItemUpdated    EventType = "ChecklistItemUpdated"
	EventTypeMaterialRevealed        EventType = "MaterialRevealed"
	EventTypeParticipantDisconnected EventType = "ParticipantDisconnected"
	EventTypeParticipantReconnected  EventType = "ParticipantReconnected"
	EventTypeParticipantEvicted      EventType = "ParticipantEvicted"
	EventTypeSessionEnded            EventType = "SessionEnded"
	EventTypeCommandAck              EventType = "CommandAck"
)

// RosterChangedPayload announces a join, reconnect-replace or leave to
// the participants already in the room.
type RosterChangedPayload struct {
	Roster []Participant `json:"roster"`
}

// TimerStartedPayload is emitted once when the countdown begins.
type TimerStartedPayload struct {
	Mode         TimerMode `json:"mode"`
	RemainingSec int       `json:"remaining_sec"`
	StartedAt    time.Time `json:"started_at"`
}

// TimerTickPayload carries the per-second timer value.
type TimerTickPayload struct {
	RemainingSec int       `json:"remaining_sec"`
	ElapsedSec   int       `json:"elapsed_sec"`
	TickedAt     time.Time `json:"ticked_at"`
}

// TimerPausedPayload records which cause stopped the clock. Running is
// false here by definition but kept so pause and resume share a shape.
type TimerPausedPayload struct {
	Cause        PauseCause `json:"cause"`
	RemainingSec int        `json:"remaining_sec"`
	Running      bool       `json:"running"`
}

// TimerResumedPayload records which cause was cleared. Running is false
// when another pause cause is still outstanding.
type TimerResumedPayload struct {
	Cause        PauseCause `json:"cause"`
	RemainingSec int        `json:"remaining_sec"`
	Running      bool       `json:"running"`
}

// TimerExpiredPayload is emitted once when a down-mode timer hits zero.
type TimerExpiredPayload struct {
	ExpiredAt time.Time `json:"expired_at"`
}

// ChecklistItemUpdatedPayload mirrors an applied evaluation.
type ChecklistItemUpdatedPayload struct {
	ItemID     string     `json:"item_id"`
	Evaluation Evaluation `json:"evaluation"`
	Score      float64    `json:"score"`
	UpdatedBy  string     `json:"updated_by"`
}

// MaterialRevealedPayload mirrors an unlocked reference material.
type MaterialRevealedPayload struct {
	MaterialID string `json:"material_id"`
	RevealedBy string `json:"revealed_by"`
}

// ParticipantDisconnectedPayload opens a tolerance window on a required
// participant's drop. ToleranceSec is 0 for non-required roles.
type ParticipantDisconnectedPayload struct {
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
	ToleranceSec  int    `json:"tolerance_sec"`
}

// ParticipantReconnectedPayload closes a tolerance window.
type ParticipantReconnectedPayload struct {
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
}

// ParticipantEvictedPayload reports a tolerance window that ran out.
type ParticipantEvictedPayload struct {
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
}

// SessionEndedPayload is terminal; Reason is "time-over" or "manual".
type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

// CommandAckPayload is sent to the issuing connection only, for commands
// that were rejected (authorization, malformed payload) or ignored
// (session already over). Applied commands are acknowledged implicitly
// by their broadcast effect.
type CommandAckPayload struct {
	Command string `json:"command"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// NewEvent wraps a payload into an Event envelope. Marshalling the
// payload cannot fail for the closed payload set above.
func NewEvent(sessionID string, typ EventType, at time.Time, payload any) *Event {
	data, _ := json.Marshal(payload)
	return &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}
}

// EventSink receives events emitted by a room. The gateway implements it
// over WebSocket connection pools; tests implement it with slices.
type EventSink interface {
	// Publish delivers the event to every online connection of the session.
	Publish(sessionID string, event *Event)
	// PublishTo delivers the event to a single connection.
	PublishTo(sessionID, connectionID string, event *Event)
	// PublishExcept delivers the event to every online connection of the
	// session except one (the one that triggered it).
	PublishExcept(sessionID, connectionID string, event *Event)
}

// Broadcaster is the subset of EventSink a mirror (e.g. the NATS relay)
// implements; sender-targeted events are never mirrored.
type Broadcaster interface {
	Publish(sessionID string, event *Event)
}

// FanoutSink forwards broadcasts to the primary sink and every mirror.
// Sender-targeted events go to the primary sink only.
type FanoutSink struct {
	Primary EventSink
	Mirrors []Broadcaster
}

func (f *FanoutSink) Publish(sessionID string, event *Event) {
	f.Primary.Publish(sessionID, event)
	for _, m := range f.Mirrors {
		m.Publish(sessionID, event)
	}
}

func (f *FanoutSink) PublishTo(sessionID, connectionID string, event *Event) {
	f.Primary.PublishTo(sessionID, connectionID, event)
}

func (f *FanoutSink) PublishExcept(sessionID, connectionID string, event *Event) {
	f.Primary.PublishExcept(sessionID, connectionID, event)
	for _, m := range f.Mirrors {
		m.Publish(sessionID, event)
	}
}
