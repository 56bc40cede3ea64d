package session

import (
	"time"
)

// Role is the capacity in which a participant joins a session.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleActor     Role = "actor"
	RoleObserver  Role = "observer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCandidate, RoleActor, RoleObserver:
		return true
	}
	return false
}

// TimerMode selects whether the session timer counts down from the
// configured duration or counts up without bound.
type TimerMode string

const (
	TimerModeDown TimerMode = "down"
	TimerModeUp   TimerMode = "up"
)

// PauseCause distinguishes a pause requested by a participant from one
// the system imposed because a required participant dropped. Each cause
// is cleared independently; the timer runs only when neither is set.
type PauseCause string

const (
	PauseCauseManual     PauseCause = "manual"
	PauseCauseDisconnect PauseCause = "disconnect"
)

// Evaluation is the discrete grade an actor assigns to a checklist item.
type Evaluation string

const (
	EvaluationUnset      Evaluation = "unset"
	EvaluationInadequate Evaluation = "inadequate"
	EvaluationPartial    Evaluation = "partial"
	EvaluationAdequate   Evaluation = "adequate"
)

// Valid reports whether e is one of the known evaluation levels.
func (e Evaluation) Valid() bool {
	switch e {
	case EvaluationUnset, EvaluationInadequate, EvaluationPartial, EvaluationAdequate:
		return true
	}
	return false
}

// Participant is one human in a session. ParticipantID is stable across
// reconnects; ConnectionID changes every time they connect.
type Participant struct {
	ParticipantID  string     `json:"participant_id"`
	ConnectionID   string     `json:"connection_id"`
	Role           Role       `json:"role"`
	Nickname       string     `json:"nickname"`
	Online         bool       `json:"online"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// ItemState is the session-scoped evaluation overlay for one checklist
// item. The item definition itself lives in the station catalog.
type ItemState struct {
	Evaluation Evaluation `json:"evaluation"`
	Score      float64    `json:"score"`
}

// Snapshot is a consistent copy of all session state, synthesized for a
// joining or reconnecting participant instead of an event backlog.
type Snapshot struct {
	SessionID          string               `json:"session_id"`
	StationID          string               `json:"station_id"`
	ChecklistID        string               `json:"checklist_id"`
	CreatedAt          time.Time            `json:"created_at"`
	DurationMinutes    int                  `json:"duration_minutes"`
	TimerMode          TimerMode            `json:"timer_mode"`
	RemainingSec       int                  `json:"remaining_sec"`
	ElapsedSec         int                  `json:"elapsed_sec"`
	Started            bool                 `json:"started"`
	Over               bool                 `json:"over"`
	ManuallyPaused     bool                 `json:"manually_paused"`
	PausedByDisconnect bool                 `json:"paused_by_disconnect"`
	Roster             []Participant        `json:"roster"`
	Checklist          map[string]ItemState `json:"checklist"`
	RevealedMaterials  []string             `json:"revealed_materials"`
	// ToleranceSec is the smallest remaining grace window across the
	// currently disconnected required participants, 0 when none is open.
	ToleranceSec int `json:"tolerance_sec"`
}
