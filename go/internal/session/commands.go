package session

import (
	"encoding/json"
	"fmt"
)

// CommandType enumerates the closed set of inbound client commands.
type CommandType string

const (
	CommandStartTimer          CommandType = "StartTimer"
	CommandPauseTimer          CommandType = "PauseTimer"
	CommandResumeTimer         CommandType = "ResumeTimer"
	CommandUpdateChecklistItem CommandType = "UpdateChecklistItem"
	CommandRevealMaterial      CommandType = "RevealMaterial"
	CommandEndSession          CommandType = "EndSession"
)

// ClientCommand is the decoded form of one inbound WebSocket message.
// Exactly one of the payload fields is non-nil, matching Type.
type ClientCommand struct {
	Type      CommandType
	Checklist *UpdateChecklistItemPayload
	Material  *RevealMaterialPayload
}

// UpdateChecklistItemPayload grades one checklist item.
type UpdateChecklistItemPayload struct {
	ItemID     string     `json:"item_id"`
	Evaluation Evaluation `json:"evaluation"`
	Score      float64    `json:"score"`
}

// RevealMaterialPayload unlocks one reference material for the room.
type RevealMaterialPayload struct {
	MaterialID string `json:"material_id"`
}

type commandEnvelope struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeClientCommand parses a raw inbound message into a ClientCommand.
// Unknown types and malformed payloads are errors; the caller answers
// them with a sender-only rejection ack, never a broadcast.
func DecodeClientCommand(raw []byte) (ClientCommand, error) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientCommand{}, fmt.Errorf("decode command envelope: %w", err)
	}

	cmd := ClientCommand{Type: env.Type}
	switch env.Type {
	case CommandStartTimer, CommandPauseTimer, CommandResumeTimer, CommandEndSession:
		return cmd, nil

	case CommandUpdateChecklistItem:
		var p UpdateChecklistItemPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return ClientCommand{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		if p.ItemID == "" {
			return ClientCommand{}, fmt.Errorf("%s: item_id is required", env.Type)
		}
		if !p.Evaluation.Valid() {
			return ClientCommand{}, fmt.Errorf("%s: unknown evaluation %q", env.Type, p.Evaluation)
		}
		cmd.Checklist = &p
		return cmd, nil

	case CommandRevealMaterial:
		var p RevealMaterialPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return ClientCommand{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		if p.MaterialID == "" {
			return ClientCommand{}, fmt.Errorf("%s: material_id is required", env.Type)
		}
		cmd.Material = &p
		return cmd, nil

	default:
		return ClientCommand{}, fmt.Errorf("unknown command type %q", env.Type)
	}
}

// commandRoles maps each command to the roles allowed to issue it.
// Candidates are being examined; they control nothing.
var commandRoles = map[CommandType]map[Role]bool{
	CommandStartTimer:          {RoleActor: true, RoleObserver: true},
	CommandPauseTimer:          {RoleActor: true, RoleObserver: true},
	CommandResumeTimer:         {RoleActor: true, RoleObserver: true},
	CommandEndSession:          {RoleActor: true, RoleObserver: true},
	CommandUpdateChecklistItem: {RoleActor: true},
	CommandRevealMaterial:      {RoleActor: true},
}

// roleMayIssue reports whether role is authorized for the command.
func roleMayIssue(role Role, cmd CommandType) bool {
	return commandRoles[cmd][role]
}
