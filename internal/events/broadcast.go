package events

import (
	"collab-service/internal/models"
)

// Server -> client payload shapes. Broadcasts carry the originating user id
// so peers can attribute the change without a second lookup.

type CursorBroadcast struct {
	UserID string  `json:"user_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type SelectionBroadcast struct {
	UserID    string `json:"user_id"`
	ElementID string `json:"element_id,omitempty"`
}

type ElementEditBroadcast struct {
	UserID    string `json:"user_id"`
	ElementID string `json:"element_id"`
	Editing   bool   `json:"editing"`
}

type DiagramUpdateBroadcast struct {
	UserID  string      `json:"user_id"`
	Payload interface{} `json:"payload"`
}

type ShapeBroadcast struct {
	UserID string       `json:"user_id"`
	Shape  ShapePayload `json:"shape"`
}

type TypingBroadcast struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

type ParticipantJoinedBroadcast struct {
	Participant *models.Participant `json:"participant"`
}

type ParticipantLeftBroadcast struct {
	UserID string `json:"user_id"`
}

type PresenceUpdateBroadcast struct {
	UserID string                `json:"user_id"`
	Status models.PresenceStatus `json:"status"`
}

type RoleChangedBroadcast struct {
	UserID    string      `json:"user_id"`
	Role      models.Role `json:"role"`
	ChangedBy string      `json:"changed_by"`
}

type HeartbeatAck struct {
	ClientTS int64 `json:"client_ts"`
	ServerTS int64 `json:"server_ts"`
}

type SyncResultPayload struct {
	Results []models.SyncResult `json:"results"`
}
