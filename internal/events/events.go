package events

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Type string

// Client -> server events.
const (
	TypeCursorMove      Type = "cursor_move"
	TypeSelectionChange Type = "selection_change"
	TypeElementEdit     Type = "element_edit"
	TypeDiagramUpdate   Type = "diagram_update"
	TypeDeltaUpdate     Type = "delta_update"
	TypeShapeCreated    Type = "shape_created"
	TypeShapeDeleted    Type = "shape_deleted"
	TypeTypingStatus    Type = "typing_status"
	TypeHeartbeat       Type = "heartbeat"
	TypeSetRole         Type = "set_role"
	TypeSyncOffline     Type = "sync_offline"
	TypeLeaveRoom       Type = "leave_room"
)

// Server -> client events.
const (
	TypeRoomSnapshot      Type = "room_snapshot"
	TypeParticipantJoined Type = "participant_joined"
	TypeParticipantLeft   Type = "participant_left"
	TypePresenceUpdate    Type = "presence_update"
	TypePermissionDenied  Type = "permission_denied"
	TypeRoleChanged       Type = "role_changed"
	TypeHeartbeatAck      Type = "heartbeat_ack"
	TypeSyncResult        Type = "sync_result"
	TypeError             Type = "error"
)

// Mutating reports whether the event changes diagram state and therefore
// requires edit permission. Cursor moves, selections and typing indicators
// are visibility-only and exempt.
func (t Type) Mutating() bool {
	switch t {
	case TypeElementEdit, TypeDiagramUpdate, TypeDeltaUpdate, TypeShapeCreated, TypeShapeDeleted:
		return true
	}
	return false
}

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CursorMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SelectionChangePayload struct {
	// Empty element id clears the selection.
	ElementID string `json:"element_id"`
}

type ElementEditPayload struct {
	ElementID string `json:"element_id" validate:"required"`
	Editing   bool   `json:"editing"`
}

type DiagramUpdatePayload struct {
	Document json.RawMessage `json:"document" validate:"required"`
}

type DeltaUpdatePayload struct {
	ElementID string                     `json:"element_id" validate:"required"`
	Fields    map[string]json.RawMessage `json:"fields" validate:"required,min=1"`
}

type ShapePayload struct {
	ShapeID string          `json:"shape_id" validate:"required"`
	Kind    string          `json:"kind,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type TypingStatusPayload struct {
	Typing bool `json:"typing"`
}

type HeartbeatPayload struct {
	ClientTS  int64 `json:"client_ts" validate:"required"`
	LatencyMS int64 `json:"latency_ms" validate:"gte=0"`
}

type SetRolePayload struct {
	TargetUserID string `json:"target_user_id" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=viewer editor admin"`
}

type OfflineOpPayload struct {
	Type     string          `json:"type" validate:"required"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
	OriginTS int64           `json:"origin_ts" validate:"required"`
}

type SyncOfflinePayload struct {
	Operations []OfflineOpPayload `json:"operations" validate:"max=100,dive"`
}

// Event is a decoded and validated inbound message. Payload holds the typed
// variant for the event's Type, or nil for payload-less events.
type Event struct {
	Type    Type
	Raw     json.RawMessage
	Payload interface{}
}

var validate = validator.New()

// Decode parses a wire frame into its typed variant. Anything that does not
// match a known variant is rejected with a ValidationError.
func Decode(data []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewValidationError(fmt.Sprintf("malformed envelope: %v", err))
	}
	if env.Type == "" {
		return nil, NewValidationError("missing event type")
	}

	return DecodeVariant(env.Type, env.Payload)
}

// DecodeVariant parses a payload for a known event type. The offline replay
// path uses it directly on queued operations.
func DecodeVariant(t Type, payload json.RawMessage) (*Event, error) {
	ev := &Event{Type: t, Raw: payload}

	switch t {
	case TypeCursorMove:
		ev.Payload = &CursorMovePayload{}
	case TypeSelectionChange:
		ev.Payload = &SelectionChangePayload{}
	case TypeElementEdit:
		ev.Payload = &ElementEditPayload{}
	case TypeDiagramUpdate:
		ev.Payload = &DiagramUpdatePayload{}
	case TypeDeltaUpdate:
		ev.Payload = &DeltaUpdatePayload{}
	case TypeShapeCreated, TypeShapeDeleted:
		ev.Payload = &ShapePayload{}
	case TypeTypingStatus:
		ev.Payload = &TypingStatusPayload{}
	case TypeHeartbeat:
		ev.Payload = &HeartbeatPayload{}
	case TypeSetRole:
		ev.Payload = &SetRolePayload{}
	case TypeSyncOffline:
		ev.Payload = &SyncOfflinePayload{}
	case TypeLeaveRoom:
		return ev, nil
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown event type %q", t))
	}

	if len(payload) == 0 {
		return nil, NewValidationError(fmt.Sprintf("%s: missing payload", t))
	}
	if err := json.Unmarshal(payload, ev.Payload); err != nil {
		return nil, NewValidationError(fmt.Sprintf("%s: %v", t, err))
	}
	if err := validate.Struct(ev.Payload); err != nil {
		return nil, NewValidationError(fmt.Sprintf("%s: %v", t, err))
	}
	return ev, nil
}

// Marshal wraps a payload in the wire envelope.
func Marshal(t Type, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}
