package models

import "time"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// CanEdit reports whether the role is allowed to mutate the diagram.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleAdmin
}

func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleEditor || r == RoleAdmin
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// ColorPalette is the fixed set of participant colors. Joins pick the first
// color not held by an active participant and fall back to cyclic reuse once
// the palette is exhausted.
var ColorPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#9a6324",
}

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one user's live presence in one room for one connection.
type Participant struct {
	UserID         string         `json:"user_id"`
	Name           string         `json:"name"`
	Color          string         `json:"color"`
	Role           Role           `json:"role"`
	Status         PresenceStatus `json:"status"`
	Cursor         *Cursor        `json:"cursor,omitempty"`
	Selection      string         `json:"selection,omitempty"`
	Typing         bool           `json:"typing,omitempty"`
	EditingElement string         `json:"editing_element,omitempty"`
	SessionID      string         `json:"session_id"`
	LatencyMS      int64          `json:"latency_ms,omitempty"`
	JoinedAt       time.Time      `json:"joined_at"`
	LastActivity   time.Time      `json:"last_activity"`

	// DisconnectedAt is zero while the connection is live. A non-zero value
	// marks a grace-period remnant awaiting reconnect or removal.
	DisconnectedAt time.Time `json:"-"`
}

// Connected reports whether the participant still has a live connection.
func (p *Participant) Connected() bool {
	return p.DisconnectedAt.IsZero()
}

// RoomSnapshot is the read-only view handed to joining clients and the
// presence HTTP endpoint.
type RoomSnapshot struct {
	RoomID       string          `json:"room_id"`
	Participants []*Participant  `json:"participants"`
	Feed         []ActivityEvent `json:"activity_feed"`
}
