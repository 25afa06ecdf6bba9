package presence

import (
	"time"

	"collab-service/internal/events"
	"collab-service/internal/models"
)

// Engine decides what a participant may do and how presence state moves. It
// holds no room state of its own; rooms call in from their single event
// goroutine, so none of these methods need locking.
type Engine struct {
	IdleTimeout       time.Duration
	GracePeriod       time.Duration
	LockTTL           time.Duration
	OfflineMaxRetries int
}

func NewEngine(idleTimeout, gracePeriod, lockTTL time.Duration, offlineMaxRetries int) *Engine {
	return &Engine{
		IdleTimeout:       idleTimeout,
		GracePeriod:       gracePeriod,
		LockTTL:           lockTTL,
		OfflineMaxRetries: offlineMaxRetries,
	}
}

// Authorize gates an event against the participant's role. It returns a
// structured refusal for denied mutations and nil when the event may proceed.
// Non-mutating events (cursor, selection, typing, heartbeat) pass for every
// role.
func (e *Engine) Authorize(role models.Role, t events.Type) *events.Ack {
	if !t.Mutating() && t != events.TypeSetRole {
		return nil
	}
	if t == events.TypeSetRole {
		if role != models.RoleAdmin {
			ack := events.DeniedAck()
			return &ack
		}
		return nil
	}
	if !role.CanEdit() {
		ack := events.DeniedAck()
		return &ack
	}
	return nil
}

// Touch registers activity for a participant. It returns true when the
// participant came back from away and peers need a presence_update.
func (e *Engine) Touch(p *models.Participant, now time.Time) bool {
	p.LastActivity = now
	if p.Status == models.StatusAway {
		p.Status = models.StatusOnline
		return true
	}
	return false
}

// MarkDisconnected transitions a participant to offline and starts the grace
// period. Offline is terminal for the connection instance.
func (e *Engine) MarkDisconnected(p *models.Participant, now time.Time) {
	p.Status = models.StatusOffline
	p.DisconnectedAt = now
	p.Typing = false
	p.Cursor = nil
	p.EditingElement = ""
}

// StatusChange is one participant transition produced by a sweep.
type StatusChange struct {
	Participant *models.Participant
	Status      models.PresenceStatus
}

// Sweep applies the timer-driven transitions: online participants idle past
// the timeout go away, and offline remnants past the grace period are
// reported for removal. The sweep runs on a fixed period independent of
// connection activity.
func (e *Engine) Sweep(participants map[string]*models.Participant, now time.Time) (away []StatusChange, expired []*models.Participant) {
	for _, p := range participants {
		if !p.Connected() {
			if now.Sub(p.DisconnectedAt) >= e.GracePeriod {
				expired = append(expired, p)
			}
			continue
		}
		if p.Status == models.StatusOnline && now.Sub(p.LastActivity) >= e.IdleTimeout {
			p.Status = models.StatusAway
			away = append(away, StatusChange{Participant: p, Status: models.StatusAway})
		}
	}
	return away, expired
}

// PickColor returns a palette color not held by any active participant.
// Once the palette is exhausted it reuses colors cyclically via cursor.
func PickColor(inUse map[string]bool, cursor *int) string {
	for _, c := range models.ColorPalette {
		if !inUse[c] {
			return c
		}
	}
	c := models.ColorPalette[*cursor%len(models.ColorPalette)]
	*cursor++
	return c
}
