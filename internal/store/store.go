package store

import (
	"context"
	"time"

	"collab-service/internal/models"
)

// ActivityStore persists collaboration history for the excluded CRUD layer.
// Nothing on the event hot path calls it directly; writes arrive through the
// background queue.
type ActivityStore interface {
	SaveActivityEvent(ctx context.Context, roomID string, ev models.ActivityEvent) error
	SaveSessionEvent(ctx context.Context, roomID, userID, sessionID, kind string, at time.Time) error
	Close() error
}
