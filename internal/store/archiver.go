package store

import (
	"context"
	"encoding/json"
	"time"

	"collab-service/internal/models"
	"collab-service/internal/queue"
	"collab-service/pkg/logger"
)

// Queue task names for the archival workers.
const (
	ArchiveActivityTaskType = "collab:archive_activity"
	ArchiveSessionTaskType  = "collab:archive_session"
)

// ArchiveActivityPayload is the JSON payload transported via the queue.
type ArchiveActivityPayload struct {
	RoomID string               `json:"room_id"`
	Event  models.ActivityEvent `json:"event"`
}

// ArchiveSessionPayload records one connection lifecycle event.
type ArchiveSessionPayload struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	At        time.Time `json:"at"`
}

// Archiver takes activity events off the room loop and enqueues them for
// background persistence. Record never blocks; events are dropped when the
// buffer is full, since the feed is best-effort history, not source of truth.
type Archiver struct {
	client queue.Client
	ch     chan queue.Task
	done   chan struct{}
}

func NewArchiver(client queue.Client) *Archiver {
	a := &Archiver{
		client: client,
		ch:     make(chan queue.Task, 512),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

// Record hands an activity event to the archiver without blocking the caller.
func (a *Archiver) Record(roomID string, ev models.ActivityEvent) {
	a.offer(ArchiveActivityTaskType, ArchiveActivityPayload{RoomID: roomID, Event: ev})
}

// RecordSession hands a connection lifecycle event to the archiver.
func (a *Archiver) RecordSession(roomID, userID, sessionID, kind string, at time.Time) {
	a.offer(ArchiveSessionTaskType, ArchiveSessionPayload{
		RoomID:    roomID,
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kind,
		At:        at,
	})
}

func (a *Archiver) offer(taskType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error marshaling %s task: %v", taskType, err)
		return
	}
	select {
	case a.ch <- queue.Task{Type: taskType, Payload: data}:
	default:
		logger.Debug("Archiver buffer full, dropping %s task", taskType)
	}
}

// Stop stops the enqueue loop; anything still buffered is dropped.
func (a *Archiver) Stop() {
	close(a.done)
}

func (a *Archiver) loop() {
	for {
		select {
		case <-a.done:
			return
		case t := <-a.ch:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := a.client.Enqueue(ctx, t)
			cancel()
			if err != nil {
				logger.Warn("Error enqueueing %s task: %v", t.Type, err)
			}
		}
	}
}

// RegisterArchiveTasks binds the archival handlers to the worker server.
func RegisterArchiveTasks(srv queue.Server, db ActivityStore) {
	srv.Register(ArchiveActivityTaskType, func(ctx context.Context, t queue.Task) error {
		var p ArchiveActivityPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: retrying will not help
			logger.Error("Malformed archive task payload: %v", err)
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return db.SaveActivityEvent(ctx, p.RoomID, p.Event)
	})
	srv.Register(ArchiveSessionTaskType, func(ctx context.Context, t queue.Task) error {
		var p ArchiveSessionPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			logger.Error("Malformed archive task payload: %v", err)
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return db.SaveSessionEvent(ctx, p.RoomID, p.UserID, p.SessionID, p.Kind, p.At)
	})
}
