package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"collab-service/internal/auth"
	"collab-service/internal/metrics"
	"collab-service/internal/models"
	"collab-service/internal/presence"
	"collab-service/internal/pubsub"
	"collab-service/pkg/logger"
)

// Options carries the per-room tunables the registry hands to new rooms.
type Options struct {
	CursorThrottle  time.Duration
	SweepInterval   time.Duration
	FeedCapacity    int
	OfflineQueueMax int
}

var ErrRegistryClosed = errors.New("room registry is closed")

// Registry maintains the room-id to room mapping for this instance. Rooms
// are created lazily on first join and removed once they have been empty past
// the grace period.
type Registry struct {
	mu         sync.Mutex
	rooms      map[string]*Room
	engine     *presence.Engine
	broker     pubsub.Broker
	archive    ActivityRecorder
	instanceID string
	opts       Options
	closed     bool
}

func NewRegistry(engine *presence.Engine, broker pubsub.Broker, archive ActivityRecorder, instanceID string, opts Options) *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		engine:     engine,
		broker:     broker,
		archive:    archive,
		instanceID: instanceID,
		opts:       opts,
	}
}

// Join adds the participant to the room, creating it if absent. The sender is
// the participant's outbound channel; lastSession ties a reconnect to the
// previous connection for offline-op replay.
func (g *Registry) Join(roomID string, ident auth.Identity, lastSession string, sender Sender) (*JoinResult, error) {
	req := &joinRequest{
		ident:       ident,
		lastSession: lastSession,
		sender:      sender,
		reply:       make(chan *JoinResult, 1),
	}

	// A room can shut down between lookup and send; retry with a fresh one.
	for {
		rm, err := g.getOrCreate(roomID)
		if err != nil {
			return nil, err
		}
		if res, ok := rm.join(req); ok {
			return res, nil
		}
	}
}

// Leave removes the user from the room immediately. Unknown rooms and users
// are a no-op.
func (g *Registry) Leave(roomID, userID string) {
	g.mu.Lock()
	rm, ok := g.rooms[roomID]
	g.mu.Unlock()
	if ok {
		rm.Leave(userID)
	}
}

// Lookup returns a read-only snapshot of the room, or false if it does not
// exist on this instance.
func (g *Registry) Lookup(roomID string) (*models.RoomSnapshot, bool) {
	g.mu.Lock()
	rm, ok := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	snap := rm.Snapshot()
	if snap == nil {
		return nil, false
	}
	return snap, true
}

// RoomCount reports the number of live rooms on this instance.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close shuts down every room and refuses further joins.
func (g *Registry) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	rooms := make([]*Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.Unlock()

	for _, rm := range rooms {
		close(rm.stop)
	}
}

func (g *Registry) getOrCreate(roomID string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrRegistryClosed
	}
	if rm, ok := g.rooms[roomID]; ok {
		return rm, nil
	}

	rm := newRoom(roomID, g.engine, g.broker, g.archive, g.instanceID, g.opts, g.remove)
	if err := rm.start(context.Background()); err != nil {
		return nil, err
	}
	g.rooms[roomID] = rm
	metrics.RoomsActive.Inc()
	logger.Info("Room %s created", roomID)
	return rm, nil
}

// remove is the room's shutdown callback. Deleting the map entry and closing
// done under the same lock keeps racing joins from stranding on a dead room.
func (g *Registry) remove(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rm, ok := g.rooms[roomID]; ok {
		delete(g.rooms, roomID)
		metrics.RoomsActive.Dec()
		close(rm.done)
	}
}
