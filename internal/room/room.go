package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"collab-service/internal/auth"
	"collab-service/internal/events"
	"collab-service/internal/metrics"
	"collab-service/internal/models"
	"collab-service/internal/presence"
	"collab-service/internal/pubsub"
	"collab-service/pkg/logger"

	"github.com/google/uuid"
)

// Sender is a participant's outbound channel. The websocket client implements
// it; tests substitute fakes.
type Sender interface {
	Send(data []byte) error
	Close()
}

// ActivityRecorder receives activity and session events for asynchronous
// archival. It must never block; implementations drop on backpressure.
type ActivityRecorder interface {
	Record(roomID string, ev models.ActivityEvent)
	RecordSession(roomID, userID, sessionID, kind string, at time.Time)
}

type joinRequest struct {
	ident       auth.Identity
	lastSession string
	sender      Sender
	reply       chan *JoinResult
}

// JoinResult hands the gateway everything a fresh connection needs: the room
// to route events into, the participant entry, and the snapshot to send down.
type JoinResult struct {
	Room        *Room
	Participant *models.Participant
	Snapshot    *models.RoomSnapshot
}

type leaveRequest struct {
	userID     string
	sessionID  string // empty matches any session
	disconnect bool
}

type clientEvent struct {
	userID    string
	sessionID string
	ev        *events.Event
}

type outboundMsg struct {
	data    []byte
	exclude string
	publish bool
}

// Room owns all live state for one diagram's collaboration session. Every
// mutation happens inside the run goroutine; external callers only talk to it
// through channels.
type Room struct {
	id         string
	opts       Options
	engine     *presence.Engine
	locks      *presence.LockTable
	feed       *models.ActivityFeed
	broker     pubsub.Broker
	instanceID string
	archive    ActivityRecorder
	onEmpty    func(roomID string)

	participants map[string]*models.Participant
	senders      map[string]Sender
	throttles    map[string]*cursorThrottle
	offline      map[string][]*models.PendingOp
	lastEdit     map[string]time.Time
	lastDocEdit  time.Time
	colorCursor  int
	emptySince   time.Time

	joinCh   chan *joinRequest
	leaveCh  chan leaveRequest
	eventCh  chan *clientEvent
	lookupCh chan chan *models.RoomSnapshot
	outCh    chan outboundMsg
	pubCh    chan []byte
	relayCh  <-chan pubsub.Envelope
	relayOff func()
	stop     chan struct{}
	done     chan struct{}
}

func newRoom(id string, engine *presence.Engine, broker pubsub.Broker, archive ActivityRecorder, instanceID string, opts Options, onEmpty func(string)) *Room {
	return &Room{
		id:           id,
		opts:         opts,
		engine:       engine,
		locks:        presence.NewLockTable(engine.LockTTL),
		feed:         models.NewActivityFeed(opts.FeedCapacity),
		broker:       broker,
		instanceID:   instanceID,
		archive:      archive,
		onEmpty:      onEmpty,
		participants: make(map[string]*models.Participant),
		senders:      make(map[string]Sender),
		throttles:    make(map[string]*cursorThrottle),
		offline:      make(map[string][]*models.PendingOp),
		lastEdit:     make(map[string]time.Time),
		joinCh:       make(chan *joinRequest),
		leaveCh:      make(chan leaveRequest),
		eventCh:      make(chan *clientEvent, 64),
		lookupCh:     make(chan chan *models.RoomSnapshot),
		outCh:        make(chan outboundMsg, 64),
		pubCh:        make(chan []byte, 256),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (r *Room) ID() string {
	return r.id
}

// join is called by the registry. ok is false when the room shut down while
// the request was in flight; the registry retries with a fresh room.
func (r *Room) join(req *joinRequest) (*JoinResult, bool) {
	select {
	case r.joinCh <- req:
	case <-r.done:
		return nil, false
	}
	select {
	case res := <-req.reply:
		if res == nil {
			return nil, false
		}
		return res, true
	case <-r.done:
		return nil, false
	}
}

// HandleEvent routes a decoded client event into the room. Events from a
// session that no longer matches the participant are dropped.
func (r *Room) HandleEvent(userID, sessionID string, ev *events.Event) {
	select {
	case r.eventCh <- &clientEvent{userID: userID, sessionID: sessionID, ev: ev}:
	case <-r.done:
	}
}

// Disconnect marks the participant offline and starts the grace period. The
// session id guards against a stale pump of a replaced connection.
func (r *Room) Disconnect(userID, sessionID string) {
	select {
	case r.leaveCh <- leaveRequest{userID: userID, sessionID: sessionID, disconnect: true}:
	case <-r.done:
	}
}

// Leave removes the participant immediately. Leaving a room one is not in is
// a no-op.
func (r *Room) Leave(userID string) {
	select {
	case r.leaveCh <- leaveRequest{userID: userID}:
	case <-r.done:
	}
}

// Snapshot returns a read-only copy of the room state, or nil if the room
// shut down.
func (r *Room) Snapshot() *models.RoomSnapshot {
	reply := make(chan *models.RoomSnapshot, 1)
	select {
	case r.lookupCh <- reply:
	case <-r.done:
		return nil
	}
	select {
	case snap := <-reply:
		return snap
	case <-r.done:
		return nil
	}
}

func (r *Room) start(ctx context.Context) error {
	if r.broker != nil {
		relay, off, err := r.broker.Subscribe(ctx, r.id)
		if err != nil {
			return fmt.Errorf("subscribe room %s: %w", r.id, err)
		}
		r.relayCh = relay
		r.relayOff = off
	}
	go r.publishLoop()
	go r.run()
	return nil
}

func (r *Room) run() {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-r.joinCh:
			r.handleJoin(req)

		case req := <-r.leaveCh:
			r.handleLeave(req)

		case ce := <-r.eventCh:
			r.handleEvent(ce)

		case reply := <-r.lookupCh:
			reply <- r.snapshot()

		case msg := <-r.outCh:
			r.fanOut(msg.data, msg.exclude)
			if msg.publish {
				r.publish(msg.data)
			}

		case env, ok := <-r.relayCh:
			if !ok {
				r.relayCh = nil
				continue
			}
			if env.Origin != r.instanceID {
				r.fanOut(env.Data, "")
			}

		case <-ticker.C:
			if r.sweep(time.Now()) {
				r.shutdown()
				return
			}

		case <-r.stop:
			r.shutdown()
			return
		}
	}
}

func (r *Room) shutdown() {
	for _, th := range r.throttles {
		th.Stop()
	}
	for _, s := range r.senders {
		s.Close()
	}
	metrics.ParticipantsActive.Sub(float64(len(r.participants)))
	if r.relayOff != nil {
		r.relayOff()
	}
	close(r.pubCh)
	// onEmpty removes the room from the registry and closes done under the
	// registry lock, so in-flight requests unblock instead of stranding.
	r.onEmpty(r.id)
	logger.Info("Room %s closed", r.id)
}

func (r *Room) handleJoin(req *joinRequest) {
	now := time.Now()
	uid := req.ident.UserID

	if old, ok := r.participants[uid]; ok {
		// Reconnect within the grace period, or a second connection replacing
		// the first. Either way the old entry goes and a fresh participant is
		// created; the offline queue is keyed by user and survives.
		if s, ok := r.senders[uid]; ok {
			s.Close()
			delete(r.senders, uid)
		}
		if th, ok := r.throttles[uid]; ok {
			th.Stop()
			delete(r.throttles, uid)
		}
		r.locks.ReleaseAllHeldBy(uid)
		delete(r.participants, uid)
		metrics.ParticipantsActive.Dec()
		// Offline ops only replay for the session that queued them.
		if req.lastSession != old.SessionID {
			delete(r.offline, uid)
		}
		if old.Connected() {
			logger.Info("User %s rejoined room %s, replacing live session", uid, r.id)
		}
	}

	p := &models.Participant{
		UserID:       uid,
		Name:         req.ident.Name,
		Color:        presence.PickColor(r.colorsInUse(), &r.colorCursor),
		Role:         req.ident.Role,
		Status:       models.StatusOnline,
		SessionID:    uuid.NewString(),
		JoinedAt:     now,
		LastActivity: now,
	}
	r.participants[uid] = p
	r.senders[uid] = req.sender
	r.throttles[uid] = newCursorThrottle(r.opts.CursorThrottle, func(c models.Cursor) {
		r.emitCursor(uid, c)
	})
	r.emptySince = time.Time{}
	metrics.ParticipantsActive.Inc()

	r.broadcast(events.TypeParticipantJoined, events.ParticipantJoinedBroadcast{Participant: p}, uid, true)
	if r.archive != nil {
		r.archive.RecordSession(r.id, uid, p.SessionID, "connect", now)
	}
	logger.Info("User %s joined room %s as %s", uid, r.id, p.Role)

	req.reply <- &JoinResult{Room: r, Participant: p, Snapshot: r.snapshot()}
}

func (r *Room) colorsInUse() map[string]bool {
	used := make(map[string]bool, len(r.participants))
	for _, p := range r.participants {
		used[p.Color] = true
	}
	return used
}

func (r *Room) handleLeave(req leaveRequest) {
	p, ok := r.participants[req.userID]
	if !ok {
		return
	}
	if req.disconnect {
		if req.sessionID != "" && p.SessionID != req.sessionID {
			return // stale pump of a replaced session
		}
		if !p.Connected() {
			return
		}
		r.engine.MarkDisconnected(p, time.Now())
		r.locks.ReleaseAllHeldBy(p.UserID)
		if th, ok := r.throttles[p.UserID]; ok {
			th.Stop()
			delete(r.throttles, p.UserID)
		}
		delete(r.senders, p.UserID)
		r.broadcast(events.TypePresenceUpdate, events.PresenceUpdateBroadcast{UserID: p.UserID, Status: models.StatusOffline}, p.UserID, true)
		logger.Info("User %s disconnected from room %s, grace period started", p.UserID, r.id)
		return
	}
	r.removeParticipant(p)
	logger.Info("User %s left room %s", p.UserID, r.id)
}

func (r *Room) removeParticipant(p *models.Participant) {
	if s, ok := r.senders[p.UserID]; ok {
		s.Close()
		delete(r.senders, p.UserID)
	}
	if th, ok := r.throttles[p.UserID]; ok {
		th.Stop()
		delete(r.throttles, p.UserID)
	}
	r.locks.ReleaseAllHeldBy(p.UserID)
	delete(r.participants, p.UserID)
	delete(r.offline, p.UserID)
	metrics.ParticipantsActive.Dec()

	r.broadcast(events.TypeParticipantLeft, events.ParticipantLeftBroadcast{UserID: p.UserID}, p.UserID, true)
	if r.archive != nil {
		r.archive.RecordSession(r.id, p.UserID, p.SessionID, "disconnect", time.Now())
	}
}

func (r *Room) handleEvent(ce *clientEvent) {
	p, ok := r.participants[ce.userID]
	if !ok || !p.Connected() || p.SessionID != ce.sessionID {
		// Room state is authoritative only for current participants.
		logger.Debug("Dropping %s from user %s not in room %s", ce.ev.Type, ce.userID, r.id)
		return
	}

	now := time.Now()
	metrics.EventsTotal.WithLabelValues(string(ce.ev.Type)).Inc()

	if ack := r.engine.Authorize(p.Role, ce.ev.Type); ack != nil {
		metrics.PermissionDeniedTotal.Inc()
		r.sendTo(p.UserID, events.TypePermissionDenied, ack)
		return
	}

	if ce.ev.Type != events.TypeHeartbeat {
		if r.engine.Touch(p, now) {
			r.broadcast(events.TypePresenceUpdate, events.PresenceUpdateBroadcast{UserID: p.UserID, Status: models.StatusOnline}, p.UserID, true)
		}
	}

	switch pl := ce.ev.Payload.(type) {
	case *events.CursorMovePayload:
		p.Cursor = &models.Cursor{X: pl.X, Y: pl.Y}
		r.throttles[p.UserID].Offer(*p.Cursor)

	case *events.SelectionChangePayload:
		p.Selection = pl.ElementID
		r.broadcast(events.TypeSelectionChange, events.SelectionBroadcast{UserID: p.UserID, ElementID: pl.ElementID}, p.UserID, true)

	case *events.TypingStatusPayload:
		p.Typing = pl.Typing
		r.broadcast(events.TypeTypingStatus, events.TypingBroadcast{UserID: p.UserID, Typing: pl.Typing}, p.UserID, true)

	case *events.HeartbeatPayload:
		p.LatencyMS = pl.LatencyMS
		r.sendTo(p.UserID, events.TypeHeartbeatAck, events.HeartbeatAck{ClientTS: pl.ClientTS, ServerTS: now.UnixMilli()})

	case *events.SetRolePayload:
		r.handleSetRole(p, pl, now)

	case *events.SyncOfflinePayload:
		r.handleSyncOffline(p, pl, now)

	default:
		if ce.ev.Type == events.TypeLeaveRoom {
			r.handleLeave(leaveRequest{userID: p.UserID})
			return
		}
		bt, payload, ack := r.applyMutation(p, ce.ev, now)
		if ack != nil {
			r.sendTo(p.UserID, events.TypeError, ack)
			return
		}
		r.broadcast(bt, payload, p.UserID, true)
	}
}

// applyMutation executes a permission-cleared mutating event against room
// state and returns what to broadcast. A non-nil ack means the event was
// refused (soft-lock collision) and nothing may be broadcast.
func (r *Room) applyMutation(p *models.Participant, ev *events.Event, now time.Time) (events.Type, interface{}, *events.Ack) {
	switch pl := ev.Payload.(type) {
	case *events.ElementEditPayload:
		if pl.Editing {
			if !r.locks.Claim(pl.ElementID, p.UserID, now) {
				ack := events.InvalidAck("element is being edited by another participant")
				return "", nil, &ack
			}
			p.EditingElement = pl.ElementID
		} else {
			r.locks.Release(pl.ElementID, p.UserID)
			if p.EditingElement == pl.ElementID {
				p.EditingElement = ""
			}
			r.lastEdit[pl.ElementID] = now
			r.recordActivity(p, models.ActivityElementEdit, pl.ElementID, now)
		}
		return events.TypeElementEdit, events.ElementEditBroadcast{UserID: p.UserID, ElementID: pl.ElementID, Editing: pl.Editing}, nil

	case *events.DiagramUpdatePayload:
		r.lastDocEdit = now
		return events.TypeDiagramUpdate, events.DiagramUpdateBroadcast{UserID: p.UserID, Payload: json.RawMessage(ev.Raw)}, nil

	case *events.DeltaUpdatePayload:
		r.lastEdit[pl.ElementID] = now
		return events.TypeDeltaUpdate, events.DiagramUpdateBroadcast{UserID: p.UserID, Payload: json.RawMessage(ev.Raw)}, nil

	case *events.ShapePayload:
		r.lastEdit[pl.ShapeID] = now
		activityType := models.ActivityShapeCreated
		if ev.Type == events.TypeShapeDeleted {
			activityType = models.ActivityShapeDeleted
		}
		r.recordActivity(p, activityType, pl.ShapeID, now)
		return ev.Type, events.ShapeBroadcast{UserID: p.UserID, Shape: *pl}, nil
	}

	ack := events.InvalidAck(fmt.Sprintf("unsupported event %s", ev.Type))
	return "", nil, &ack
}

func (r *Room) handleSetRole(actor *models.Participant, pl *events.SetRolePayload, now time.Time) {
	target, ok := r.participants[pl.TargetUserID]
	if !ok {
		ack := events.InvalidAck("participant not found")
		r.sendTo(actor.UserID, events.TypeError, &ack)
		return
	}
	// Concurrent role changes across instances resolve last-write-wins.
	target.Role = models.Role(pl.Role)
	r.recordActivity(actor, models.ActivityRoleChanged, fmt.Sprintf("%s -> %s", target.UserID, target.Role), now)
	r.broadcast(events.TypeRoleChanged, events.RoleChangedBroadcast{UserID: target.UserID, Role: target.Role, ChangedBy: actor.UserID}, actor.UserID, true)
}

func (r *Room) recordActivity(p *models.Participant, t models.ActivityType, summary string, now time.Time) {
	ev := models.ActivityEvent{
		ID:        uuid.NewString(),
		ActorID:   p.UserID,
		ActorName: p.Name,
		Type:      t,
		Summary:   summary,
		Timestamp: now,
	}
	r.feed.Append(ev)
	if r.archive != nil {
		r.archive.Record(r.id, ev)
	}
}

// sweep runs the periodic transitions. It returns true once the room has
// been empty for longer than the grace period and should shut down.
func (r *Room) sweep(now time.Time) bool {
	r.locks.Expire(now)

	away, expired := r.engine.Sweep(r.participants, now)
	for _, change := range away {
		// Going idle drops any advisory edit claims.
		r.locks.ReleaseAllHeldBy(change.Participant.UserID)
		change.Participant.EditingElement = ""
		r.broadcast(events.TypePresenceUpdate, events.PresenceUpdateBroadcast{UserID: change.Participant.UserID, Status: change.Status}, change.Participant.UserID, true)
	}
	for _, p := range expired {
		r.removeParticipant(p)
		logger.Info("User %s removed from room %s after grace period", p.UserID, r.id)
	}

	r.retryOffline(now)

	if len(r.participants) == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = now
		}
		return now.Sub(r.emptySince) >= r.engine.GracePeriod
	}
	r.emptySince = time.Time{}
	return false
}

func (r *Room) snapshot() *models.RoomSnapshot {
	participants := make([]*models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		cp := *p
		if p.Cursor != nil {
			c := *p.Cursor
			cp.Cursor = &c
		}
		participants = append(participants, &cp)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return &models.RoomSnapshot{
		RoomID:       r.id,
		Participants: participants,
		Feed:         r.feed.Tail(0),
	}
}

func (r *Room) emitCursor(userID string, c models.Cursor) {
	data, err := events.Marshal(events.TypeCursorMove, events.CursorBroadcast{UserID: userID, X: c.X, Y: c.Y})
	if err != nil {
		return
	}
	select {
	case r.outCh <- outboundMsg{data: data, exclude: userID, publish: true}:
	default:
		// loop congested, next cursor update supersedes this one anyway
	}
}

func (r *Room) broadcast(t events.Type, payload interface{}, excludeUserID string, publish bool) {
	data, err := events.Marshal(t, payload)
	if err != nil {
		logger.Error("Error marshaling %s broadcast: %v", t, err)
		return
	}
	r.fanOut(data, excludeUserID)
	if publish {
		r.publish(data)
	}
}

func (r *Room) fanOut(data []byte, excludeUserID string) {
	for uid, s := range r.senders {
		if uid == excludeUserID {
			continue
		}
		// Best-effort: a dead peer is cleaned up by its disconnect handler.
		if err := s.Send(data); err == nil {
			metrics.BroadcastsTotal.Inc()
		}
	}
}

func (r *Room) sendTo(userID string, t events.Type, payload interface{}) {
	s, ok := r.senders[userID]
	if !ok {
		return
	}
	data, err := events.Marshal(t, payload)
	if err != nil {
		logger.Error("Error marshaling %s: %v", t, err)
		return
	}
	_ = s.Send(data)
}

func (r *Room) publish(data []byte) {
	if r.broker == nil {
		return
	}
	select {
	case r.pubCh <- data:
	default:
		// backbone congested; at-most-once, peers resync on next activity
	}
}

func (r *Room) publishLoop() {
	for data := range r.pubCh {
		if r.broker == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := r.broker.Publish(ctx, r.id, pubsub.Envelope{Origin: r.instanceID, RoomID: r.id, Data: data})
		cancel()
		if err != nil {
			logger.Warn("Publish to room %s backbone failed: %v", r.id, err)
		}
	}
}
