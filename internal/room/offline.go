package room

import (
	"sort"
	"time"

	"collab-service/internal/events"
	"collab-service/internal/models"
	"collab-service/pkg/logger"
)

// Offline operations are edits a participant made while disconnected,
// submitted via sync_offline after reconnecting. They replay in
// origin-timestamp order through the same permission gate as live events.
// Conflict resolution is server-wins: an op older than (or tied with) the
// server's last change to the same element is dropped.

func (r *Room) handleSyncOffline(p *models.Participant, pl *events.SyncOfflinePayload, now time.Time) {
	queue := r.offline[p.UserID]
	var results []models.SyncResult

	for _, op := range pl.Operations {
		if len(queue) >= r.opts.OfflineQueueMax {
			results = append(results, models.SyncResult{
				Type:     op.Type,
				OriginTS: time.UnixMilli(op.OriginTS),
				Status:   models.SyncDropped,
				Reason:   "offline queue full",
			})
			continue
		}
		queue = append(queue, &models.PendingOp{
			Type:     op.Type,
			Payload:  op.Payload,
			OriginTS: time.UnixMilli(op.OriginTS),
		})
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].OriginTS.Before(queue[j].OriginTS)
	})
	r.offline[p.UserID] = queue

	results = append(results, r.replayOffline(p, now)...)
	if len(results) > 0 {
		r.sendTo(p.UserID, events.TypeSyncResult, events.SyncResultPayload{Results: results})
	}
}

// replayOffline walks the participant's pending queue once. Ops blocked by a
// live soft lock stay queued with an incremented retry count and are retried
// on subsequent sweeps.
func (r *Room) replayOffline(p *models.Participant, now time.Time) []models.SyncResult {
	queue := r.offline[p.UserID]
	if len(queue) == 0 {
		return nil
	}

	results := make([]models.SyncResult, 0, len(queue))
	var remaining []*models.PendingOp

	for _, op := range queue {
		res := models.SyncResult{Type: op.Type, OriginTS: op.OriginTS}
		t := events.Type(op.Type)

		switch {
		case !t.Mutating():
			res.Status = models.SyncDropped
			res.Reason = "not a replayable operation"

		case !p.Role.CanEdit():
			res.Status = models.SyncDropped
			res.Reason = "view-only access"

		default:
			ev, err := events.DecodeVariant(t, op.Payload)
			if err != nil {
				res.Status = models.SyncDropped
				res.Reason = "invalid payload"
				results = append(results, res)
				continue
			}

			if r.conflicts(ev, op.OriginTS) {
				res.Status = models.SyncDropped
				res.Reason = "superseded by server state"
				results = append(results, res)
				continue
			}

			if el := elementOf(ev); el != "" {
				if holder := r.locks.Holder(el, now); holder != "" && holder != p.UserID {
					op.Retries++
					if op.Retries >= r.engine.OfflineMaxRetries {
						res.Status = models.SyncDropped
						res.Reason = "max retries exceeded"
					} else {
						res.Status = models.SyncRetried
						res.Reason = "element locked"
						remaining = append(remaining, op)
					}
					results = append(results, res)
					continue
				}
			}

			bt, payload, ack := r.applyMutation(p, ev, now)
			if ack != nil {
				res.Status = models.SyncDropped
				res.Reason = ack.Error
			} else {
				r.broadcast(bt, payload, p.UserID, true)
				res.Status = models.SyncApplied
			}
		}
		results = append(results, res)
	}

	if len(remaining) == 0 {
		delete(r.offline, p.UserID)
	} else {
		r.offline[p.UserID] = remaining
	}
	return results
}

// retryOffline re-attempts queued ops for connected participants on each
// sweep. Results are only pushed when something other than another retry
// happened.
func (r *Room) retryOffline(now time.Time) {
	for uid := range r.offline {
		p, ok := r.participants[uid]
		if !ok || !p.Connected() {
			continue
		}
		results := r.replayOffline(p, now)
		settled := false
		for _, res := range results {
			if res.Status != models.SyncRetried {
				settled = true
				break
			}
		}
		if settled {
			r.sendTo(uid, events.TypeSyncResult, events.SyncResultPayload{Results: results})
			logger.Debug("Replayed %d offline ops for user %s in room %s", len(results), uid, r.id)
		}
	}
}

// conflicts reports whether the server changed the op's target after the op
// originated. Ties go to the server.
func (r *Room) conflicts(ev *events.Event, originTS time.Time) bool {
	switch pl := ev.Payload.(type) {
	case *events.DiagramUpdatePayload:
		return !r.lastDocEdit.IsZero() && !r.lastDocEdit.Before(originTS)
	case *events.DeltaUpdatePayload:
		last, ok := r.lastEdit[pl.ElementID]
		return ok && !last.Before(originTS)
	case *events.ShapePayload:
		last, ok := r.lastEdit[pl.ShapeID]
		return ok && !last.Before(originTS)
	case *events.ElementEditPayload:
		last, ok := r.lastEdit[pl.ElementID]
		return ok && !last.Before(originTS)
	}
	return false
}

func elementOf(ev *events.Event) string {
	switch pl := ev.Payload.(type) {
	case *events.DeltaUpdatePayload:
		return pl.ElementID
	case *events.ShapePayload:
		return pl.ShapeID
	case *events.ElementEditPayload:
		return pl.ElementID
	}
	return ""
}
