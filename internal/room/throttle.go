package room

import (
	"sync"
	"time"

	"collab-service/internal/metrics"
	"collab-service/internal/models"
)

// cursorThrottle bounds one participant's cursor broadcasts to at most one
// per interval. Positions arriving inside the interval overwrite the pending
// slot (last-value-wins) and a single timer flushes the survivor; nothing is
// ever queued and replayed.
type cursorThrottle struct {
	interval time.Duration
	emit     func(models.Cursor)

	mu       sync.Mutex
	lastSent time.Time
	pending  *models.Cursor
	timer    *time.Timer
	stopped  bool
}

func newCursorThrottle(interval time.Duration, emit func(models.Cursor)) *cursorThrottle {
	return &cursorThrottle{interval: interval, emit: emit}
}

// Offer submits a cursor position. It returns true when the position was
// broadcast immediately rather than coalesced.
func (t *cursorThrottle) Offer(c models.Cursor) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}

	now := time.Now()
	if t.pending == nil && now.Sub(t.lastSent) >= t.interval {
		t.lastSent = now
		t.emit(c)
		return true
	}

	t.pending = &c
	metrics.ThrottledCursorsTotal.Inc()
	if t.timer == nil {
		delay := t.interval - now.Sub(t.lastSent)
		if delay < 0 {
			delay = 0
		}
		t.timer = time.AfterFunc(delay, t.flush)
	}
	return false
}

func (t *cursorThrottle) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = nil
	if t.stopped || t.pending == nil {
		return
	}
	c := *t.pending
	t.pending = nil
	t.lastSent = time.Now()
	t.emit(c)
}

// Stop discards the pending position and cancels the flush timer.
func (t *cursorThrottle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
