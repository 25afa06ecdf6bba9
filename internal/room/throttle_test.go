package room

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/models"
)

type cursorCollector struct {
	mu      sync.Mutex
	cursors []models.Cursor
}

func (c *cursorCollector) emit(cur models.Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors = append(c.cursors, cur)
}

func (c *cursorCollector) snapshot() []models.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Cursor, len(c.cursors))
	copy(out, c.cursors)
	return out
}

func TestThrottleCoalescesBurst(t *testing.T) {
	col := &cursorCollector{}
	th := newCursorThrottle(50*time.Millisecond, col.emit)
	defer th.Stop()

	// A burst of 20 positions inside one interval: the first goes out
	// immediately, the rest collapse into a single trailing broadcast
	// carrying the last position.
	for i := 1; i <= 20; i++ {
		th.Offer(models.Cursor{X: float64(i), Y: float64(i * 2)})
	}

	time.Sleep(200 * time.Millisecond)

	got := col.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, models.Cursor{X: 1, Y: 2}, got[0])
	assert.Equal(t, models.Cursor{X: 20, Y: 40}, got[1])
}

func TestThrottleFirstOfferIsImmediate(t *testing.T) {
	col := &cursorCollector{}
	th := newCursorThrottle(50*time.Millisecond, col.emit)
	defer th.Stop()

	assert.True(t, th.Offer(models.Cursor{X: 5, Y: 5}))
	require.Len(t, col.snapshot(), 1)
}

func TestThrottlePassesSlowStream(t *testing.T) {
	col := &cursorCollector{}
	th := newCursorThrottle(10*time.Millisecond, col.emit)
	defer th.Stop()

	// Positions spaced wider than the interval are never held back.
	for i := 0; i < 3; i++ {
		assert.True(t, th.Offer(models.Cursor{X: float64(i)}))
		time.Sleep(30 * time.Millisecond)
	}
	assert.Len(t, col.snapshot(), 3)
}

func TestThrottleStopDiscardsPending(t *testing.T) {
	col := &cursorCollector{}
	th := newCursorThrottle(50*time.Millisecond, col.emit)

	th.Offer(models.Cursor{X: 1})
	th.Offer(models.Cursor{X: 2}) // coalesced, pending flush
	th.Stop()

	time.Sleep(100 * time.Millisecond)
	require.Len(t, col.snapshot(), 1, "pending position must not flush after Stop")

	assert.False(t, th.Offer(models.Cursor{X: 3}), "stopped throttle ignores offers")
}
