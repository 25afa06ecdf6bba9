package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityFeedEvictsOldest(t *testing.T) {
	feed := NewActivityFeed(3)

	for i := 1; i <= 5; i++ {
		feed.Append(ActivityEvent{ID: fmt.Sprintf("ev-%d", i)})
	}

	assert.Equal(t, 3, feed.Len())
	tail := feed.Tail(0)
	require.Len(t, tail, 3)
	assert.Equal(t, "ev-3", tail[0].ID)
	assert.Equal(t, "ev-5", tail[2].ID)
}

func TestActivityFeedTailLimit(t *testing.T) {
	feed := NewActivityFeed(10)
	for i := 1; i <= 4; i++ {
		feed.Append(ActivityEvent{ID: fmt.Sprintf("ev-%d", i)})
	}

	tail := feed.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "ev-3", tail[0].ID)
	assert.Equal(t, "ev-4", tail[1].ID)

	// Asking for more than available returns everything, oldest first.
	assert.Len(t, feed.Tail(100), 4)
}

func TestActivityFeedMinimumCapacity(t *testing.T) {
	feed := NewActivityFeed(0)
	feed.Append(ActivityEvent{ID: "a"})
	feed.Append(ActivityEvent{ID: "b"})

	tail := feed.Tail(0)
	require.Len(t, tail, 1)
	assert.Equal(t, "b", tail[0].ID)
}

func TestRoleCanEdit(t *testing.T) {
	assert.False(t, RoleViewer.CanEdit())
	assert.True(t, RoleEditor.CanEdit())
	assert.True(t, RoleAdmin.CanEdit())
	assert.False(t, Role("ghost").CanEdit())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleViewer.Valid())
	assert.True(t, RoleEditor.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("owner").Valid())
}
