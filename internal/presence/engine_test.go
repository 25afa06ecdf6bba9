package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/events"
	"collab-service/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(2*time.Minute, 30*time.Second, 15*time.Second, 3)
}

func TestAuthorizeRoleMatrix(t *testing.T) {
	e := newTestEngine()

	cases := []struct {
		role    models.Role
		event   events.Type
		allowed bool
	}{
		{models.RoleViewer, events.TypeCursorMove, true},
		{models.RoleViewer, events.TypeSelectionChange, true},
		{models.RoleViewer, events.TypeTypingStatus, true},
		{models.RoleViewer, events.TypeHeartbeat, true},
		{models.RoleViewer, events.TypeElementEdit, false},
		{models.RoleViewer, events.TypeDiagramUpdate, false},
		{models.RoleViewer, events.TypeShapeCreated, false},
		{models.RoleViewer, events.TypeSetRole, false},
		{models.RoleEditor, events.TypeElementEdit, true},
		{models.RoleEditor, events.TypeDeltaUpdate, true},
		{models.RoleEditor, events.TypeShapeDeleted, true},
		{models.RoleEditor, events.TypeSetRole, false},
		{models.RoleAdmin, events.TypeDiagramUpdate, true},
		{models.RoleAdmin, events.TypeSetRole, true},
	}

	for _, tc := range cases {
		ack := e.Authorize(tc.role, tc.event)
		if tc.allowed {
			assert.Nil(t, ack, "%s should be allowed %s", tc.role, tc.event)
		} else {
			require.NotNil(t, ack, "%s should be denied %s", tc.role, tc.event)
			assert.False(t, ack.Success)
			assert.True(t, ack.PermissionDenied)
			assert.Equal(t, "view-only access", ack.Error)
		}
	}
}

func TestTouchRevivesAwayParticipant(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	p := &models.Participant{UserID: "u1", Status: models.StatusAway}

	changed := e.Touch(p, now)

	assert.True(t, changed)
	assert.Equal(t, models.StatusOnline, p.Status)
	assert.Equal(t, now, p.LastActivity)

	// Touching an already-online participant is not a transition.
	assert.False(t, e.Touch(p, now.Add(time.Second)))
}

func TestMarkDisconnectedClearsEphemeralState(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	p := &models.Participant{
		UserID:         "u1",
		Status:         models.StatusOnline,
		Cursor:         &models.Cursor{X: 10, Y: 20},
		Typing:         true,
		EditingElement: "el-1",
	}

	e.MarkDisconnected(p, now)

	assert.Equal(t, models.StatusOffline, p.Status)
	assert.Equal(t, now, p.DisconnectedAt)
	assert.False(t, p.Connected())
	assert.Nil(t, p.Cursor)
	assert.False(t, p.Typing)
	assert.Empty(t, p.EditingElement)
}

func TestSweepIdleToAway(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	participants := map[string]*models.Participant{
		"idle":   {UserID: "idle", Status: models.StatusOnline, LastActivity: now.Add(-3 * time.Minute)},
		"active": {UserID: "active", Status: models.StatusOnline, LastActivity: now},
	}

	away, expired := e.Sweep(participants, now)

	require.Len(t, away, 1)
	assert.Equal(t, "idle", away[0].Participant.UserID)
	assert.Equal(t, models.StatusAway, away[0].Status)
	assert.Equal(t, models.StatusAway, participants["idle"].Status)
	assert.Equal(t, models.StatusOnline, participants["active"].Status)
	assert.Empty(t, expired)

	// A second sweep must not report the same transition again.
	away, _ = e.Sweep(participants, now)
	assert.Empty(t, away)
}

func TestSweepExpiresGracePeriodRemnants(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	participants := map[string]*models.Participant{
		"gone": {UserID: "gone", Status: models.StatusOffline, DisconnectedAt: now.Add(-time.Minute)},
		"wait": {UserID: "wait", Status: models.StatusOffline, DisconnectedAt: now.Add(-time.Second)},
	}

	away, expired := e.Sweep(participants, now)

	assert.Empty(t, away)
	require.Len(t, expired, 1)
	assert.Equal(t, "gone", expired[0].UserID)
}

func TestPickColorPrefersUnusedThenCycles(t *testing.T) {
	cursor := 0
	inUse := map[string]bool{}

	first := PickColor(inUse, &cursor)
	assert.Equal(t, models.ColorPalette[0], first)

	inUse[first] = true
	second := PickColor(inUse, &cursor)
	assert.Equal(t, models.ColorPalette[1], second)
	assert.NotEqual(t, first, second)

	// Exhaust the palette and confirm cyclic reuse.
	for _, c := range models.ColorPalette {
		inUse[c] = true
	}
	assert.Equal(t, models.ColorPalette[0], PickColor(inUse, &cursor))
	assert.Equal(t, models.ColorPalette[1], PickColor(inUse, &cursor))
}
