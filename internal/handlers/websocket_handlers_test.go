package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/events"
	"collab-service/internal/models"
	"collab-service/internal/presence"
	"collab-service/internal/pubsub"
	"collab-service/internal/room"
)

var testSecret = []byte("gateway-test-secret")

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"name":    userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	verifier := auth.NewJWTVerifier(testSecret)
	engine := presence.NewEngine(time.Minute, time.Minute, 15*time.Second, 3)
	broker := pubsub.NewInProcessBroker()
	registry := room.NewRegistry(engine, broker, nil, "inst-test", room.Options{
		CursorThrottle:  10 * time.Millisecond,
		SweepInterval:   20 * time.Millisecond,
		FeedCapacity:    50,
		OfflineQueueMax: 100,
	})

	cfg := config.CollabConfig{InboundRate: 100, InboundBurst: 200}
	wsHandlers := NewWebSocketHandlers(verifier, registry, cfg)
	presenceHandlers := NewPresenceHandlers(verifier, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
	mux.HandleFunc("/rooms/", presenceHandlers.GetRoomPresence)
	mux.HandleFunc("/healthz", presenceHandlers.Healthz)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		registry.Close()
		broker.Close()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID, role, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws?token=" + signToken(t, userID, role) + "&room=" + roomID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame scans inbound frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, want events.Type) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s frame", want)
		var env events.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == want {
			return env.Payload
		}
	}
}

func TestConnectReceivesSnapshotFirst(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "alice", "editor", "doc-1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, events.TypeRoomSnapshot, env.Type)

	var snap models.RoomSnapshot
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.Equal(t, "doc-1", snap.RoomID)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "alice", snap.Participants[0].UserID)
	assert.Equal(t, models.RoleEditor, snap.Participants[0].Role)
	assert.NotEmpty(t, snap.Participants[0].Color)
	assert.NotEmpty(t, snap.Participants[0].SessionID)
}

func TestEditFlowsBetweenConnections(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "alice", "editor", "doc-1")
	readFrame(t, alice, events.TypeRoomSnapshot)

	bob := dial(t, srv, "bob", "viewer", "doc-1")
	readFrame(t, bob, events.TypeRoomSnapshot)
	readFrame(t, alice, events.TypeParticipantJoined)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"shape_created","payload":{"shape_id":"s1","kind":"rect"}}`)))

	var shape events.ShapeBroadcast
	require.NoError(t, json.Unmarshal(readFrame(t, bob, events.TypeShapeCreated), &shape))
	assert.Equal(t, "alice", shape.UserID)
	assert.Equal(t, "s1", shape.Shape.ShapeID)
}

func TestViewerDeniedOverWire(t *testing.T) {
	srv := newTestServer(t)
	bob := dial(t, srv, "bob", "viewer", "doc-1")
	readFrame(t, bob, events.TypeRoomSnapshot)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"diagram_update","payload":{"document":{"v":1}}}`)))

	var ack events.Ack
	require.NoError(t, json.Unmarshal(readFrame(t, bob, events.TypePermissionDenied), &ack))
	assert.False(t, ack.Success)
	assert.True(t, ack.PermissionDenied)
	assert.Equal(t, "view-only access", ack.Error)
}

func TestMalformedEventGetsErrorFrame(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "alice", "editor", "doc-1")
	readFrame(t, conn, events.TypeRoomSnapshot)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp_speed"}`)))

	var ack events.Ack
	require.NoError(t, json.Unmarshal(readFrame(t, conn, events.TypeError), &ack))
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "unknown event type")
}

func TestRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws?room=doc-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws?room=doc-1&token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRejectsMissingRoom(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws?token=" + signToken(t, "alice", "viewer"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresenceEndpoint(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "alice", "editor", "doc-1")
	readFrame(t, conn, events.TypeRoomSnapshot)

	resp, err := http.Get(srv.URL + "/rooms/doc-1/presence?token=" + signToken(t, "ops", "viewer"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RoomID       string                `json:"room_id"`
		Participants []*models.Participant `json:"participants"`
		Count        int                   `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "doc-1", body.RoomID)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Participants, 1)
	assert.Equal(t, "alice", body.Participants[0].UserID)

	// Unknown rooms 404, unauthenticated requests 401.
	resp404, err := http.Get(srv.URL + "/rooms/nope/presence?token=" + signToken(t, "ops", "viewer"))
	require.NoError(t, err)
	resp404.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)

	resp401, err := http.Get(srv.URL + "/rooms/doc-1/presence")
	require.NoError(t, err)
	resp401.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp401.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
