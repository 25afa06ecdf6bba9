package handlers

import (
	"net/http"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/events"
	"collab-service/internal/room"
	ws "collab-service/internal/websocket"
	"collab-service/pkg/logger"

	"github.com/gorilla/websocket"
)

// WebSocketHandlers is the connection gateway: it authenticates the join
// token, upgrades the connection and hands it to the room registry.
type WebSocketHandlers struct {
	verifier auth.Verifier
	registry *room.Registry
	cfg      config.CollabConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(verifier auth.Verifier, registry *room.Registry, cfg config.CollabConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		verifier: verifier,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get the join token from query parameters
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	// Validate against the external identity verifier; no retry on failure
	ident, err := h.verifier.Verify(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Room id is the diagram id and is required
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	// Optional last-known session id for reconnect and offline-op replay
	lastSession := r.URL.Query().Get("session")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, ident.UserID, h.cfg.InboundRate, h.cfg.InboundBurst)

	res, err := h.registry.Join(roomID, *ident, lastSession, client)
	if err != nil {
		logger.Error("Error joining room %s: %v", roomID, err)
		_ = conn.Close()
		return
	}
	client.Bind(res.Room, res.Participant.SessionID)

	// The snapshot is the first frame the client sees: its color and role plus
	// everyone already in the room and the activity feed tail.
	if data, err := events.Marshal(events.TypeRoomSnapshot, res.Snapshot); err == nil {
		_ = client.Send(data)
	}

	go client.WritePump()
	go client.ReadPump()
}
