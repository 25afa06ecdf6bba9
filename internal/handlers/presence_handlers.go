package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"collab-service/internal/auth"
	"collab-service/internal/room"
)

// PresenceHandlers exposes read-only room state over HTTP for dashboards and
// the excluded CRUD layer.
type PresenceHandlers struct {
	verifier auth.Verifier
	registry *room.Registry
}

func NewPresenceHandlers(verifier auth.Verifier, registry *room.Registry) *PresenceHandlers {
	return &PresenceHandlers{
		verifier: verifier,
		registry: registry,
	}
}

// GetRoomPresence handles GET /rooms/{id}/presence.
func (h *PresenceHandlers) GetRoomPresence(w http.ResponseWriter, r *http.Request) {
	if _, err := h.getIdentity(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	snapshot, ok := h.registry.Lookup(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"room_id":      snapshot.RoomID,
		"participants": snapshot.Participants,
		"count":        len(snapshot.Participants),
		"feed":         snapshot.Feed,
	})
}

// Healthz handles GET /healthz.
func (h *PresenceHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"rooms":  h.registry.RoomCount(),
	})
}

func (h *PresenceHandlers) getIdentity(r *http.Request) (*auth.Identity, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token")
	}
	return h.verifier.Verify(tokenStr)
}

func getRoomIDFromPath(r *http.Request) (string, error) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("invalid path")
	}
	return parts[2], nil
}
