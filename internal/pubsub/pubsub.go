package pubsub

import (
	"context"
	"encoding/json"
)

// Envelope is the cross-instance relay frame. Origin carries the publishing
// instance id so subscribers can ignore their own messages.
type Envelope struct {
	Origin string          `json:"origin"`
	RoomID string          `json:"room_id"`
	Data   json.RawMessage `json:"data"`
}

// Broker fans room traffic out across service instances. A single-instance
// deployment uses the in-process implementation; a scaled deployment swaps in
// Redis without the rooms noticing. Delivery is best-effort at-most-once.
type Broker interface {
	// Publish sends an envelope to every subscriber of the room's channel.
	Publish(ctx context.Context, roomID string, env Envelope) error

	// Subscribe returns a channel of envelopes for the room and a cancel
	// function. The channel is closed after cancel.
	Subscribe(ctx context.Context, roomID string) (<-chan Envelope, func(), error)

	Close() error
}
