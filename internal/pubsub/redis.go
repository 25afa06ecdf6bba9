package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"collab-service/pkg/logger"
)

const channelPrefix = "collab:room:"

// RedisBroker relays room traffic between service instances over Redis
// pub/sub channels keyed by room id.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects and pings the Redis instance at url.
func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBroker{client: c}, nil
}

var _ Broker = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, roomID string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal envelope: %w", err)
	}
	return b.client.Publish(ctx, channelPrefix+roomID, data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, roomID string) (<-chan Envelope, func(), error) {
	sub := b.client.Subscribe(ctx, channelPrefix+roomID)

	// Confirm the subscription before handing out the channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe room %s: %w", roomID, err)
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("Dropping malformed pubsub payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- env:
			default:
				// room loop is congested; presence resyncs on next activity
			}
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
