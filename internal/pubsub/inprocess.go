package pubsub

import (
	"context"
	"sync"
)

// InProcessBroker is the single-instance Broker: plain channel fan-out inside
// the process. Full subscriber buffers are skipped rather than blocked on.
type InProcessBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Envelope]bool
	closed bool
}

func NewInProcessBroker() *InProcessBroker {
	return &InProcessBroker{
		subs: make(map[string]map[chan Envelope]bool),
	}
}

func (b *InProcessBroker) Publish(ctx context.Context, roomID string, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[roomID] {
		select {
		case ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// subscriber is congested, drop
		}
	}
	return nil
}

func (b *InProcessBroker) Subscribe(ctx context.Context, roomID string) (<-chan Envelope, func(), error) {
	ch := make(chan Envelope, 64)

	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[chan Envelope]bool)
	}
	b.subs[roomID][ch] = true
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[roomID]; ok && subs[ch] {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, roomID)
			}
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (b *InProcessBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for roomID, subs := range b.subs {
		for ch := range subs {
			close(ch)
		}
		delete(b.subs, roomID)
	}
	return nil
}
