package queue

import "context"

// Task is a background job with a stable type string and opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a task. A non-nil error signals retry per adapter policy;
// handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task) (id string, err error)
	Close() error
}

// Server runs background workers. Run blocks until the context is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}

// NoopClient discards every task. Used when no queue backend is configured.
type NoopClient struct{}

func (NoopClient) Enqueue(ctx context.Context, t Task) (string, error) { return "", nil }
func (NoopClient) Close() error                                        { return nil }
