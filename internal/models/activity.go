package models

import "time"

type ActivityType string

const (
	ActivityShapeCreated ActivityType = "shape_created"
	ActivityShapeDeleted ActivityType = "shape_deleted"
	ActivityElementEdit  ActivityType = "element_edit"
	ActivityRoleChanged  ActivityType = "role_changed"
)

// ActivityEvent is an immutable record of a significant room action.
type ActivityEvent struct {
	ID        string       `json:"id"`
	ActorID   string       `json:"actor_id"`
	ActorName string       `json:"actor_name"`
	Type      ActivityType `json:"type"`
	Summary   string       `json:"summary,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ActivityFeed is a bounded FIFO of the most recent room events. Oldest
// entries are evicted once capacity is exceeded. Not safe for concurrent use;
// the owning room serializes access.
type ActivityFeed struct {
	capacity int
	entries  []ActivityEvent
}

func NewActivityFeed(capacity int) *ActivityFeed {
	if capacity < 1 {
		capacity = 1
	}
	return &ActivityFeed{
		capacity: capacity,
		entries:  make([]ActivityEvent, 0, capacity),
	}
}

func (f *ActivityFeed) Append(ev ActivityEvent) {
	if len(f.entries) == f.capacity {
		copy(f.entries, f.entries[1:])
		f.entries = f.entries[:f.capacity-1]
	}
	f.entries = append(f.entries, ev)
}

// Tail returns up to n most recent events, oldest first. n of 0 returns all.
func (f *ActivityFeed) Tail(n int) []ActivityEvent {
	if n <= 0 || n > len(f.entries) {
		n = len(f.entries)
	}
	out := make([]ActivityEvent, n)
	copy(out, f.entries[len(f.entries)-n:])
	return out
}

func (f *ActivityFeed) Len() int {
	return len(f.entries)
}
