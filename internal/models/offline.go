package models

import (
	"encoding/json"
	"time"
)

// PendingOp is an edit a participant made while disconnected, submitted on
// reconnect for replay. Ops replay in origin-timestamp order and are dropped
// after the maximum retry count or when the server state is newer.
type PendingOp struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	OriginTS time.Time       `json:"origin_ts"`
	Retries  int             `json:"-"`
}

type SyncResultStatus string

const (
	SyncApplied SyncResultStatus = "applied"
	SyncDropped SyncResultStatus = "dropped"
	SyncRetried SyncResultStatus = "retried"
)

// SyncResult reports the fate of one replayed offline operation.
type SyncResult struct {
	Type     string           `json:"type"`
	OriginTS time.Time        `json:"origin_ts"`
	Status   SyncResultStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
}
