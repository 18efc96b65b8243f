package domain

import (
	"context"
	"time"
)

// TaskStatus is the externally pollable projection of a task, refreshed on
// every state transition including intermediate retrying states.
type TaskStatus struct {
	State            TaskState       `json:"state"`
	AttemptCount     int             `json:"attempt_count"`
	ChannelResults   []ChannelResult `json:"channel_results"`
	LastError        string          `json:"last_error,omitempty"`
	NextRetryAtStamp int64           `json:"next_retry_at_stamp,omitempty"`
	UpdatedAtStamp   int64           `json:"updated_at_stamp"`
}

type StatusStore interface {
	Ping(ctx context.Context) error
	SetTaskStatus(ctx context.Context, taskID string, status TaskStatus) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
}

// DedupStore remembers recently admitted event identifiers for a bounded
// window.
type DedupStore interface {
	// Admit returns true exactly once per key per window.
	Admit(ctx context.Context, key string, window time.Duration) (bool, error)
	// Release forgets an admitted key so the event can be admitted again,
	// used when the task never made it onto the queue.
	Release(ctx context.Context, key string) error
}
