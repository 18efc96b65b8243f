package domain

import "encoding/json"

type TaskState string

const (
	Pending      TaskState = "pending"
	Running      TaskState = "running"
	Succeeded    TaskState = "succeeded"
	Failed       TaskState = "failed"
	Retrying     TaskState = "retrying"
	DeadLettered TaskState = "dead_lettered"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type ChannelStatus string

const (
	ChannelSent    ChannelStatus = "sent"
	ChannelSkipped ChannelStatus = "skipped"
	ChannelFailed  ChannelStatus = "failed"
)

// Task is one unit of dispatch work for one admitted webhook event. It is
// created by the ingress in pending state and mutated only by the worker
// currently holding its delivery.
type Task struct {
	ID               string        `json:"id"`
	Event            JobMatchEvent `json:"event"`
	State            TaskState     `json:"state"`
	AttemptCount     int           `json:"attempt_count"`
	MaxAttempts      int           `json:"max_attempts"`
	NextRetryAtStamp int64         `json:"next_retry_at_stamp,omitempty"`
	CreatedAtStamp   int64         `json:"created_at_stamp"`
	LastError        string        `json:"last_error,omitempty"`
}

// ChannelResult is the per-channel outcome of one task execution.
type ChannelResult struct {
	Channel Channel       `json:"channel"`
	Status  ChannelStatus `json:"status"`
	Error   string        `json:"error,omitempty"`
}

// Marshal serializes the task for the broker wire.
func (t *Task) Marshal() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func UnmarshalTask(body string) (*Task, error) {
	task := new(Task)
	if err := json.Unmarshal([]byte(body), task); err != nil {
		return nil, err
	}

	return task, nil
}
