package domain

import "time"

// TaskQueue is the broker abstraction. Each enqueued task is delivered to at
// most one concurrently running worker; an unacked delivery becomes
// re-deliverable once the broker notices the consumer is gone.
type TaskQueue interface {
	IsHealthy() bool
	EnqueueTask(task *Task) error
	ConsumeTasks(consumerName string, handler func(TaskDelivery)) error
	Depth() (int, error)
	Close() error
}

// TaskDelivery is one leased task. Exactly one of Ack or NackWithDelay must be
// called by the worker that received it.
type TaskDelivery interface {
	Task() *Task
	// Ack removes the task from the queue for good.
	Ack() error
	// NackWithDelay settles the current delivery and schedules the (already
	// mutated) task for redelivery no earlier than the given delay.
	NackWithDelay(task *Task, delay time.Duration) error
}
