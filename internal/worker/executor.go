package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sf7293/job-notifier/internal/domain"
)

// TaskDispatcher is the per-execution dispatch logic (preference resolution +
// channel fan-out).
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task *domain.Task) ([]domain.ChannelResult, error)
}

// Executor runs one leased task to completion: running -> succeeded, or
// running -> retrying (nack with backoff delay), or running -> dead_lettered
// once attempts are exhausted. It is the only writer of a task it holds.
type Executor struct {
	dispatcher  TaskDispatcher
	statusStore domain.StatusStore
	backoffBase time.Duration
	backoffCap  time.Duration
}

func NewExecutor(dispatcher TaskDispatcher, statusStore domain.StatusStore, backoffBase, backoffCap time.Duration) *Executor {
	return &Executor{
		dispatcher:  dispatcher,
		statusStore: statusStore,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
	}
}

func (e *Executor) HandleDelivery(ctx context.Context, d domain.TaskDelivery) {
	task := d.Task()
	task.AttemptCount++
	slog.Info("Task is picked up from the queue", "task_id", task.ID, "attempt", task.AttemptCount)

	task.State = domain.Running
	e.recordStatus(ctx, task, nil)

	results, err := e.dispatcher.Dispatch(ctx, task)
	if err != nil {
		e.settleFailure(ctx, d, task, results, err.Error())
		return
	}

	if failedErr, failed := firstFailure(results); failed {
		e.settleFailure(ctx, d, task, results, failedErr)
		return
	}

	task.State = domain.Succeeded
	task.LastError = ""
	e.recordStatus(ctx, task, results)
	if err = d.Ack(); err != nil {
		slog.Error("Error occurred while acking succeeded task", "task_id", task.ID, "error", err.Error())
		return
	}

	slog.Info("Task succeeded", "task_id", task.ID, "attempt_count", task.AttemptCount, "channels", len(results))
}

// settleFailure applies the task-level retry policy after a failed execution.
func (e *Executor) settleFailure(ctx context.Context, d domain.TaskDelivery, task *domain.Task, results []domain.ChannelResult, lastError string) {
	task.LastError = lastError

	if task.AttemptCount < task.MaxAttempts {
		delay := RetryDelay(task.AttemptCount, e.backoffBase, e.backoffCap)
		task.State = domain.Retrying
		task.NextRetryAtStamp = time.Now().UTC().Add(delay).Unix()
		e.recordStatus(ctx, task, results)

		if err := d.NackWithDelay(task, delay); err != nil {
			slog.Error("Error occurred while nacking task for retry", "task_id", task.ID, "error", err.Error())
			return
		}

		slog.Warn("Task failed, scheduled for retry", "task_id", task.ID,
			"attempt_count", task.AttemptCount, "retry_delay", delay.String(), "last_error", lastError)
		return
	}

	// Attempts exhausted: keep the record and its last error for inspection,
	// stop retrying
	task.State = domain.DeadLettered
	task.NextRetryAtStamp = 0
	e.recordStatus(ctx, task, results)
	if err := d.Ack(); err != nil {
		slog.Error("Error occurred while acking dead-lettered task", "task_id", task.ID, "error", err.Error())
		return
	}

	slog.Error("Task dead-lettered after exhausting attempts", "task_id", task.ID,
		"attempt_count", task.AttemptCount, "last_error", lastError)
}

func (e *Executor) recordStatus(ctx context.Context, task *domain.Task, results []domain.ChannelResult) {
	if results == nil {
		results = []domain.ChannelResult{}
	}

	err := e.statusStore.SetTaskStatus(ctx, task.ID, domain.TaskStatus{
		State:            task.State,
		AttemptCount:     task.AttemptCount,
		ChannelResults:   results,
		LastError:        task.LastError,
		NextRetryAtStamp: task.NextRetryAtStamp,
		UpdatedAtStamp:   time.Now().UTC().Unix(),
	})
	if err != nil {
		slog.Error("Error occurred while updating task status projection", "task_id", task.ID, "state", task.State, "error", err.Error())
	}
}

func firstFailure(results []domain.ChannelResult) (string, bool) {
	for _, r := range results {
		if r.Status == domain.ChannelFailed {
			return r.Error, true
		}
	}

	return "", false
}
