package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
)

// Ingress authenticates inbound webhook calls, deduplicates them and hands a
// pending task to the queue. Admission never blocks on dispatch: the task id
// is returned as soon as the broker accepts the message.
type Ingress struct {
	queue         domain.TaskQueue
	dedup         domain.DedupStore
	statusStore   domain.StatusStore
	webhookSecret string
	dedupWindow   time.Duration
	maxAttempts   int
	validate      *validator.Validate
}

func NewIngress(queue domain.TaskQueue, dedup domain.DedupStore, statusStore domain.StatusStore, webhookSecret string, dedupWindow time.Duration, maxAttempts int) *Ingress {
	return &Ingress{
		queue:         queue,
		dedup:         dedup,
		statusStore:   statusStore,
		webhookSecret: webhookSecret,
		dedupWindow:   dedupWindow,
		maxAttempts:   maxAttempts,
		validate:      validator.New(),
	}
}

// Admit verifies the signature over the raw body, parses and validates the
// event, rejects duplicates inside the dedup window and enqueues a pending
// task. The returned errors map onto HTTP statuses in cmd/server.
func (i *Ingress) Admit(ctx context.Context, rawBody []byte, signature string) (*domain.Task, error) {
	if !VerifySignature(rawBody, signature, i.webhookSecret) {
		slog.Warn("Rejected webhook call with invalid signature")
		return nil, errval.ErrUnauthorized
	}

	var event domain.JobMatchEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		slog.Error("Error occurred while unmarshalling webhook body", "error", err.Error())
		return nil, errval.ErrInvalidPayload
	}

	if err := i.validate.Struct(event); err != nil {
		slog.Error("Webhook event is missing required identifying fields", "error", err.Error())
		return nil, errval.ErrInvalidPayload
	}

	admitted, err := i.dedup.Admit(ctx, event.DedupKey(), i.dedupWindow)
	if err != nil {
		slog.ErrorContext(ctx, "Error occurred while checking dedup window", "error", err.Error())
		return nil, errval.ErrInternal
	}
	if !admitted {
		slog.Info("Duplicate webhook event inside dedup window, refusing second task",
			"cand_id", event.Record.CandID, "requirement_id", event.Record.RequirementID)
		return nil, errval.ErrDuplicate
	}

	task := &domain.Task{
		ID:             uuid.NewString(),
		Event:          event,
		State:          domain.Pending,
		AttemptCount:   0,
		MaxAttempts:    i.maxAttempts,
		CreatedAtStamp: time.Now().UTC().Unix(),
	}

	err = i.statusStore.SetTaskStatus(ctx, task.ID, domain.TaskStatus{
		State:          domain.Pending,
		ChannelResults: []domain.ChannelResult{},
		UpdatedAtStamp: task.CreatedAtStamp,
	})
	if err != nil {
		// The snapshot is a projection, the task itself still goes through
		slog.ErrorContext(ctx, "Error occurred while recording pending task status", "task_id", task.ID, "error", err.Error())
	}

	if err = i.queue.EnqueueTask(task); err != nil {
		slog.ErrorContext(ctx, "Error occurred while enqueueing task", "task_id", task.ID, "error", err.Error())
		// The event never made it onto the queue, give the dedup window back
		// so the sender's retry is admitted instead of bouncing off a 409
		if releaseErr := i.dedup.Release(ctx, event.DedupKey()); releaseErr != nil {
			slog.ErrorContext(ctx, "Error occurred while releasing dedup key after failed enqueue",
				"task_id", task.ID, "dedup_key", event.DedupKey(), "error", releaseErr.Error())
		}
		return nil, errval.ErrInternal
	}

	slog.Info("Webhook event admitted", "task_id", task.ID,
		"cand_id", event.Record.CandID, "requirement_id", event.Record.RequirementID)
	return task, nil
}
