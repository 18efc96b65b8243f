package ingress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
	"github.com/stretchr/testify/assert"
)

type fakeQueue struct {
	enqueued    []*domain.Task
	enqueueErrs []error
}

func (q *fakeQueue) IsHealthy() bool { return true }

func (q *fakeQueue) EnqueueTask(t *domain.Task) error {
	if len(q.enqueueErrs) > 0 {
		err := q.enqueueErrs[0]
		q.enqueueErrs = q.enqueueErrs[1:]
		return err
	}

	q.enqueued = append(q.enqueued, t)
	return nil
}

func (q *fakeQueue) ConsumeTasks(string, func(domain.TaskDelivery)) error { return nil }

func (q *fakeQueue) Depth() (int, error) { return len(q.enqueued), nil }

func (q *fakeQueue) Close() error { return nil }

type fakeDedup struct {
	seen map[string]bool
}

func (d *fakeDedup) Admit(_ context.Context, key string, _ time.Duration) (bool, error) {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *fakeDedup) Release(_ context.Context, key string) error {
	delete(d.seen, key)
	return nil
}

type fakeStatusStore struct {
	statuses map[string]domain.TaskStatus
}

func (s *fakeStatusStore) Ping(context.Context) error { return nil }

func (s *fakeStatusStore) SetTaskStatus(_ context.Context, id string, st domain.TaskStatus) error {
	if s.statuses == nil {
		s.statuses = map[string]domain.TaskStatus{}
	}
	s.statuses[id] = st
	return nil
}

func (s *fakeStatusStore) GetTaskStatus(_ context.Context, id string) (*domain.TaskStatus, error) {
	st, ok := s.statuses[id]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return &st, nil
}

const testSecret = "shared-webhook-secret"

var validBody = []byte(`{"type":"INSERT","table":"job_application_tracking","record":{"cand_id":42,"requirement_id":"REQ-9"}}`)

func newTestIngress(q *fakeQueue) *Ingress {
	return NewIngress(q, &fakeDedup{}, &fakeStatusStore{}, testSecret, 10*time.Minute, 3)
}

func TestAdmit_Success(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	task, err := ing.Admit(context.Background(), validBody, SignBody(validBody, testSecret))
	assert.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.Pending, task.State)
	assert.Equal(t, 0, task.AttemptCount)
	assert.Equal(t, 3, task.MaxAttempts)
	assert.Equal(t, int64(42), task.Event.Record.CandID)
	assert.Len(t, q.enqueued, 1)
}

func TestAdmit_InvalidSignature(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	_, err := ing.Admit(context.Background(), validBody, "deadbeef")
	assert.ErrorIs(t, err, errval.ErrUnauthorized)
	assert.Empty(t, q.enqueued)
}

func TestAdmit_MissingSignature(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	_, err := ing.Admit(context.Background(), validBody, "")
	assert.ErrorIs(t, err, errval.ErrUnauthorized)
	assert.Empty(t, q.enqueued)
}

func TestAdmit_TamperedBody(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	tampered := []byte(`{"type":"INSERT","table":"job_application_tracking","record":{"cand_id":43,"requirement_id":"REQ-9"}}`)
	_, err := ing.Admit(context.Background(), tampered, SignBody(validBody, testSecret))
	assert.ErrorIs(t, err, errval.ErrUnauthorized)
	assert.Empty(t, q.enqueued)
}

func TestAdmit_MalformedBody(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	body := []byte(`{"type":"INSERT"`)
	_, err := ing.Admit(context.Background(), body, SignBody(body, testSecret))
	assert.ErrorIs(t, err, errval.ErrInvalidPayload)
	assert.Empty(t, q.enqueued)
}

func TestAdmit_MissingIdentifyingFields(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	body := []byte(`{"type":"INSERT","table":"job_application_tracking","record":{"cand_id":42}}`)
	_, err := ing.Admit(context.Background(), body, SignBody(body, testSecret))
	assert.ErrorIs(t, err, errval.ErrInvalidPayload)
	assert.Empty(t, q.enqueued)
}

// Submitting the same event twice inside the window enqueues exactly one task.
func TestAdmit_DuplicateWindow(t *testing.T) {
	q := &fakeQueue{}
	ing := newTestIngress(q)

	sig := SignBody(validBody, testSecret)
	_, err := ing.Admit(context.Background(), validBody, sig)
	assert.NoError(t, err)

	_, err = ing.Admit(context.Background(), validBody, sig)
	assert.ErrorIs(t, err, errval.ErrDuplicate)
	assert.Len(t, q.enqueued, 1)
}

// A failed enqueue must not consume the dedup window: the sender's retry of
// the same event has to get a task onto the queue.
func TestAdmit_RetryAfterFailedEnqueue(t *testing.T) {
	q := &fakeQueue{enqueueErrs: []error{errors.New("broker unavailable")}}
	ing := newTestIngress(q)

	sig := SignBody(validBody, testSecret)
	_, err := ing.Admit(context.Background(), validBody, sig)
	assert.ErrorIs(t, err, errval.ErrInternal)
	assert.Empty(t, q.enqueued)

	task, err := ing.Admit(context.Background(), validBody, sig)
	assert.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Len(t, q.enqueued, 1)
}

func TestVerifySignature_ConstantTimeHelpers(t *testing.T) {
	body := []byte("payload")
	assert.True(t, VerifySignature(body, SignBody(body, "k"), "k"))
	assert.False(t, VerifySignature(body, SignBody(body, "k"), "other"))
	assert.False(t, VerifySignature(body, "", "k"))
}
