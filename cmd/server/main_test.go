package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
	"github.com/sf7293/job-notifier/internal/ingress"
)

const testWebhookSecret = "shared-webhook-secret"

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []*domain.Task
	depth    int
	healthy  bool
}

func (q *fakeQueue) IsHealthy() bool { return q.healthy }

func (q *fakeQueue) EnqueueTask(task *domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, task)
	return nil
}

func (q *fakeQueue) ConsumeTasks(string, func(domain.TaskDelivery)) error { return nil }

func (q *fakeQueue) Depth() (int, error) { return q.depth, nil }

func (q *fakeQueue) Close() error { return nil }

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDedup) Admit(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *fakeDedup) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

type fakeStatusStore struct {
	mu       sync.Mutex
	statuses map[string]domain.TaskStatus
	pingErr  error
}

func (s *fakeStatusStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStatusStore) SetTaskStatus(_ context.Context, taskID string, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]domain.TaskStatus)
	}
	s.statuses[taskID] = status
	return nil
}

func (s *fakeStatusStore) GetTaskStatus(_ context.Context, taskID string) (*domain.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[taskID]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return &status, nil
}

func newTestRouter(queue *fakeQueue, statusStore *fakeStatusStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	ing := ingress.NewIngress(queue, &fakeDedup{}, statusStore, testWebhookSecret, 10*time.Minute, 3)
	return setupHTTPServer(ing, statusStore, queue)
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/job-match", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validWebhookBody() []byte {
	return []byte(`{"type":"INSERT","table":"job_application_tracking","record":{"cand_id":42,"requirement_id":"REQ-9"}}`)
}

func TestWebhookAccepted(t *testing.T) {
	queue := &fakeQueue{healthy: true}
	router := newTestRouter(queue, &fakeStatusStore{})

	body := validWebhookBody()
	w := postWebhook(router, body, ingress.SignBody(body, testWebhookSecret))
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["task_id"])

	assert.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp["task_id"], queue.enqueued[0].ID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	queue := &fakeQueue{healthy: true}
	router := newTestRouter(queue, &fakeStatusStore{})

	body := validWebhookBody()
	w := postWebhook(router, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(router, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, queue.enqueued)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	queue := &fakeQueue{healthy: true}
	router := newTestRouter(queue, &fakeStatusStore{})

	body := []byte(`{"type":"INSERT"`)
	w := postWebhook(router, body, ingress.SignBody(body, testWebhookSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = []byte(`{"type":"INSERT","table":"job_application_tracking","record":{}}`)
	w = postWebhook(router, body, ingress.SignBody(body, testWebhookSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookConflictOnDuplicate(t *testing.T) {
	queue := &fakeQueue{healthy: true}
	router := newTestRouter(queue, &fakeStatusStore{})

	body := validWebhookBody()
	signature := ingress.SignBody(body, testWebhookSecret)

	w := postWebhook(router, body, signature)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = postWebhook(router, body, signature)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Len(t, queue.enqueued, 1)
}

func TestGetTaskStatus(t *testing.T) {
	statusStore := &fakeStatusStore{}
	router := newTestRouter(&fakeQueue{healthy: true}, statusStore)

	err := statusStore.SetTaskStatus(context.Background(), "task-1", domain.TaskStatus{
		State:        domain.Succeeded,
		AttemptCount: 1,
		ChannelResults: []domain.ChannelResult{
			{Channel: domain.ChannelEmail, Status: domain.ChannelSent},
		},
		UpdatedAtStamp: time.Now().UTC().Unix(),
	})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/task/task-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var status domain.TaskStatus
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, domain.Succeeded, status.State)
	assert.Equal(t, 1, status.AttemptCount)
}

func TestGetTaskStatusNotFound(t *testing.T) {
	router := newTestRouter(&fakeQueue{healthy: true}, &fakeStatusStore{})

	req := httptest.NewRequest(http.MethodGet, "/task/unknown-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthReportsQueueDepth(t *testing.T) {
	router := newTestRouter(&fakeQueue{healthy: true, depth: 3}, &fakeStatusStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, float64(3), resp["queue_depth"])
}

func TestLiveness(t *testing.T) {
	router := newTestRouter(&fakeQueue{healthy: true}, &fakeStatusStore{})

	req := httptest.NewRequest(http.MethodGet, "/liveness", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	router = newTestRouter(&fakeQueue{healthy: false}, &fakeStatusStore{})
	req = httptest.NewRequest(http.MethodGet, "/liveness", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
