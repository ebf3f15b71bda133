package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

// stubEnqueuer records the submitted payload.
type stubEnqueuer struct {
	got  GLIntegrityScanPayload
	info *asynq.TaskInfo
	err  error
}

func (s *stubEnqueuer) EnqueueGLIntegrityScan(_ context.Context, payload GLIntegrityScanPayload) (*asynq.TaskInfo, error) {
	s.got = payload
	return s.info, s.err
}

func TestNewGLIntegrityScanTask(t *testing.T) {
	task, err := NewGLIntegrityScanTask(GLIntegrityScanPayload{CompanyCodes: []string{"ACME", "WIDGET"}})
	require.NoError(t, err)
	require.Equal(t, TaskGLIntegrityScan, task.Type())

	var payload GLIntegrityScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, []string{"ACME", "WIDGET"}, payload.CompanyCodes)
}

func TestNewWorkerSkipsEmptyHandlers(t *testing.T) {
	worker, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Handlers: []TaskHandler{
			{Type: "", Handler: func(ctx context.Context, t *asynq.Task) error { return nil }},
			{Type: TaskGLIntegrityScan, Handler: nil},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, worker)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	handler := NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.health(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestEnqueueGLIntegrityScan(t *testing.T) {
	enq := &stubEnqueuer{info: &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}}
	handler := NewHandler(nil, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/gl-integrity", strings.NewReader(`{"companyCodes":["ACME"]}`))
	rr := httptest.NewRecorder()
	handler.enqueueGLIntegrity(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"taskId":"task-1","queue":"default"}`, rr.Body.String())
	require.Equal(t, []string{"ACME"}, enq.got.CompanyCodes)
}

func TestEnqueueGLIntegrityScanRejectsBadBody(t *testing.T) {
	enq := &stubEnqueuer{info: &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}}
	handler := NewHandler(nil, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/gl-integrity", strings.NewReader(`{`))
	rr := httptest.NewRecorder()
	handler.enqueueGLIntegrity(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEnqueueGLIntegrityScanWithoutClient(t *testing.T) {
	handler := NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(http.MethodPost, "/gl-integrity", nil)
	rr := httptest.NewRecorder()
	handler.enqueueGLIntegrity(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
