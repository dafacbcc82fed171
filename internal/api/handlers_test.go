// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/foreman/internal/alerting"
	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/queue"
	"github.com/tomtom215/foreman/internal/samples"
	"github.com/tomtom215/foreman/internal/worker"
)

var (
	_ TaskStore    = (*queue.Store)(nil)
	_ WorkerSource = (*worker.Registry)(nil)
	_ AlertSource  = (*alerting.Emitter)(nil)
)

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

type fakeSamples struct {
	rows   []models.MetricSample
	err    error
	filter samples.QueryFilter
}

func (f *fakeSamples) Query(_ context.Context, filter samples.QueryFilter) ([]models.MetricSample, error) {
	f.filter = filter
	return f.rows, f.err
}

type testEnv struct {
	store    *queue.Store
	registry *worker.Registry
	emitter  *alerting.Emitter
	samples  *fakeSamples
	handler  http.Handler

	mu        sync.Mutex
	shutdowns []bool
}

func setupEnv(t *testing.T, mwCfg *ChiMiddlewareConfig) *testEnv {
	t.Helper()

	cfg := queue.DefaultConfig()
	cfg.InMemory = true
	cfg.Path = ""
	cfg.SyncWrites = false
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := worker.NewRegistry()
	reg, err := registry.Register(worker.NewMockRunner("impl", 4))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	reg.SetStatus(models.WorkerAlive)

	emitter := alerting.NewEmitter(alerting.DefaultEmitterConfig(), nil)
	t.Cleanup(func() { _ = emitter.Close() })

	env := &testEnv{store: store, registry: registry, emitter: emitter, samples: &fakeSamples{}}
	h := NewHandler(store, registry, emitter,
		WithSamples(env.samples),
		WithRetentionDays(7),
		WithShutdown(func(force bool) {
			env.mu.Lock()
			env.shutdowns = append(env.shutdowns, force)
			env.mu.Unlock()
		}),
	)
	env.handler = NewRouter(h, mwCfg).SetupChi()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func (e *testEnv) enqueue(t *testing.T, recipient string, priority int) string {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/api/v1/tasks", models.EnqueueRequest{
		Sender:    "planner",
		Recipient: recipient,
		Kind:      "implement",
		Priority:  priority,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue: status %d body %s", w.Code, w.Body.String())
	}
	var resp models.EnqueueResponse
	decodeData(t, env, &resp)
	return resp.TaskID
}

func TestHealthLive(t *testing.T) {
	env := setupEnv(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/v1/health/live", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if resp.Status != "success" {
		t.Errorf("envelope status = %q", resp.Status)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id response header")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	env := setupEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := setupEnv(t, nil)
	id := env.enqueue(t, "impl", 5)

	w, resp := env.do(t, http.MethodGet, "/api/v1/tasks/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var task models.Task
	decodeData(t, resp, &task)
	if task.Status != models.TaskQueued || task.Recipient != "impl" {
		t.Fatalf("unexpected task %+v", task)
	}

	w, resp = env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/start", models.StartRequest{Owner: "impl-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", w.Code, w.Body.String())
	}
	decodeData(t, resp, &task)
	if task.Status != models.TaskRunning || task.Owner != "impl-1" {
		t.Errorf("after start: %+v", task)
	}

	w, resp = env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/complete", models.CompleteRequest{DurationMillis: 150})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", w.Code, w.Body.String())
	}
	decodeData(t, resp, &task)
	if task.Status != models.TaskCompleted {
		t.Errorf("after complete: %+v", task)
	}
	if task.DurationMillis == nil || *task.DurationMillis != 150 {
		t.Errorf("duration = %v, want 150", task.DurationMillis)
	}

	// A second completion is a conflict and never re-records the duration.
	w, resp = env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/complete", models.CompleteRequest{DurationMillis: 9})
	if w.Code != http.StatusConflict {
		t.Fatalf("second complete: status %d, want 409", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidTransition {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestCompleteTask_DurationBeyondElapsed(t *testing.T) {
	env := setupEnv(t, nil)
	id := env.enqueue(t, "impl", 5)
	env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/start", nil)

	w, resp := env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/complete", models.CompleteRequest{DurationMillis: 10_000_000_000_000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 (body %s)", w.Code, w.Body.String())
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidArgument {
		t.Errorf("error = %+v", resp.Error)
	}

	// The task is still Running and can be completed with a plausible duration.
	w, _ = env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/complete", models.CompleteRequest{DurationMillis: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("retry: status %d body %s", w.Code, w.Body.String())
	}
}

func TestTaskRejectionsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(logging.NewTestLogger(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	env := setupEnv(t, nil)
	id := env.enqueue(t, "impl", 5)
	env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/start", nil)
	env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/complete", models.CompleteRequest{DurationMillis: 5})

	w, _ := env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/complete", models.CompleteRequest{DurationMillis: 5})
	if w.Code != http.StatusConflict {
		t.Fatalf("second complete: status %d, want 409", w.Code)
	}
	w, _ = env.do(t, http.MethodGet, "/api/v1/tasks/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get unknown: status %d, want 404", w.Code)
	}

	var conflict, notFound bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["level"] != "warn" || entry["message"] != "Task request rejected" {
			continue
		}
		switch {
		case entry["task_id"] == id && entry["code"] == CodeInvalidTransition:
			conflict = true
		case entry["task_id"] == "ghost" && entry["code"] == CodeTaskNotFound:
			notFound = true
		}
	}
	if !conflict {
		t.Errorf("no warn entry for the rejected transition:\n%s", buf.String())
	}
	if !notFound {
		t.Errorf("no warn entry for the unknown task:\n%s", buf.String())
	}
}

func TestFailTask(t *testing.T) {
	env := setupEnv(t, nil)
	id := env.enqueue(t, "impl", 5)

	// Fail requires Running.
	w, _ := env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/fail", models.FailRequest{ErrorMessage: "boom"})
	if w.Code != http.StatusConflict {
		t.Fatalf("fail on queued: status %d, want 409", w.Code)
	}

	env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/start", nil)
	w, resp := env.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/fail", models.FailRequest{ErrorMessage: "boom"})
	if w.Code != http.StatusOK {
		t.Fatalf("fail: status %d body %s", w.Code, w.Body.String())
	}
	var task models.Task
	decodeData(t, resp, &task)
	if task.Status != models.TaskFailed || task.ErrorMessage != "boom" {
		t.Errorf("after fail: %+v", task)
	}
}

func TestTaskErrors(t *testing.T) {
	env := setupEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown task", http.MethodGet, "/api/v1/tasks/missing", nil, http.StatusNotFound, CodeTaskNotFound},
		{"start unknown", http.MethodPost, "/api/v1/tasks/missing/start", nil, http.StatusNotFound, CodeTaskNotFound},
		{"missing recipient", http.MethodPost, "/api/v1/tasks", models.EnqueueRequest{Sender: "a", Kind: "k", Priority: 5}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"priority out of range", http.MethodPost, "/api/v1/tasks", models.EnqueueRequest{Sender: "a", Recipient: "impl", Kind: "k", Priority: 11}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"fail without message", http.MethodPost, "/api/v1/tasks/x/fail", models.FailRequest{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative duration", http.MethodPost, "/api/v1/tasks/x/complete", map[string]int{"duration_ms": -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if resp.Status != "error" || resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	env := setupEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestStoreClosedIsUnavailable(t *testing.T) {
	env := setupEnv(t, nil)
	_ = env.store.Close()

	w, resp := env.do(t, http.MethodGet, "/api/v1/queue", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != CodeStoreUnavailable {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestStatus(t *testing.T) {
	env := setupEnv(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var report models.StatusReport
	decodeData(t, resp, &report)
	if len(report.Workers) != 1 || report.Workers[0].AgentID != "impl" {
		t.Fatalf("workers = %+v", report.Workers)
	}
	if report.Workers[0].Status != models.WorkerAlive {
		t.Errorf("impl status = %s, want alive", report.Workers[0].Status)
	}

	w, resp = env.do(t, http.MethodGet, "/api/v1/status?agent=ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown agent: status %d, want 404", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != CodeUnknownAgent {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestQueue(t *testing.T) {
	env := setupEnv(t, nil)
	env.enqueue(t, "impl", 9)
	env.enqueue(t, "impl", 5)
	env.enqueue(t, "review", 1)

	_, resp := env.do(t, http.MethodGet, "/api/v1/queue", nil)
	var depths []models.QueueDepth
	decodeData(t, resp, &depths)
	if len(depths) != 2 {
		t.Fatalf("depths = %+v", depths)
	}
	total := map[string]int{}
	for _, d := range depths {
		total[d.AgentID] = d.Total
	}
	if total["impl"] != 2 || total["review"] != 1 {
		t.Errorf("totals = %v", total)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/queue?agent=idle", nil)
	decodeData(t, resp, &depths)
	if len(depths) != 1 || depths[0].AgentID != "idle" || depths[0].Total != 0 {
		t.Errorf("idle depth = %+v", depths)
	}
}

func TestBottlenecks(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	for _, d := range []int64{100, 300, 200} {
		id := env.enqueue(t, "impl", 5)
		if _, err := env.store.MarkStarted(ctx, id, "impl"); err != nil {
			t.Fatalf("MarkStarted: %v", err)
		}
		if _, err := env.store.MarkCompleted(ctx, id, d); err != nil {
			t.Fatalf("MarkCompleted: %v", err)
		}
	}

	w, resp := env.do(t, http.MethodGet, "/api/v1/bottlenecks?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var report models.BottleneckReport
	decodeData(t, resp, &report)
	if len(report.Slowest) != 2 {
		t.Fatalf("slowest = %+v", report.Slowest)
	}
	if report.Slowest[0].DurationMillis != 300 || report.Slowest[1].DurationMillis != 200 {
		t.Errorf("slowest order = %+v", report.Slowest)
	}
	if report.Percentiles.Count != 3 {
		t.Errorf("percentile count = %d, want 3", report.Percentiles.Count)
	}
}

func TestAgentMetrics(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	id := env.enqueue(t, "impl", 5)
	if _, err := env.store.MarkStarted(ctx, id, "impl"); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if _, err := env.store.MarkCompleted(ctx, id, 400); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	env.enqueue(t, "impl", 5)
	env.samples.rows = []models.MetricSample{{AgentID: "impl", Metric: models.MetricQueueDepth, Value: 1}}

	w, resp := env.do(t, http.MethodGet, "/api/v1/agents/impl/metrics?hours=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var m models.AgentMetrics
	decodeData(t, resp, &m)
	if m.Stats.Completed != 1 || m.Stats.AvgMillis != 400 {
		t.Errorf("stats = %+v", m.Stats)
	}
	if m.Depth.Total != 1 {
		t.Errorf("depth = %+v", m.Depth)
	}
	if len(m.Samples) != 1 {
		t.Errorf("samples = %+v", m.Samples)
	}
	if env.samples.filter.AgentID != "impl" || time.Since(env.samples.filter.Since) < 2*time.Hour-time.Minute {
		t.Errorf("sample filter = %+v", env.samples.filter)
	}

	w, _ = env.do(t, http.MethodGet, "/api/v1/agents/ghost/metrics", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown agent: status %d, want 404", w.Code)
	}
}

func TestAgentMetrics_SampleErrorStillServes(t *testing.T) {
	env := setupEnv(t, nil)
	env.samples.err = errors.New("duckdb gone")

	w, resp := env.do(t, http.MethodGet, "/api/v1/agents/impl/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var m models.AgentMetrics
	decodeData(t, resp, &m)
	if m.Samples != nil {
		t.Errorf("expected no samples, got %+v", m.Samples)
	}
}

func TestCleanup(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	id := env.enqueue(t, "impl", 5)
	if _, err := env.store.MarkStarted(ctx, id, "impl"); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if _, err := env.store.MarkFailed(ctx, id, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	env.enqueue(t, "impl", 5)

	// Default retention keeps the fresh failure.
	_, resp := env.do(t, http.MethodPost, "/api/v1/cleanup", models.CleanupRequest{})
	var out models.CleanupResponse
	decodeData(t, resp, &out)
	if out.Removed != 0 {
		t.Errorf("removed %d with default retention, want 0", out.Removed)
	}

	w, _ := env.do(t, http.MethodPost, "/api/v1/cleanup", map[string]int{"older_than_days": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative days: status %d, want 400", w.Code)
	}
}

func TestAlerts(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	env.emitter.Emit(ctx, models.Alert{Kind: models.AlertQueueDepth, Severity: models.SeverityCritical, AgentID: "impl", Message: "deep"})
	env.emitter.Emit(ctx, models.Alert{Kind: models.AlertSlowTask, Severity: models.SeverityWarning, TaskID: "t1", Message: "slow"})

	_, resp := env.do(t, http.MethodGet, "/api/v1/alerts", nil)
	var alerts []models.Alert
	decodeData(t, resp, &alerts)
	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts[0].Kind != models.AlertSlowTask {
		t.Errorf("expected newest first, got %s", alerts[0].Kind)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/alerts?limit=1", nil)
	decodeData(t, resp, &alerts)
	if len(alerts) != 1 {
		t.Errorf("limit=1 returned %d", len(alerts))
	}
}

func TestShutdown(t *testing.T) {
	env := setupEnv(t, nil)

	w, _ := env.do(t, http.MethodPost, "/api/v1/shutdown", models.ShutdownRequest{Force: true})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202", w.Code)
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if len(env.shutdowns) != 1 || !env.shutdowns[0] {
		t.Errorf("shutdown calls = %v, want [true]", env.shutdowns)
	}
}

func TestShutdown_NoHook(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	w := httptest.NewRecorder()
	h.Shutdown(w, httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.ErrTaskNotFound, http.StatusNotFound},
		{&models.InvalidTransitionError{TaskID: "t"}, http.StatusConflict},
		{models.ErrAlreadyRunning, http.StatusConflict},
		{models.ErrInvalidArgument, http.StatusBadRequest},
		{&models.StoreUnavailableError{Op: "get", Err: errors.New("io")}, http.StatusServiceUnavailable},
		{models.ErrStoreClosed, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := classifyError(tt.err); got != tt.status {
			t.Errorf("classifyError(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
