package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/taskmill/internal/config"
	"github.com/antoniostano/taskmill/internal/engine"
	"github.com/antoniostano/taskmill/internal/observability"
	"github.com/antoniostano/taskmill/internal/planner"
	"github.com/antoniostano/taskmill/internal/scheduler"
	"github.com/antoniostano/taskmill/internal/tasks"
)

func newTestServer(t *testing.T, name string) (*httptest.Server, *tasks.Registry) {
	t.Helper()
	ts, reg, _ := newTestServerWithArchive(t, name, nil)
	return ts, reg
}

func newTestServerWithArchive(t *testing.T, name string, archive *memoryArchive) (*httptest.Server, *tasks.Registry, *memoryArchive) {
	t.Helper()
	cfg := config.Config{
		AllowAnyOrigin:    true,
		MaxConcurrency:    2,
		MaxStepsPerChunk:  5,
		DefaultMaxRetries: 1,
		DefaultTimeout:    5 * time.Second,
	}
	reg := tasks.NewRegistry(time.Hour, 128)
	plans := planner.NewService(planner.NewHeuristicPlanner(), cfg.MaxStepsPerChunk, 0, time.Millisecond, 5*time.Millisecond)
	eng := engine.New(engine.Config{
		Registry:    reg,
		Plans:       plans,
		Executor:    engine.NewMockExecutor(),
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})
	sched := scheduler.New(scheduler.Config{
		Registry:       reg,
		Engine:         eng,
		MaxConcurrency: cfg.MaxConcurrency,
		Defaults: scheduler.Defaults{
			MaxRetries: cfg.DefaultMaxRetries,
			Timeout:    cfg.DefaultTimeout,
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Shutdown(ctx)
	})

	metrics := observability.NewMetrics("test_httpapi_" + name + "_" + time.Now().Format("150405000000000"))
	reg.SetEventHook(func(evt tasks.Event) {
		metrics.ObserveTaskEvent(string(evt.Type))
	})

	var store tasks.Store
	storeMode := "memory"
	if archive != nil {
		reg.SetStore(archive)
		store = archive
		storeMode = "archive"
	}
	srv := New(cfg, reg, sched, metrics, nil, store, storeMode)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, reg, archive
}

// memoryArchive is an in-process stand-in for the terminal-task archive.
type memoryArchive struct {
	mu    sync.Mutex
	saved map[string]tasks.Task
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{saved: make(map[string]tasks.Task)}
}

func (a *memoryArchive) SaveTask(_ context.Context, task tasks.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved[task.ID] = task
	return nil
}

func (a *memoryArchive) GetTask(_ context.Context, taskID string) (tasks.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	task, ok := a.saved[taskID]
	if !ok {
		return tasks.Task{}, tasks.ErrStoreNotFound
	}
	return task, nil
}

func (a *memoryArchive) ListTasks(_ context.Context, limit int) ([]tasks.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]tasks.Task, 0, len(a.saved))
	for _, task := range a.saved {
		out = append(out, task)
	}
	tasks.SortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memoryArchive) Close() error { return nil }

func awaitArchived(t *testing.T, archive *memoryArchive, taskID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := archive.GetTask(context.Background(), taskID); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached the archive", taskID)
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func awaitTaskStatus(t *testing.T, reg *tasks.Registry, taskID string, want tasks.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := reg.Get(taskID)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", taskID, err)
		}
		if task.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := reg.Get(taskID)
	t.Fatalf("task %s status = %s, want %s", taskID, task.Status, want)
}

func TestSubmitAndFetchTask(t *testing.T) {
	ts, reg := newTestServer(t, "submit")

	res := postJSON(t, ts.URL+"/v1/tasks", map[string]any{
		"agent_id": "coder",
		"request":  "analyze the repo, then run tests",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created submitTaskResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if created.TaskID == "" {
		t.Fatalf("missing task_id in submit response")
	}
	if created.Priority != "normal" {
		t.Fatalf("priority = %q, want default normal", created.Priority)
	}

	awaitTaskStatus(t, reg, created.TaskID, tasks.TaskStatusCompleted)

	getRes, err := http.Get(ts.URL + "/v1/tasks/" + created.TaskID)
	if err != nil {
		t.Fatalf("GET task error = %v", err)
	}
	defer getRes.Body.Close()
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("GET task status = %d, want %d", getRes.StatusCode, http.StatusOK)
	}
	var fetched tasks.Task
	if err := json.NewDecoder(getRes.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if fetched.Progress != 100 {
		t.Fatalf("progress = %d, want 100", fetched.Progress)
	}
	if fetched.Result == "" {
		t.Fatalf("result empty, want assembled output")
	}
}

func TestSubmitValidation(t *testing.T) {
	ts, _ := newTestServer(t, "validation")

	cases := []map[string]any{
		{"agent_id": "coder"},
		{"request": "do something"},
		{"agent_id": "coder", "request": "x", "priority": "urgent"},
		{"agent_id": "coder", "request": "x", "timeout_ms": -5},
		{"agent_id": "coder", "request": "y", "max_retries": -1},
	}
	for i, payload := range cases {
		res := postJSON(t, ts.URL+"/v1/tasks", payload)
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d status = %d, want %d", i, res.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestDuplicateSubmissionReturnsSameTask(t *testing.T) {
	ts, _ := newTestServer(t, "dedup")

	payload := map[string]any{"agent_id": "coder", "request": "one specific job"}
	first := postJSON(t, ts.URL+"/v1/tasks", payload)
	defer first.Body.Close()
	var a submitTaskResponse
	if err := json.NewDecoder(first.Body).Decode(&a); err != nil {
		t.Fatalf("decode first response: %v", err)
	}

	second := postJSON(t, ts.URL+"/v1/tasks", payload)
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("duplicate status = %d, want %d", second.StatusCode, http.StatusOK)
	}
	var b submitTaskResponse
	if err := json.NewDecoder(second.Body).Decode(&b); err != nil {
		t.Fatalf("decode second response: %v", err)
	}
	if !b.Deduped || b.TaskID != a.TaskID {
		t.Fatalf("duplicate = %+v, want deduped with task %s", b, a.TaskID)
	}
}

func TestListTasksWithStatusFilter(t *testing.T) {
	ts, reg := newTestServer(t, "list")

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		res := postJSON(t, ts.URL+"/v1/tasks", map[string]any{
			"agent_id": "coder",
			"request":  fmt.Sprintf("list job %d", i),
		})
		var created submitTaskResponse
		if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
			t.Fatalf("decode submit: %v", err)
		}
		res.Body.Close()
		ids = append(ids, created.TaskID)
	}
	for _, id := range ids {
		awaitTaskStatus(t, reg, id, tasks.TaskStatusCompleted)
	}

	res, err := http.Get(ts.URL + "/v1/tasks?status=completed")
	if err != nil {
		t.Fatalf("GET list error = %v", err)
	}
	defer res.Body.Close()
	var payload struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(payload.Tasks) != 3 {
		t.Fatalf("completed tasks = %d, want 3", len(payload.Tasks))
	}

	badRes, err := http.Get(ts.URL + "/v1/tasks?status=bogus")
	if err != nil {
		t.Fatalf("GET list error = %v", err)
	}
	badRes.Body.Close()
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus filter status = %d, want %d", badRes.StatusCode, http.StatusBadRequest)
	}
}

func TestTaskEventsEndpoint(t *testing.T) {
	ts, reg := newTestServer(t, "events")

	res := postJSON(t, ts.URL+"/v1/tasks", map[string]any{
		"agent_id": "coder",
		"request":  "events job",
	})
	var created submitTaskResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	res.Body.Close()
	awaitTaskStatus(t, reg, created.TaskID, tasks.TaskStatusCompleted)

	evRes, err := http.Get(ts.URL + "/v1/tasks/" + created.TaskID + "/events")
	if err != nil {
		t.Fatalf("GET events error = %v", err)
	}
	defer evRes.Body.Close()
	var payload struct {
		TaskID string        `json:"task_id"`
		Events []tasks.Event `json:"events"`
	}
	if err := json.NewDecoder(evRes.Body).Decode(&payload); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(payload.Events) == 0 {
		t.Fatalf("no events recorded")
	}
	if payload.Events[0].Type != tasks.EventSubmitted {
		t.Fatalf("first event = %s, want submitted", payload.Events[0].Type)
	}
	last := payload.Events[len(payload.Events)-1]
	if last.Type != tasks.EventCompleted {
		t.Fatalf("last event = %s, want completed", last.Type)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	ts, _ := newTestServer(t, "cancelunknown")

	res := postJSON(t, ts.URL+"/v1/tasks/nope/cancel", map[string]any{})
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestEvictLifecycle(t *testing.T) {
	ts, reg := newTestServer(t, "evict")

	res := postJSON(t, ts.URL+"/v1/tasks", map[string]any{
		"agent_id": "coder",
		"request":  "evict job",
	})
	var created submitTaskResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	res.Body.Close()

	// Eviction is rejected until the task settles.
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/tasks/"+created.TaskID, nil)
	awaitTaskStatus(t, reg, created.TaskID, tasks.TaskStatusCompleted)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", delRes.StatusCode, http.StatusNoContent)
	}

	getRes, err := http.Get(ts.URL + "/v1/tasks/" + created.TaskID)
	if err != nil {
		t.Fatalf("GET after evict error = %v", err)
	}
	getRes.Body.Close()
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after evict status = %d, want %d", getRes.StatusCode, http.StatusNotFound)
	}
}

func TestEventStreamWebsocket(t *testing.T) {
	ts, _ := newTestServer(t, "ws")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/tasks/events/ws"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	if res != nil {
		res.Body.Close()
	}
	defer conn.Close()

	// Give the stream handler a moment to register its subscription
	// before the task starts emitting.
	time.Sleep(100 * time.Millisecond)

	submitRes := postJSON(t, ts.URL+"/v1/tasks", map[string]any{
		"agent_id": "coder",
		"request":  "websocket job",
	})
	var created submitTaskResponse
	if err := json.NewDecoder(submitRes.Body).Decode(&created); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	submitRes.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	sawCompleted := false
	for !sawCompleted {
		var evt tasks.Event
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read event error = %v", err)
		}
		if evt.TaskID != created.TaskID {
			continue
		}
		if evt.Type == tasks.EventCompleted {
			sawCompleted = true
		}
		if evt.Type == tasks.EventFailed || evt.Type == tasks.EventCancelled {
			t.Fatalf("unexpected terminal event %s: %s", evt.Type, evt.Detail)
		}
	}
}

func TestGetTaskFallsBackToArchiveAfterEvict(t *testing.T) {
	archive := newMemoryArchive()
	ts, reg, _ := newTestServerWithArchive(t, "archive", archive)

	res := postJSON(t, ts.URL+"/v1/tasks", map[string]any{
		"agent_id": "coder",
		"request":  "archive job",
	})
	var created submitTaskResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	res.Body.Close()
	awaitTaskStatus(t, reg, created.TaskID, tasks.TaskStatusCompleted)
	awaitArchived(t, archive, created.TaskID)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/tasks/"+created.TaskID, nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", delRes.StatusCode, http.StatusNoContent)
	}

	// The live registry no longer knows the task; the archive does.
	getRes, err := http.Get(ts.URL + "/v1/tasks/" + created.TaskID)
	if err != nil {
		t.Fatalf("GET after evict error = %v", err)
	}
	defer getRes.Body.Close()
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("GET after evict status = %d, want %d from archive", getRes.StatusCode, http.StatusOK)
	}
	var fetched tasks.Task
	if err := json.NewDecoder(getRes.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode archived task: %v", err)
	}
	if fetched.Status != tasks.TaskStatusCompleted {
		t.Fatalf("archived status = %s, want completed", fetched.Status)
	}

	listRes, err := http.Get(ts.URL + "/v1/tasks?archived=true")
	if err != nil {
		t.Fatalf("GET archived list error = %v", err)
	}
	defer listRes.Body.Close()
	var payload struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	if err := json.NewDecoder(listRes.Body).Decode(&payload); err != nil {
		t.Fatalf("decode archived list: %v", err)
	}
	if len(payload.Tasks) != 1 || payload.Tasks[0].ID != created.TaskID {
		t.Fatalf("archived list = %+v, want the evicted task", payload.Tasks)
	}

	missing, err := http.Get(ts.URL + "/v1/tasks/no-such-task")
	if err != nil {
		t.Fatalf("GET unknown error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("GET unknown status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}
}
