package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/taskmill/internal/planner"
	"github.com/antoniostano/taskmill/internal/reliability"
	"github.com/antoniostano/taskmill/internal/tasks"
)

type fixedPlanner struct {
	steps []tasks.StepSpec
}

func (p *fixedPlanner) Plan(context.Context, planner.Request) ([]tasks.StepSpec, error) {
	return p.steps, nil
}

// scriptedExecutor fails steps on demand and can run side effects per call.
type scriptedExecutor struct {
	mu        sync.Mutex
	transient map[int]int  // step index -> transient failures before success
	fatal     map[int]bool // step index -> fail fatally
	delay     time.Duration
	onCall    func(call int, req ExecRequest)
	calls     int
	perStep   map[int]int
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		transient: make(map[int]int),
		fatal:     make(map[int]bool),
		perStep:   make(map[int]int),
	}
}

func (e *scriptedExecutor) Execute(_ context.Context, req ExecRequest) (string, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.perStep[req.Step.Index]++
	hook := e.onCall
	remaining := e.transient[req.Step.Index]
	if remaining > 0 {
		e.transient[req.Step.Index] = remaining - 1
	}
	fatal := e.fatal[req.Step.Index]
	e.mu.Unlock()

	if hook != nil {
		hook(call, req)
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if fatal {
		return "", &reliability.FatalStepError{Err: fmt.Errorf("step %d rejected", req.Step.Index)}
	}
	if remaining > 0 {
		return "", &reliability.StepExecutionError{Err: fmt.Errorf("step %d transient failure", req.Step.Index)}
	}
	return fmt.Sprintf("step %d output", req.Step.Index), nil
}

func (e *scriptedExecutor) totalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *scriptedExecutor) stepCalls(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perStep[index]
}

func newTestEngine(t *testing.T, steps int, exec Executor) (*Engine, *tasks.Registry, *planner.Service) {
	t.Helper()
	reg := tasks.NewRegistry(time.Second, 128)
	plans := planner.NewService(&fixedPlanner{steps: testSpecs(steps)}, 5, 0, time.Millisecond, 5*time.Millisecond)
	eng := New(Config{
		Registry:    reg,
		Plans:       plans,
		Executor:    exec,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})
	return eng, reg, plans
}

func testSpecs(n int) []tasks.StepSpec {
	out := make([]tasks.StepSpec, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tasks.StepSpec{Description: fmt.Sprintf("step %d", i+1), ActionKind: "run_command"})
	}
	return out
}

func submitTask(t *testing.T, reg *tasks.Registry, maxRetries int, timeout time.Duration) tasks.Task {
	t.Helper()
	task, _, err := reg.Create(tasks.CreateSpec{
		AgentID:    "coder",
		Request:    "build the report pipeline",
		Priority:   tasks.PriorityNormal,
		MaxRetries: maxRetries,
		Timeout:    timeout,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return task
}

func TestRunCompletesTaskAcrossChunks(t *testing.T) {
	exec := newScriptedExecutor()
	eng, reg, _ := newTestEngine(t, 12, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	if got := eng.Run(context.Background(), task.ID); got != Done {
		t.Fatalf("Run() = %v, want Done", got)
	}

	final, err := reg.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != tasks.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", final.Status, final.Error)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %d, want 100", final.Progress)
	}
	if final.TotalSteps != 12 {
		t.Fatalf("total steps = %d, want 12", final.TotalSteps)
	}
	if len(final.Chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(final.Chunks))
	}
	executed := 0
	for _, c := range final.Chunks {
		if c.Status != tasks.ChunkStatusCompleted {
			t.Fatalf("chunk %d status = %s, want completed", c.Seq, c.Status)
		}
		for _, s := range c.Steps {
			if s.Status != tasks.StepStatusCompleted {
				t.Fatalf("step %d status = %s, want completed", s.Index, s.Status)
			}
			executed++
		}
	}
	if executed != 12 {
		t.Fatalf("materialized steps = %d, want 12", executed)
	}
	if exec.totalCalls() != 12 {
		t.Fatalf("executor calls = %d, want 12", exec.totalCalls())
	}
	if final.Result == "" {
		t.Fatalf("result empty, want assembled step outputs")
	}
}

func TestRunRetriesTransientFailureThenSucceeds(t *testing.T) {
	exec := newScriptedExecutor()
	exec.transient[1] = 2
	eng, reg, _ := newTestEngine(t, 3, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	if got := eng.Run(context.Background(), task.ID); got != Done {
		t.Fatalf("Run() = %v, want Done", got)
	}

	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", final.Status, final.Error)
	}
	if got := exec.stepCalls(1); got != 3 {
		t.Fatalf("step 1 calls = %d, want 3 (2 failures + success)", got)
	}
	if final.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", final.RetryCount)
	}
}

func TestRunFailsWhenRetryBudgetExhausted(t *testing.T) {
	exec := newScriptedExecutor()
	exec.transient[0] = 100
	eng, reg, _ := newTestEngine(t, 2, exec)
	task := submitTask(t, reg, 2, 5*time.Second)

	if got := eng.Run(context.Background(), task.ID); got != Done {
		t.Fatalf("Run() = %v, want Done", got)
	}

	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.ErrorCode != "retries_exhausted" {
		t.Fatalf("error code = %q, want retries_exhausted", final.ErrorCode)
	}
	// MaxRetries retries on top of the first attempt.
	if got := exec.stepCalls(0); got != 3 {
		t.Fatalf("step 0 calls = %d, want 3", got)
	}
	if got := exec.stepCalls(1); got != 0 {
		t.Fatalf("step 1 calls = %d, want 0 after earlier failure", got)
	}
	if final.RetryCount != 2 {
		t.Fatalf("retry count = %d, want capped at max retries 2", final.RetryCount)
	}
}

func TestRunFatalErrorFailsWithoutRetry(t *testing.T) {
	exec := newScriptedExecutor()
	exec.fatal[0] = true
	eng, reg, _ := newTestEngine(t, 2, exec)
	task := submitTask(t, reg, 5, 5*time.Second)

	eng.Run(context.Background(), task.ID)

	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.ErrorCode != "step_fatal" {
		t.Fatalf("error code = %q, want step_fatal", final.ErrorCode)
	}
	if got := exec.stepCalls(0); got != 1 {
		t.Fatalf("step 0 calls = %d, want 1 (no retry on fatal)", got)
	}
}

func TestRunFailsOnChunkTimeout(t *testing.T) {
	exec := newScriptedExecutor()
	exec.delay = 30 * time.Millisecond
	eng, reg, _ := newTestEngine(t, 3, exec)
	task := submitTask(t, reg, 0, 10*time.Millisecond)

	eng.Run(context.Background(), task.ID)

	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.ErrorCode != "timeout" {
		t.Fatalf("error code = %q, want timeout", final.ErrorCode)
	}
	// The in-flight result is discarded once the deadline has passed.
	for _, c := range final.Chunks {
		for _, s := range c.Steps {
			if s.Status == tasks.StepStatusCompleted {
				t.Fatalf("step %d completed after deadline", s.Index)
			}
		}
	}
}

func TestRunParksOnPauseAndResumesWithoutRerunningSteps(t *testing.T) {
	exec := newScriptedExecutor()
	eng, reg, _ := newTestEngine(t, 4, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	exec.onCall = func(call int, _ ExecRequest) {
		if call == 2 {
			reg.RequestPause(task.ID)
		}
	}

	if got := eng.Run(context.Background(), task.ID); got != Parked {
		t.Fatalf("Run() = %v, want Parked", got)
	}
	paused, _ := reg.Get(task.ID)
	if paused.Status != tasks.TaskStatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}
	if exec.totalCalls() != 2 {
		t.Fatalf("executor calls before pause = %d, want 2", exec.totalCalls())
	}
	progressAtPause := paused.Progress

	exec.onCall = nil
	if _, err := reg.MarkResumed(task.ID); err != nil {
		t.Fatalf("MarkResumed() error = %v", err)
	}
	if got := eng.Run(context.Background(), task.ID); got != Done {
		t.Fatalf("Run() after resume = %v, want Done", got)
	}

	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", final.Status, final.Error)
	}
	if exec.totalCalls() != 4 {
		t.Fatalf("total executor calls = %d, want 4 (no re-runs)", exec.totalCalls())
	}
	if final.Progress < progressAtPause {
		t.Fatalf("progress moved backwards across resume: %d -> %d", progressAtPause, final.Progress)
	}
}

func TestRunCancelLetsInFlightStepFinish(t *testing.T) {
	exec := newScriptedExecutor()
	eng, reg, _ := newTestEngine(t, 12, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	// Cancel lands while step 7 is executing; the step still runs to
	// completion and is recorded before the cancel takes effect.
	exec.onCall = func(call int, _ ExecRequest) {
		if call == 7 {
			reg.RequestCancel(task.ID)
		}
	}

	if got := eng.Run(context.Background(), task.ID); got != Done {
		t.Fatalf("Run() = %v, want Done", got)
	}
	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	if exec.totalCalls() != 7 {
		t.Fatalf("executor calls = %d, want 7 (nothing runs past the boundary)", exec.totalCalls())
	}
	completed := 0
	for _, c := range final.Chunks {
		for _, s := range c.Steps {
			if s.Status == tasks.StepStatusCompleted {
				completed++
			}
		}
	}
	if completed != 7 {
		t.Fatalf("completed steps = %d, want 7 including the in-flight one", completed)
	}
}

func TestRunPauseOnChunkBoundaryRequestsNoMoreChunks(t *testing.T) {
	exec := newScriptedExecutor()
	eng, reg, _ := newTestEngine(t, 12, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	// Pause lands during the last step of the first chunk, so the park
	// happens on the chunk boundary before the next fetch.
	exec.onCall = func(call int, _ ExecRequest) {
		if call == 5 {
			reg.RequestPause(task.ID)
		}
	}

	if got := eng.Run(context.Background(), task.ID); got != Parked {
		t.Fatalf("Run() = %v, want Parked", got)
	}
	paused, _ := reg.Get(task.ID)
	if paused.Status != tasks.TaskStatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}
	if exec.totalCalls() != 5 {
		t.Fatalf("executor calls = %d, want 5", exec.totalCalls())
	}
	if len(paused.Chunks) != 1 {
		t.Fatalf("materialized chunks = %d, want 1 (boundary must not fetch more)", len(paused.Chunks))
	}
}

func TestRunProgressIsMonotonic(t *testing.T) {
	exec := newScriptedExecutor()
	exec.transient[2] = 1
	eng, reg, _ := newTestEngine(t, 7, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	eng.Run(context.Background(), task.ID)

	events, err := reg.ListEvents(task.ID, 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	last := -1
	for _, evt := range events {
		if evt.Type != tasks.EventProgress && evt.Type != tasks.EventStepComplete && evt.Type != tasks.EventCompleted {
			continue
		}
		if evt.Progress < last {
			t.Fatalf("progress went backwards: %d after %d (event %s)", evt.Progress, last, evt.Type)
		}
		last = evt.Progress
	}
	if last != 100 {
		t.Fatalf("final progress = %d, want 100", last)
	}
}

func TestRunIdempotentTerminalTransitions(t *testing.T) {
	exec := newScriptedExecutor()
	eng, reg, _ := newTestEngine(t, 2, exec)
	task := submitTask(t, reg, 3, 5*time.Second)

	eng.Run(context.Background(), task.ID)

	// A late cancel on a completed task must not change the outcome.
	if _, err := reg.MarkCancelled(task.ID, "late"); err != nil {
		t.Fatalf("MarkCancelled() error = %v", err)
	}
	final, _ := reg.Get(task.ID)
	if final.Status != tasks.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed to stick", final.Status)
	}

	events, _ := reg.ListEvents(task.ID, 0)
	terminal := 0
	for _, evt := range events {
		switch evt.Type {
		case tasks.EventCompleted, tasks.EventFailed, tasks.EventCancelled:
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminal)
	}
}
