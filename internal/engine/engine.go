package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/taskmill/internal/observability"
	"github.com/antoniostano/taskmill/internal/planner"
	"github.com/antoniostano/taskmill/internal/reliability"
	"github.com/antoniostano/taskmill/internal/tasks"
)

// Outcome tells the scheduler how a run ended. Done covers every terminal
// state; Parked means the task paused and keeps its plan cursor for a
// later resume.
type Outcome int

const (
	Done Outcome = iota
	Parked
)

type chunkResult int

const (
	chunkDone chunkResult = iota
	chunkParked
	chunkStopped
)

// Engine drives one task at a time through plan, chunk and step execution.
// It never owns goroutines; the scheduler decides who runs and when.
type Engine struct {
	registry *tasks.Registry
	plans    *planner.Service
	exec     Executor
	log      *zap.Logger
	metrics  *observability.Metrics

	backoffBase time.Duration
	backoffCap  time.Duration
}

type Config struct {
	Registry    *tasks.Registry
	Plans       *planner.Service
	Executor    Executor
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	capDur := cfg.BackoffCap
	if capDur < base {
		capDur = 30 * time.Second
	}
	return &Engine{
		registry:    cfg.Registry,
		plans:       cfg.Plans,
		exec:        cfg.Executor,
		log:         log,
		metrics:     cfg.Metrics,
		backoffBase: base,
		backoffCap:  capDur,
	}
}

// Run executes the task until it reaches a terminal state or parks on a
// pause request. Safe to call again for a resumed task; completed chunks
// and steps are skipped.
func (e *Engine) Run(ctx context.Context, taskID string) Outcome {
	task, err := e.registry.MarkRunning(taskID)
	if err != nil {
		e.log.Warn("task not runnable", zap.String("task_id", taskID), zap.Error(err))
		return Done
	}

	planStart := time.Now()
	total, err := e.plans.EnsurePlan(ctx, planner.Request{
		TaskID:        task.ID,
		AgentID:       task.AgentID,
		Request:       task.Request,
		WorkspaceRoot: task.WorkspaceRoot,
		Params:        task.Params,
	})
	if err != nil {
		if ctx.Err() != nil || e.registry.CancelRequested(taskID) {
			e.registry.MarkCancelled(taskID, "cancelled during planning")
			return Done
		}
		e.log.Error("planning failed", zap.String("task_id", taskID), zap.Error(err))
		e.registry.Fail(taskID, "planning_failed", err.Error())
		return Done
	}
	e.metrics.ObservePlanLatency(time.Since(planStart))
	if task.TotalSteps == 0 {
		if _, err := e.registry.SetPlanSize(taskID, total); err != nil {
			return Done
		}
	}

	// Chunks already materialized by an earlier run come first; the plan
	// cursor then supplies the rest.
	snapshot, err := e.registry.Get(taskID)
	if err != nil {
		return Done
	}
	for _, chunk := range snapshot.Chunks {
		if chunk.Status == tasks.ChunkStatusCompleted {
			continue
		}
		switch e.runChunk(ctx, snapshot, chunk) {
		case chunkParked:
			return Parked
		case chunkStopped:
			e.plans.Forget(taskID)
			return Done
		}
	}

	for {
		// A cancel or pause landing on a chunk boundary must not pull
		// another chunk from the plan cursor.
		if stop, parked := e.checkInterrupts(ctx, taskID); stop {
			e.plans.Forget(taskID)
			return Done
		} else if parked {
			return Parked
		}
		specs, ok := e.plans.NextChunk(taskID)
		if !ok {
			break
		}
		chunk, err := e.registry.AppendChunk(taskID, specs)
		if err != nil {
			e.plans.Forget(taskID)
			return Done
		}
		switch e.runChunk(ctx, snapshot, chunk) {
		case chunkParked:
			return Parked
		case chunkStopped:
			e.plans.Forget(taskID)
			return Done
		}
	}

	e.registry.Complete(taskID)
	e.plans.Forget(taskID)
	return Done
}

// Discard drops a task's plan cursor. The scheduler uses it when a task
// is cancelled while queued or paused, where no run will clean up.
func (e *Engine) Discard(taskID string) {
	e.plans.Forget(taskID)
}

func (e *Engine) runChunk(ctx context.Context, task tasks.Task, chunk tasks.Chunk) chunkResult {
	if err := e.registry.StartChunk(task.ID, chunk.Seq); err != nil {
		return chunkStopped
	}

	limit := task.Timeout()
	var deadline time.Time
	if limit > 0 {
		deadline = time.Now().Add(limit)
	}

	for _, step := range chunk.Steps {
		if step.Status == tasks.StepStatusCompleted {
			continue
		}
		if stop, parked := e.checkInterrupts(ctx, task.ID); stop {
			return chunkStopped
		} else if parked {
			return chunkParked
		}
		if e.deadlineExceeded(task.ID, deadline, limit) {
			return chunkStopped
		}
		if e.runStep(ctx, task, step, deadline, limit) == chunkStopped {
			return chunkStopped
		}
	}

	if err := e.registry.CompleteChunk(task.ID, chunk.Seq); err != nil {
		return chunkStopped
	}
	return chunkDone
}

func (e *Engine) runStep(ctx context.Context, task tasks.Task, step tasks.Step, deadline time.Time, limit time.Duration) chunkResult {
	if _, err := e.registry.StartStep(task.ID, step.Index); err != nil {
		return chunkStopped
	}
	started := time.Now()

	for attempt := 1; ; attempt++ {
		output, err := e.exec.Execute(ctx, ExecRequest{
			TaskID:        task.ID,
			AgentID:       task.AgentID,
			WorkspaceRoot: task.WorkspaceRoot,
			Step:          step,
		})

		// Only a blown chunk deadline discards a finished result. A cancel
		// request lets the in-flight step land and takes effect at the
		// step boundary.
		if e.deadlineExceeded(task.ID, deadline, limit) {
			return chunkStopped
		}

		if err == nil {
			if _, cerr := e.registry.CompleteStep(task.ID, step.Index, output); cerr != nil {
				return chunkStopped
			}
			e.metrics.ObserveStepLatency(time.Since(started))
			if e.registry.CancelRequested(task.ID) || ctx.Err() != nil {
				e.registry.MarkCancelled(task.ID, "cancelled at step boundary")
				return chunkStopped
			}
			return chunkDone
		}

		if e.registry.CancelRequested(task.ID) || ctx.Err() != nil {
			e.registry.MarkCancelled(task.ID, "cancelled during step execution")
			return chunkStopped
		}

		e.registry.RecordStepError(task.ID, step.Index, attempt, err.Error())
		if reliability.IsFatalStep(err) {
			e.log.Warn("step failed fatally",
				zap.String("task_id", task.ID),
				zap.Int("step", step.Index),
				zap.Error(err))
			e.registry.Fail(task.ID, "step_fatal", err.Error())
			return chunkStopped
		}
		if attempt > task.MaxRetries {
			e.log.Warn("step retries exhausted",
				zap.String("task_id", task.ID),
				zap.Int("step", step.Index),
				zap.Int("attempts", attempt),
				zap.Error(err))
			e.registry.Fail(task.ID, "retries_exhausted",
				fmt.Sprintf("step %d failed after %d attempts: %v", step.Index+1, attempt, err))
			return chunkStopped
		}
		e.metrics.IncStepRetries()

		wait := reliability.ExponentialBackoff(attempt, e.backoffBase, e.backoffCap)
		select {
		case <-ctx.Done():
			e.registry.MarkCancelled(task.ID, "cancelled during retry backoff")
			return chunkStopped
		case <-time.After(wait):
		}
		if e.registry.CancelRequested(task.ID) {
			e.registry.MarkCancelled(task.ID, "cancelled during retry backoff")
			return chunkStopped
		}
		if e.deadlineExceeded(task.ID, deadline, limit) {
			return chunkStopped
		}
	}
}

// checkInterrupts handles step-boundary cancel and pause requests. Cancel
// wins over pause when both are pending.
func (e *Engine) checkInterrupts(ctx context.Context, taskID string) (stopped, parked bool) {
	if e.registry.CancelRequested(taskID) || ctx.Err() != nil {
		e.registry.MarkCancelled(taskID, "cancelled at step boundary")
		return true, false
	}
	if e.registry.PauseRequested(taskID) {
		if _, err := e.registry.MarkPaused(taskID); err != nil {
			return true, false
		}
		return false, true
	}
	return false, false
}

func (e *Engine) deadlineExceeded(taskID string, deadline time.Time, limit time.Duration) bool {
	if deadline.IsZero() || time.Now().Before(deadline) {
		return false
	}
	terr := &reliability.TimeoutError{Elapsed: time.Since(deadline.Add(-limit)), Limit: limit}
	e.registry.Fail(taskID, "timeout", terr.Error())
	return true
}
