package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/taskmill/internal/engine"
	"github.com/antoniostano/taskmill/internal/observability"
	"github.com/antoniostano/taskmill/internal/tasks"
)

var ErrShuttingDown = errors.New("scheduler is shutting down")

// priorityOrder is the fixed drain order across the three queues.
var priorityOrder = []tasks.Priority{tasks.PriorityHigh, tasks.PriorityNormal, tasks.PriorityLow}

// Defaults fill in submission fields the caller left unset.
type Defaults struct {
	Priority   tasks.Priority
	MaxRetries int
	Timeout    time.Duration
}

type Config struct {
	Registry       *tasks.Registry
	Engine         *engine.Engine
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	MaxConcurrency int
	Defaults       Defaults
}

// SubmitSpec is a task submission before defaults are applied. MaxRetries
// is a pointer because zero is a meaningful value.
type SubmitSpec struct {
	AgentID       string
	Request       string
	WorkspaceRoot string
	Params        map[string]string
	Priority      string
	MaxRetries    *int
	Timeout       time.Duration
}

// Scheduler admits queued tasks into the engine while holding the global
// concurrency cap. Within the cap, high drains before normal before low;
// within one priority, submission order.
type Scheduler struct {
	registry *tasks.Registry
	engine   *engine.Engine
	log      *zap.Logger
	metrics  *observability.Metrics
	defaults Defaults

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu             sync.Mutex
	maxConcurrency int
	queues         map[tasks.Priority][]string
	running        int
	closed         bool
}

func New(cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	defaults := cfg.Defaults
	if defaults.Priority == "" {
		defaults.Priority = tasks.PriorityNormal
	}
	if defaults.MaxRetries < 0 {
		defaults.MaxRetries = 0
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		registry:       cfg.Registry,
		engine:         cfg.Engine,
		log:            log,
		metrics:        cfg.Metrics,
		defaults:       defaults,
		baseCtx:        ctx,
		cancel:         cancel,
		maxConcurrency: maxConcurrency,
		queues: map[tasks.Priority][]string{
			tasks.PriorityHigh:   nil,
			tasks.PriorityNormal: nil,
			tasks.PriorityLow:    nil,
		},
	}
}

// Submit registers a task and queues it for execution. The bool reports
// whether an identical in-flight submission was deduplicated instead.
func (s *Scheduler) Submit(spec SubmitSpec) (tasks.Task, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return tasks.Task{}, false, ErrShuttingDown
	}
	s.mu.Unlock()

	priority := s.defaults.Priority
	if spec.Priority != "" {
		p, ok := tasks.ParsePriority(spec.Priority)
		if !ok {
			return tasks.Task{}, false, errors.New("priority must be high, normal or low")
		}
		priority = p
	}
	maxRetries := s.defaults.MaxRetries
	if spec.MaxRetries != nil {
		maxRetries = *spec.MaxRetries
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = s.defaults.Timeout
	}

	task, deduped, err := s.registry.Create(tasks.CreateSpec{
		AgentID:       spec.AgentID,
		Request:       spec.Request,
		WorkspaceRoot: spec.WorkspaceRoot,
		Params:        spec.Params,
		Priority:      priority,
		MaxRetries:    maxRetries,
		Timeout:       timeout,
	})
	if err != nil || deduped {
		return task, deduped, err
	}

	s.mu.Lock()
	s.queues[priority] = append(s.queues[priority], task.ID)
	s.dispatchLocked()
	s.mu.Unlock()

	s.log.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.String("agent_id", task.AgentID),
		zap.String("priority", string(priority)))
	return task, false, nil
}

// Cancel stops a task wherever it is in its lifecycle. It reports true
// when the request took effect and false when the task was already
// terminal.
func (s *Scheduler) Cancel(taskID, reason string) (bool, error) {
	task, err := s.registry.Get(taskID)
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason = "cancelled by request"
	}
	switch task.Status {
	case tasks.TaskStatusQueued:
		s.mu.Lock()
		s.removeQueuedLocked(taskID)
		s.mu.Unlock()
		if _, err := s.registry.MarkCancelled(taskID, reason); err != nil {
			return false, err
		}
		s.engine.Discard(taskID)
		return true, nil
	case tasks.TaskStatusPaused:
		if _, err := s.registry.MarkCancelled(taskID, reason); err != nil {
			return false, err
		}
		// The parked run already returned; drop its plan cursor here.
		s.engine.Discard(taskID)
		return true, nil
	case tasks.TaskStatusRunning:
		s.registry.RequestCancel(taskID)
		return true, nil
	default:
		// Already terminal; cancelling again is a harmless no-op.
		return false, nil
	}
}

// Pause asks a running task to park at its next step boundary. The
// concurrency slot frees when the engine actually parks.
func (s *Scheduler) Pause(taskID string) (bool, error) {
	task, err := s.registry.Get(taskID)
	if err != nil {
		return false, err
	}
	if task.Status != tasks.TaskStatusRunning {
		return false, nil
	}
	s.registry.RequestPause(taskID)
	return true, nil
}

// Resume requeues a paused task at the front of its priority tier so it
// regains a slot before tasks that were submitted while it was parked.
func (s *Scheduler) Resume(taskID string) (bool, error) {
	task, err := s.registry.Get(taskID)
	if err != nil {
		return false, err
	}
	if task.Status != tasks.TaskStatusPaused {
		return false, nil
	}
	if _, err := s.registry.MarkResumed(taskID); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.queues[task.Priority] = append([]string{taskID}, s.queues[task.Priority]...)
	s.dispatchLocked()
	s.mu.Unlock()
	return true, nil
}

// Stats returns the current queue depths and running count.
func (s *Scheduler) Stats() (queued map[tasks.Priority]int, running int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued = make(map[tasks.Priority]int, len(s.queues))
	for p, q := range s.queues {
		queued[p] = len(q)
	}
	return queued, s.running
}

// Shutdown stops admissions, signals running tasks and waits for them up
// to the context deadline.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLocked fills free slots from the queues. Callers hold s.mu.
func (s *Scheduler) dispatchLocked() {
	for s.running < s.maxConcurrency && !s.closed {
		taskID, priority, ok := s.popLocked()
		if !ok {
			break
		}
		s.running++
		s.wg.Add(1)
		go s.runTask(taskID, priority)
	}
	s.publishGaugesLocked()
}

func (s *Scheduler) popLocked() (string, tasks.Priority, bool) {
	for _, p := range priorityOrder {
		if q := s.queues[p]; len(q) > 0 {
			s.queues[p] = q[1:]
			return q[0], p, true
		}
	}
	return "", "", false
}

func (s *Scheduler) removeQueuedLocked(taskID string) {
	for p, q := range s.queues {
		for i, id := range q {
			if id == taskID {
				s.queues[p] = append(q[:i], q[i+1:]...)
				s.publishGaugesLocked()
				return
			}
		}
	}
}

func (s *Scheduler) runTask(taskID string, priority tasks.Priority) {
	defer s.wg.Done()

	outcome := s.engine.Run(s.baseCtx, taskID)

	s.mu.Lock()
	s.running--
	s.dispatchLocked()
	s.mu.Unlock()

	if outcome == engine.Parked {
		s.log.Info("task parked", zap.String("task_id", taskID), zap.String("priority", string(priority)))
	}
}

func (s *Scheduler) publishGaugesLocked() {
	s.metrics.SetTasksRunning(s.running)
	for p, q := range s.queues {
		s.metrics.SetQueueDepth(string(p), len(q))
	}
}
