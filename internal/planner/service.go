package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antoniostano/taskmill/internal/reliability"
	"github.com/antoniostano/taskmill/internal/tasks"
)

// Service owns the plan-and-chunk lifecycle for live tasks. The first
// EnsurePlan call for a task pays the collaborator's full planning latency
// (with its own small retry budget); after that chunks are served in order
// from memory.
type Service struct {
	planner          Planner
	maxStepsPerChunk int
	maxPlanRetries   int
	backoffBase      time.Duration
	backoffCap       time.Duration

	mu      sync.Mutex
	cursors map[string]*cursor
}

type cursor struct {
	chunks [][]tasks.StepSpec
	next   int
	total  int
}

func NewService(p Planner, maxStepsPerChunk, maxPlanRetries int, backoffBase, backoffCap time.Duration) *Service {
	if maxStepsPerChunk <= 0 {
		maxStepsPerChunk = DefaultMaxStepsPerChunk
	}
	if maxPlanRetries < 0 {
		maxPlanRetries = 0
	}
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	if backoffCap < backoffBase {
		backoffCap = 30 * time.Second
	}
	return &Service{
		planner:          p,
		maxStepsPerChunk: maxStepsPerChunk,
		maxPlanRetries:   maxPlanRetries,
		backoffBase:      backoffBase,
		backoffCap:       backoffCap,
		cursors:          make(map[string]*cursor),
	}
}

// EnsurePlan plans and chunks the task if not done yet, returning the total
// step count. Planning failures surface as PlanningError after the retry
// budget is spent; no steps ever ran in that case.
func (s *Service) EnsurePlan(ctx context.Context, req Request) (int, error) {
	s.mu.Lock()
	if cur, ok := s.cursors[req.TaskID]; ok {
		total := cur.total
		s.mu.Unlock()
		return total, nil
	}
	s.mu.Unlock()

	var (
		steps []tasks.StepSpec
		err   error
	)
	for attempt := 0; ; attempt++ {
		steps, err = s.planner.Plan(ctx, req)
		if err == nil {
			break
		}
		if attempt >= s.maxPlanRetries || ctx.Err() != nil {
			return 0, &reliability.PlanningError{Err: err}
		}
		wait := reliability.ExponentialBackoff(attempt, s.backoffBase, s.backoffCap)
		select {
		case <-ctx.Done():
			return 0, &reliability.PlanningError{Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
	if len(steps) == 0 {
		return 0, &reliability.PlanningError{Err: errors.New("planner returned an empty plan")}
	}

	chunks := SplitChunks(steps, s.maxStepsPerChunk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cursors[req.TaskID]; ok {
		return cur.total, nil
	}
	s.cursors[req.TaskID] = &cursor{chunks: chunks, total: len(steps)}
	return len(steps), nil
}

// NextChunk returns the next unserved chunk's steps in plan order, and ok
// false once the plan is exhausted or was never made.
func (s *Service) NextChunk(taskID string) ([]tasks.StepSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.cursors[taskID]
	if !exists || cur.next >= len(cur.chunks) {
		return nil, false
	}
	chunk := cur.chunks[cur.next]
	cur.next++
	return chunk, true
}

// Forget drops a task's cursor once the task reached a terminal status.
func (s *Service) Forget(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, taskID)
}
