package planner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antoniostano/taskmill/internal/reliability"
	"github.com/antoniostano/taskmill/internal/tasks"
)

type scriptedPlanner struct {
	failures int32
	steps    []tasks.StepSpec
	calls    int32
}

func (p *scriptedPlanner) Plan(_ context.Context, _ Request) ([]tasks.StepSpec, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if n <= atomic.LoadInt32(&p.failures) {
		return nil, errors.New("planner unavailable")
	}
	return p.steps, nil
}

func TestServicePlansOnceAndServesChunksInOrder(t *testing.T) {
	p := &scriptedPlanner{steps: specs(12, "")}
	svc := NewService(p, 5, 0, time.Millisecond, 10*time.Millisecond)

	req := Request{TaskID: "t1", AgentID: "coder", Request: "do the thing"}
	total, err := svc.EnsurePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("EnsurePlan() error = %v", err)
	}
	if total != 12 {
		t.Fatalf("EnsurePlan() total = %d, want 12", total)
	}

	// A second EnsurePlan must not re-invoke the collaborator.
	if _, err := svc.EnsurePlan(context.Background(), req); err != nil {
		t.Fatalf("EnsurePlan() second error = %v", err)
	}
	if got := atomic.LoadInt32(&p.calls); got != 1 {
		t.Fatalf("planner calls = %d, want 1", got)
	}

	wantSizes := []int{5, 5, 2}
	for i, want := range wantSizes {
		chunk, ok := svc.NextChunk("t1")
		if !ok {
			t.Fatalf("NextChunk() #%d ok = false, want true", i+1)
		}
		if len(chunk) != want {
			t.Fatalf("NextChunk() #%d len = %d, want %d", i+1, len(chunk), want)
		}
	}
	if _, ok := svc.NextChunk("t1"); ok {
		t.Fatalf("NextChunk() after exhaustion ok = true, want false")
	}
}

func TestServiceRetriesPlanningWithinBudget(t *testing.T) {
	p := &scriptedPlanner{failures: 2, steps: specs(3, "")}
	svc := NewService(p, 5, 2, time.Millisecond, 5*time.Millisecond)

	total, err := svc.EnsurePlan(context.Background(), Request{TaskID: "t1", Request: "x"})
	if err != nil {
		t.Fatalf("EnsurePlan() error = %v, want recovery on third attempt", err)
	}
	if total != 3 {
		t.Fatalf("EnsurePlan() total = %d, want 3", total)
	}
}

func TestServicePlanningErrorAfterExhaustedBudget(t *testing.T) {
	p := &scriptedPlanner{failures: 10, steps: specs(3, "")}
	svc := NewService(p, 5, 1, time.Millisecond, 5*time.Millisecond)

	_, err := svc.EnsurePlan(context.Background(), Request{TaskID: "t1", Request: "x"})
	if err == nil {
		t.Fatalf("EnsurePlan() error = nil, want planning error")
	}
	if !reliability.IsPlanning(err) {
		t.Fatalf("EnsurePlan() error = %v, want PlanningError", err)
	}
	if got := atomic.LoadInt32(&p.calls); got != 2 {
		t.Fatalf("planner calls = %d, want 2 (1 + 1 retry)", got)
	}
	if _, ok := svc.NextChunk("t1"); ok {
		t.Fatalf("NextChunk() after failed planning ok = true, want false")
	}
}

func TestServiceEmptyPlanIsPlanningError(t *testing.T) {
	p := &scriptedPlanner{steps: nil}
	svc := NewService(p, 5, 0, time.Millisecond, 5*time.Millisecond)

	_, err := svc.EnsurePlan(context.Background(), Request{TaskID: "t1", Request: "x"})
	if !reliability.IsPlanning(err) {
		t.Fatalf("EnsurePlan() error = %v, want PlanningError for empty plan", err)
	}
}

func TestServiceForgetDropsCursor(t *testing.T) {
	p := &scriptedPlanner{steps: specs(2, "")}
	svc := NewService(p, 5, 0, time.Millisecond, 5*time.Millisecond)

	if _, err := svc.EnsurePlan(context.Background(), Request{TaskID: "t1", Request: "x"}); err != nil {
		t.Fatalf("EnsurePlan() error = %v", err)
	}
	svc.Forget("t1")
	if _, ok := svc.NextChunk("t1"); ok {
		t.Fatalf("NextChunk() after Forget ok = true, want false")
	}
}
