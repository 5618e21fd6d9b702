package engine

import (
	"context"
	"fmt"
)

// MockExecutor acknowledges every step without side effects. It keeps the
// full pipeline exercisable when no real executor endpoint is wired up.
type MockExecutor struct{}

func NewMockExecutor() *MockExecutor { return &MockExecutor{} }

func (m *MockExecutor) Execute(ctx context.Context, req ExecRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("[mock] step %d (%s) acknowledged", req.Step.Index+1, req.Step.ActionKind), nil
}
