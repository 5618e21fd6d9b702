package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/taskmill/internal/tasks"
)

// ExecRequest carries one step to an executor together with the task
// context the executor needs to act on the right workspace.
type ExecRequest struct {
	TaskID        string     `json:"task_id"`
	AgentID       string     `json:"agent_id"`
	WorkspaceRoot string     `json:"workspace_root"`
	Step          tasks.Step `json:"step"`
}

// Executor performs a single step and returns its output. Transient
// failures must come back as *reliability.StepExecutionError so the engine
// retries them; anything wrapped in *reliability.FatalStepError fails the
// task without another attempt.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (string, error)
}

// ExecutorConfig selects the executor implementation, mirroring the
// planner's mode switch.
type ExecutorConfig struct {
	Mode    string // "auto", "http", "mock"
	HTTPURL string
}

func NewExecutor(cfg ExecutorConfig) (Executor, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPExecutor(cfg.HTTPURL), nil
		}
		return NewMockExecutor(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, fmt.Errorf("executor mode %q requires an endpoint URL", mode)
		}
		return NewHTTPExecutor(cfg.HTTPURL), nil
	case "mock":
		return NewMockExecutor(), nil
	default:
		return nil, fmt.Errorf("unknown executor mode %q", cfg.Mode)
	}
}
