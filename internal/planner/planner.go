package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/taskmill/internal/tasks"
)

// Request is the normalized planning request sent to the collaborator.
type Request struct {
	TaskID        string            `json:"task_id"`
	AgentID       string            `json:"agent_id"`
	Request       string            `json:"request"`
	WorkspaceRoot string            `json:"workspace_root,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
}

// Planner turns a natural-language request into an ordered step plan.
// Implementations wrap the external planning collaborator.
type Planner interface {
	Plan(ctx context.Context, req Request) ([]tasks.StepSpec, error)
}

// Config controls planner construction.
type Config struct {
	Mode    string
	HTTPURL string
}

func NewPlanner(cfg Config) (Planner, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPPlanner(cfg.HTTPURL), nil
		}
		return NewHeuristicPlanner(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("planner HTTP url is required for http mode")
		}
		return NewHTTPPlanner(cfg.HTTPURL), nil
	case "heuristic", "mock":
		return NewHeuristicPlanner(), nil
	default:
		return nil, fmt.Errorf("unsupported planner mode %q", cfg.Mode)
	}
}
