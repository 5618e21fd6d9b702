package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/taskmill/internal/tasks"
)

// HTTPPlanner forwards planning requests to an HTTP collaborator. The
// preferred response is the structured step contract; a plain-text body is
// run through the text-plan adapter instead of being dropped.
type HTTPPlanner struct {
	url    string
	client *http.Client
}

func NewHTTPPlanner(url string) *HTTPPlanner {
	return &HTTPPlanner{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type httpPlanResponse struct {
	Steps []struct {
		Description string `json:"description"`
		ActionKind  string `json:"action_kind"`
		Group       string `json:"group"`
	} `json:"steps"`
}

func (p *HTTPPlanner) Plan(ctx context.Context, req Request) ([]tasks.StepSpec, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create plan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send plan request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("planner http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read plan response: %w", err)
	}

	var structured httpPlanResponse
	if err := json.Unmarshal(body, &structured); err == nil && len(structured.Steps) > 0 {
		out := make([]tasks.StepSpec, 0, len(structured.Steps))
		for _, s := range structured.Steps {
			desc := strings.TrimSpace(s.Description)
			if desc == "" {
				continue
			}
			kind := strings.TrimSpace(s.ActionKind)
			if kind == "" {
				kind = ClassifyAction(desc)
			}
			out = append(out, tasks.StepSpec{
				Description: desc,
				ActionKind:  kind,
				Group:       strings.TrimSpace(s.Group),
			})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("planner returned %d steps with no descriptions", len(structured.Steps))
		}
		return out, nil
	}

	return ParseTextPlan(string(body))
}
