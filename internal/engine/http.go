package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/taskmill/internal/reliability"
)

// HTTPExecutor forwards steps to a worker endpoint. Response status maps
// onto the retry taxonomy: 429 and 5xx are transient, other 4xx responses
// are fatal for the task.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

func NewHTTPExecutor(url string) *HTTPExecutor {
	return &HTTPExecutor{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type httpExecResponse struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, req ExecRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", &reliability.FatalStepError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return "", &reliability.FatalStepError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &reliability.StepExecutionError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		statusErr := fmt.Errorf("executor http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return "", &reliability.StepExecutionError{Err: statusErr}
		}
		return "", &reliability.FatalStepError{Err: statusErr}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &reliability.StepExecutionError{Err: fmt.Errorf("read response: %w", err)}
	}

	var out httpExecResponse
	if err := json.Unmarshal(body, &out); err != nil {
		// Plain-text workers are acceptable; the body is the output.
		return strings.TrimSpace(string(body)), nil
	}
	if out.Error != "" {
		return "", &reliability.StepExecutionError{Err: fmt.Errorf("executor reported: %s", out.Error)}
	}
	return out.Output, nil
}
