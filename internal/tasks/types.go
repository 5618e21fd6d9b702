package tasks

import "time"

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

type ChunkStatus string

const (
	ChunkStatusPending   ChunkStatus = "pending"
	ChunkStatusRunning   ChunkStatus = "running"
	ChunkStatusCompleted ChunkStatus = "completed"
	ChunkStatusFailed    ChunkStatus = "failed"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Task is one submitted coding request and its full lifecycle record.
type Task struct {
	ID               string            `json:"id"`
	AgentID          string            `json:"agent_id"`
	Request          string            `json:"request"`
	WorkspaceRoot    string            `json:"workspace_root,omitempty"`
	Params           map[string]string `json:"params,omitempty"`
	Priority         Priority          `json:"priority"`
	Status           TaskStatus        `json:"status"`
	Progress         int               `json:"progress"`
	CurrentStepIndex int               `json:"current_step_index"`
	TotalSteps       int               `json:"total_steps"`
	Chunks           []Chunk           `json:"chunks,omitempty"`
	RetryCount       int               `json:"retry_count"`
	MaxRetries       int               `json:"max_retries"`
	TimeoutMS        int64             `json:"timeout_ms"`
	Result           string            `json:"result,omitempty"`
	Error            string            `json:"error,omitempty"`
	ErrorCode        string            `json:"error_code,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// Chunk is a bounded, ordered slice of a task's step plan. Chunks are
// materialized one at a time as execution reaches them.
type Chunk struct {
	ID     string      `json:"id"`
	TaskID string      `json:"task_id"`
	Seq    int         `json:"seq"`
	Status ChunkStatus `json:"status"`
	Steps  []Step      `json:"steps"`
}

// Step is the smallest unit of execution. ActionKind is opaque to the
// engine; the step executor collaborator interprets it.
type Step struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	Index       int        `json:"index"`
	Description string     `json:"description"`
	ActionKind  string     `json:"action_kind,omitempty"`
	Group       string     `json:"group,omitempty"`
	Status      StepStatus `json:"status"`
	Attempts    int        `json:"attempts,omitempty"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// StepSpec is the planner's contribution to a step before the registry
// assigns identity and position.
type StepSpec struct {
	Description string
	ActionKind  string
	Group       string
}

type EventType string

const (
	EventSubmitted    EventType = "submitted"
	EventStarted      EventType = "started"
	EventProgress     EventType = "progress"
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventStepError    EventType = "step_error"
	EventPaused       EventType = "paused"
	EventResumed      EventType = "resumed"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventCancelled    EventType = "cancelled"
)

// Event is one entry in a task's ordered notification stream.
type Event struct {
	Type      EventType  `json:"type"`
	TaskID    string     `json:"task_id"`
	StepIndex int        `json:"step_index,omitempty"`
	ChunkSeq  int        `json:"chunk_seq,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	Progress  int        `json:"progress,omitempty"`
	Attempt   int        `json:"attempt,omitempty"`
	Result    string     `json:"result,omitempty"`
	Code      string     `json:"code,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	At        time.Time  `json:"at"`
}

func (t Task) Clone() Task {
	out := t
	if t.Params != nil {
		out.Params = make(map[string]string, len(t.Params))
		for k, v := range t.Params {
			out.Params[k] = v
		}
	}
	if t.Chunks != nil {
		out.Chunks = make([]Chunk, len(t.Chunks))
		for i, c := range t.Chunks {
			cc := c
			if c.Steps != nil {
				cc.Steps = make([]Step, len(c.Steps))
				copy(cc.Steps, c.Steps)
			}
			out.Chunks[i] = cc
		}
	}
	return out
}

func (t Task) Terminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Timeout converts the per-chunk budget into a duration.
func (t Task) Timeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

func ParsePriority(raw string) (Priority, bool) {
	switch Priority(raw) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(raw), true
	default:
		return "", false
	}
}
