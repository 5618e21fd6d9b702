package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidTaskState = errors.New("invalid task state")
)

const defaultEventHistoryLimit = 512

type idempotencyEntry struct {
	TaskID    string
	CreatedAt time.Time
}

// CreateSpec carries everything needed to register a new task.
type CreateSpec struct {
	AgentID       string
	Request       string
	WorkspaceRoot string
	Params        map[string]string
	Priority      Priority
	MaxRetries    int
	Timeout       time.Duration
}

// Registry is the live in-memory task store and per-task event channel.
// It is the single point of mutation for task records: the scheduler and
// the execution engine never touch a Task outside registry methods.
type Registry struct {
	mu sync.RWMutex

	idempotencyWindow time.Duration
	store             Store
	eventHook         func(Event)

	tasks           map[string]*Task
	order           []string
	idempotency     map[string]idempotencyEntry
	eventsByTask    map[string][]Event
	eventHistoryMax int

	cancelRequested map[string]bool
	pauseRequested  map[string]bool

	// subscribers keyed by task id; key "" receives every task's events.
	subscribers map[string]map[int]chan Event
	nextSubID   int
}

func NewRegistry(idempotencyWindow time.Duration, eventHistoryMax int) *Registry {
	if idempotencyWindow <= 0 {
		idempotencyWindow = 10 * time.Second
	}
	if eventHistoryMax <= 0 {
		eventHistoryMax = defaultEventHistoryLimit
	}
	return &Registry{
		idempotencyWindow: idempotencyWindow,
		tasks:             make(map[string]*Task),
		idempotency:       make(map[string]idempotencyEntry),
		eventsByTask:      make(map[string][]Event),
		eventHistoryMax:   eventHistoryMax,
		cancelRequested:   make(map[string]bool),
		pauseRequested:    make(map[string]bool),
		subscribers:       make(map[string]map[int]chan Event),
	}
}

func (r *Registry) SetStore(store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
}

// SetEventHook installs an observer invoked for every published event,
// such as the event counter metric. The hook must not block.
func (r *Registry) SetEventHook(hook func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventHook = hook
}

// Subscribe returns an ordered event stream for one task, or for all tasks
// when taskID is empty. The returned func unsubscribes and closes the channel.
func (r *Registry) Subscribe(taskID string) (<-chan Event, func()) {
	taskID = strings.TrimSpace(taskID)

	ch := make(chan Event, 256)
	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	if _, ok := r.subscribers[taskID]; !ok {
		r.subscribers[taskID] = make(map[int]chan Event)
	}
	r.subscribers[taskID][id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subscribers[taskID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(r.subscribers, taskID)
		}
	}
}

// Create registers a new task in Queued status. A resubmission of the same
// agent/request/workspace within the idempotency window returns the existing
// task with deduped=true instead of creating a duplicate.
func (r *Registry) Create(spec CreateSpec) (Task, bool, error) {
	spec.AgentID = strings.TrimSpace(spec.AgentID)
	spec.Request = strings.TrimSpace(spec.Request)
	spec.WorkspaceRoot = strings.TrimSpace(spec.WorkspaceRoot)
	if spec.Request == "" {
		return Task{}, false, errors.New("request is required")
	}
	if spec.AgentID == "" {
		return Task{}, false, errors.New("agent_id is required")
	}
	if _, ok := ParsePriority(string(spec.Priority)); !ok {
		return Task{}, false, fmt.Errorf("invalid priority %q", spec.Priority)
	}
	if spec.MaxRetries < 0 {
		return Task{}, false, errors.New("max_retries must be >= 0")
	}
	if spec.Timeout <= 0 {
		return Task{}, false, errors.New("timeout must be positive")
	}

	now := time.Now().UTC()
	key := idempotencyKey(spec.AgentID, spec.WorkspaceRoot, spec.Request)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcIdempotencyLocked(now)

	if hit, ok := r.idempotency[key]; ok {
		if now.Sub(hit.CreatedAt) <= r.idempotencyWindow {
			if t, exists := r.tasks[hit.TaskID]; exists && !t.Terminal() {
				return t.Clone(), true, nil
			}
		}
	}

	task := &Task{
		ID:            uuid.NewString(),
		AgentID:       spec.AgentID,
		Request:       spec.Request,
		WorkspaceRoot: spec.WorkspaceRoot,
		Params:        spec.Params,
		Priority:      spec.Priority,
		Status:        TaskStatusQueued,
		MaxRetries:    spec.MaxRetries,
		TimeoutMS:     spec.Timeout.Milliseconds(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.tasks[task.ID] = task
	r.order = append(r.order, task.ID)
	r.idempotency[key] = idempotencyEntry{TaskID: task.ID, CreatedAt: now}

	r.publishLocked(Event{
		Type:   EventSubmitted,
		TaskID: task.ID,
		Title:  summarizeRequest(task.Request),
		Status: task.Status,
		At:     now,
	})
	return task.Clone(), false, nil
}

func (r *Registry) Get(taskID string) (Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Task{}, errors.New("task_id is required")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List returns snapshots in submission order, optionally filtered by status.
func (r *Registry) List(status TaskStatus) []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		t, ok := r.tasks[id]
		if !ok {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func (r *Registry) ListEvents(taskID string, limit int) ([]Event, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("task_id is required")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tasks[taskID]; !ok {
		return nil, ErrTaskNotFound
	}
	events := r.eventsByTask[taskID]
	if len(events) == 0 {
		return []Event{}, nil
	}
	start := 0
	if limit > 0 && limit < len(events) {
		start = len(events) - limit
	}
	out := make([]Event, len(events)-start)
	copy(out, events[start:])
	return out, nil
}

// Evict removes a terminal task from the live registry. The engine never
// calls this; cleanup is an external caller's action.
func (r *Registry) Evict(taskID string) error {
	taskID = strings.TrimSpace(taskID)
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if !task.Terminal() {
		return fmt.Errorf("%w: evict is only valid on terminal tasks", ErrInvalidTaskState)
	}
	delete(r.tasks, taskID)
	delete(r.eventsByTask, taskID)
	delete(r.cancelRequested, taskID)
	delete(r.pauseRequested, taskID)
	for i, id := range r.order {
		if id == taskID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MarkRunning admits a queued task. The started event fires only on the
// first admission; re-admissions after a pause already emitted resumed.
func (r *Registry) MarkRunning(taskID string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Status != TaskStatusQueued {
		return Task{}, fmt.Errorf("%w: admit is only valid in queued, got %s", ErrInvalidTaskState, task.Status)
	}
	task.Status = TaskStatusRunning
	task.UpdatedAt = now
	first := task.StartedAt == nil
	if first {
		task.StartedAt = &now
	}
	if first {
		r.publishLocked(Event{
			Type:   EventStarted,
			TaskID: task.ID,
			Title:  summarizeRequest(task.Request),
			Status: task.Status,
			At:     now,
		})
	}
	return task.Clone(), nil
}

// SetPlanSize records the full plan length after the planning phase and
// bumps progress into the execution range.
func (r *Registry) SetPlanSize(taskID string, totalSteps int) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return task.Clone(), nil
	}
	task.TotalSteps = totalSteps
	task.Progress = maxInt(task.Progress, planningShare)
	task.UpdatedAt = now
	r.publishLocked(Event{
		Type:     EventProgress,
		TaskID:   task.ID,
		Status:   task.Status,
		Progress: task.Progress,
		Detail:   fmt.Sprintf("Planned %d step(s).", totalSteps),
		At:       now,
	})
	return task.Clone(), nil
}

// AppendChunk materializes the next chunk of the plan behind the already
// recorded ones. Step indices continue the task-wide sequence.
func (r *Registry) AppendChunk(taskID string, specs []StepSpec) (Chunk, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Chunk{}, ErrTaskNotFound
	}
	base := 0
	for _, c := range task.Chunks {
		base += len(c.Steps)
	}
	chunk := Chunk{
		ID:     uuid.NewString(),
		TaskID: task.ID,
		Seq:    len(task.Chunks) + 1,
		Status: ChunkStatusPending,
		Steps:  make([]Step, 0, len(specs)),
	}
	for i, spec := range specs {
		chunk.Steps = append(chunk.Steps, Step{
			ID:          uuid.NewString(),
			TaskID:      task.ID,
			Index:       base + i,
			Description: spec.Description,
			ActionKind:  spec.ActionKind,
			Group:       spec.Group,
			Status:      StepStatusPending,
		})
	}
	task.Chunks = append(task.Chunks, chunk)
	task.UpdatedAt = now
	return cloneChunk(chunk), nil
}

func (r *Registry) StartChunk(taskID string, seq int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Terminal() {
		return fmt.Errorf("%w: task is %s", ErrInvalidTaskState, task.Status)
	}
	for i := range task.Chunks {
		if task.Chunks[i].Seq == seq {
			task.Chunks[i].Status = ChunkStatusRunning
			task.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: chunk %d not materialized", ErrInvalidTaskState, seq)
}

// CompleteChunk marks a chunk done and emits the chunk-boundary progress
// notification.
func (r *Registry) CompleteChunk(taskID string, seq int) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Terminal() {
		return fmt.Errorf("%w: task is %s", ErrInvalidTaskState, task.Status)
	}
	for i := range task.Chunks {
		if task.Chunks[i].Seq != seq {
			continue
		}
		task.Chunks[i].Status = ChunkStatusCompleted
		task.UpdatedAt = now
		r.publishLocked(Event{
			Type:     EventProgress,
			TaskID:   task.ID,
			ChunkSeq: seq,
			Status:   task.Status,
			Progress: task.Progress,
			Detail:   fmt.Sprintf("Chunk %d of plan complete.", seq),
			At:       now,
		})
		return nil
	}
	return fmt.Errorf("%w: chunk %d not materialized", ErrInvalidTaskState, seq)
}

func (r *Registry) StartStep(taskID string, index int) (Step, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Step{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return Step{}, fmt.Errorf("%w: task is %s", ErrInvalidTaskState, task.Status)
	}
	step := findStepLocked(task, index)
	if step == nil {
		return Step{}, fmt.Errorf("%w: step %d not materialized", ErrInvalidTaskState, index)
	}
	step.Status = StepStatusRunning
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	task.CurrentStepIndex = index
	task.UpdatedAt = now
	r.publishLocked(Event{
		Type:      EventStepStart,
		TaskID:    task.ID,
		StepIndex: index,
		Title:     step.Description,
		Status:    task.Status,
		Progress:  task.Progress,
		At:        now,
	})
	return *step, nil
}

func (r *Registry) CompleteStep(taskID string, index int, output string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return Task{}, fmt.Errorf("%w: task is %s", ErrInvalidTaskState, task.Status)
	}
	step := findStepLocked(task, index)
	if step == nil {
		return Task{}, fmt.Errorf("%w: step %d not materialized", ErrInvalidTaskState, index)
	}
	step.Status = StepStatusCompleted
	step.Output = strings.TrimSpace(output)
	step.Error = ""
	step.EndedAt = &now
	task.CurrentStepIndex = index + 1
	task.Progress = maxInt(task.Progress, progressFor(index+1, task.TotalSteps))
	task.UpdatedAt = now
	r.publishLocked(Event{
		Type:      EventStepComplete,
		TaskID:    task.ID,
		StepIndex: index,
		Title:     step.Description,
		Status:    task.Status,
		Progress:  task.Progress,
		At:        now,
	})
	return task.Clone(), nil
}

// RecordStepError notes one failed attempt of a step. It does not decide
// retry policy; the engine does.
func (r *Registry) RecordStepError(taskID string, index, attempt int, detail string) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	step := findStepLocked(task, index)
	if step == nil {
		return fmt.Errorf("%w: step %d not materialized", ErrInvalidTaskState, index)
	}
	step.Attempts = attempt
	step.Error = strings.TrimSpace(detail)
	task.RetryCount = minInt(attempt, task.MaxRetries)
	task.UpdatedAt = now
	r.publishLocked(Event{
		Type:      EventStepError,
		TaskID:    task.ID,
		StepIndex: index,
		Title:     step.Description,
		Status:    task.Status,
		Attempt:   attempt,
		Detail:    strings.TrimSpace(detail),
		At:        now,
	})
	return nil
}

// Complete finishes a task. The result payload is assembled from the step
// outputs so it survives pauses. Terminal transitions are idempotent: a
// second call is a no-op returning the settled snapshot.
func (r *Registry) Complete(taskID string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return task.Clone(), nil
	}
	task.Status = TaskStatusCompleted
	task.Progress = 100
	task.Result = assembleResultLocked(task)
	task.Error = ""
	task.ErrorCode = ""
	task.UpdatedAt = now
	task.CompletedAt = &now
	r.publishLocked(Event{
		Type:     EventCompleted,
		TaskID:   task.ID,
		Status:   task.Status,
		Progress: task.Progress,
		Result:   task.Result,
		At:       now,
	})
	r.persistLocked(task.Clone())
	return task.Clone(), nil
}

func (r *Registry) Fail(taskID, code, detail string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return task.Clone(), nil
	}
	task.Status = TaskStatusFailed
	task.ErrorCode = strings.TrimSpace(code)
	task.Error = strings.TrimSpace(detail)
	task.UpdatedAt = now
	task.CompletedAt = &now
	for i := range task.Chunks {
		if task.Chunks[i].Status == ChunkStatusRunning {
			task.Chunks[i].Status = ChunkStatusFailed
		}
	}
	if step := findStepLocked(task, task.CurrentStepIndex); step != nil && step.Status == StepStatusRunning {
		step.Status = StepStatusFailed
		step.Error = task.Error
		step.EndedAt = &now
	}
	r.publishLocked(Event{
		Type:   EventFailed,
		TaskID: task.ID,
		Status: task.Status,
		Code:   task.ErrorCode,
		Detail: task.Error,
		At:     now,
	})
	r.persistLocked(task.Clone())
	return task.Clone(), nil
}

func (r *Registry) MarkCancelled(taskID, reason string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return task.Clone(), nil
	}
	task.Status = TaskStatusCancelled
	task.Error = strings.TrimSpace(reason)
	task.ErrorCode = "cancelled"
	task.UpdatedAt = now
	task.CompletedAt = &now
	delete(r.cancelRequested, taskID)
	delete(r.pauseRequested, taskID)
	r.publishLocked(Event{
		Type:   EventCancelled,
		TaskID: task.ID,
		Status: task.Status,
		Code:   task.ErrorCode,
		Detail: task.Error,
		At:     now,
	})
	r.persistLocked(task.Clone())
	return task.Clone(), nil
}

func (r *Registry) MarkPaused(taskID string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Terminal() {
		return task.Clone(), nil
	}
	if task.Status != TaskStatusRunning {
		return Task{}, fmt.Errorf("%w: pause is only valid in running", ErrInvalidTaskState)
	}
	task.Status = TaskStatusPaused
	task.UpdatedAt = now
	delete(r.pauseRequested, taskID)
	r.publishLocked(Event{
		Type:     EventPaused,
		TaskID:   task.ID,
		Status:   task.Status,
		Progress: task.Progress,
		At:       now,
	})
	return task.Clone(), nil
}

// MarkResumed moves a paused task back into the queue; the scheduler
// re-admits it when a slot frees.
func (r *Registry) MarkResumed(taskID string) (Task, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Status != TaskStatusPaused {
		return Task{}, fmt.Errorf("%w: resume is only valid in paused", ErrInvalidTaskState)
	}
	task.Status = TaskStatusQueued
	task.UpdatedAt = now
	r.publishLocked(Event{
		Type:     EventResumed,
		TaskID:   task.ID,
		Status:   task.Status,
		Progress: task.Progress,
		At:       now,
	})
	return task.Clone(), nil
}

// RequestCancel sets the cooperative cancellation flag. The engine honors
// it at the next step boundary.
func (r *Registry) RequestCancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok || task.Terminal() {
		return false
	}
	r.cancelRequested[taskID] = true
	return true
}

func (r *Registry) CancelRequested(taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelRequested[taskID]
}

func (r *Registry) RequestPause(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok || task.Terminal() {
		return false
	}
	r.pauseRequested[taskID] = true
	return true
}

func (r *Registry) PauseRequested(taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pauseRequested[taskID]
}

func (r *Registry) gcIdempotencyLocked(now time.Time) {
	for k, v := range r.idempotency {
		if now.Sub(v.CreatedAt) > r.idempotencyWindow {
			delete(r.idempotency, k)
		}
	}
}

func (r *Registry) publishLocked(evt Event) {
	if r.eventHook != nil {
		r.eventHook(evt)
	}
	if taskID := strings.TrimSpace(evt.TaskID); taskID != "" {
		r.eventsByTask[taskID] = append(r.eventsByTask[taskID], evt)
		if max := r.eventHistoryMax; max > 0 && len(r.eventsByTask[taskID]) > max {
			trimFrom := len(r.eventsByTask[taskID]) - max
			r.eventsByTask[taskID] = append([]Event(nil), r.eventsByTask[taskID][trimFrom:]...)
		}
	}

	for _, key := range []string{evt.TaskID, ""} {
		subs := r.subscribers[key]
		for _, ch := range subs {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// persistLocked archives a terminal snapshot best-effort; the live registry
// never reads it back.
func (r *Registry) persistLocked(task Task) {
	store := r.store
	if store == nil {
		return
	}
	go func(snapshot Task) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.SaveTask(ctx, snapshot)
	}(task)
}

func findStepLocked(task *Task, index int) *Step {
	for i := range task.Chunks {
		for j := range task.Chunks[i].Steps {
			if task.Chunks[i].Steps[j].Index == index {
				return &task.Chunks[i].Steps[j]
			}
		}
	}
	return nil
}

func assembleResultLocked(task *Task) string {
	outputs := make([]string, 0, task.TotalSteps)
	for _, c := range task.Chunks {
		for _, s := range c.Steps {
			if out := strings.TrimSpace(s.Output); out != "" {
				outputs = append(outputs, out)
			}
		}
	}
	if len(outputs) == 0 {
		return "done"
	}
	return strings.Join(outputs, "\n")
}

func cloneChunk(c Chunk) Chunk {
	out := c
	out.Steps = make([]Step, len(c.Steps))
	copy(out.Steps, c.Steps)
	return out
}

// Progress splits 5% for the planning phase and 95% for execution; 100 is
// reserved for the completed transition.
const planningShare = 5

func progressFor(stepsDone, totalSteps int) int {
	if totalSteps <= 0 {
		return planningShare
	}
	if stepsDone > totalSteps {
		stepsDone = totalSteps
	}
	p := planningShare + (100-planningShare)*stepsDone/totalSteps
	if p > 99 {
		p = 99
	}
	return p
}

func idempotencyKey(agentID, workspaceRoot, request string) string {
	return agentID + "|" + workspaceRoot + "|" + normalizeRequest(request)
}

func normalizeRequest(in string) string {
	in = strings.ToLower(strings.TrimSpace(in))
	if in == "" {
		return ""
	}
	parts := strings.Fields(in)
	return strings.Join(parts, " ")
}

func summarizeRequest(request string) string {
	s := strings.TrimSpace(request)
	if len(s) <= 120 {
		return s
	}
	cut := 120
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	s = s[:cut]
	if lastSpace := strings.LastIndexByte(s, ' '); lastSpace > 70 {
		s = s[:lastSpace]
	}
	return strings.TrimSpace(s) + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SortByCreated orders snapshots newest-first; used by list endpoints.
func SortByCreated(list []Task) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
