package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/taskmill/internal/scheduler"
	"github.com/antoniostano/taskmill/internal/tasks"
)

type submitTaskRequest struct {
	AgentID       string            `json:"agent_id"`
	Request       string            `json:"request"`
	WorkspaceRoot string            `json:"workspace_root"`
	Params        map[string]string `json:"params"`
	Priority      string            `json:"priority"`
	MaxRetries    *int              `json:"max_retries"`
	TimeoutMS     int64             `json:"timeout_ms"`
}

type submitTaskResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Deduped  bool   `json:"deduped"`
}

type actionResponse struct {
	TaskID  string `json:"task_id"`
	Applied bool   `json:"applied"`
	Status  string `json:"status"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.Request = strings.TrimSpace(req.Request)
	if req.Request == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "request is required")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}
	if req.TimeoutMS < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "timeout_ms must be >= 0")
		return
	}

	task, deduped, err := s.scheduler.Submit(scheduler.SubmitSpec{
		AgentID:       req.AgentID,
		Request:       req.Request,
		WorkspaceRoot: strings.TrimSpace(req.WorkspaceRoot),
		Params:        req.Params,
		Priority:      strings.TrimSpace(req.Priority),
		MaxRetries:    req.MaxRetries,
		Timeout:       time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrShuttingDown) {
			respondError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_submit_failed", err.Error())
		return
	}

	status := http.StatusCreated
	if deduped {
		status = http.StatusOK
	}
	respondJSON(w, status, submitTaskResponse{
		TaskID:   task.ID,
		Status:   string(task.Status),
		Priority: string(task.Priority),
		Deduped:  deduped,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	task, err := s.registry.Get(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			// Evicted terminal tasks may still be in the archive.
			if s.store != nil {
				archived, aerr := s.store.GetTask(r.Context(), taskID)
				if aerr == nil {
					respondJSON(w, http.StatusOK, archived)
					return
				}
				if !errors.Is(aerr, tasks.ErrStoreNotFound) {
					respondError(w, http.StatusInternalServerError, "archive_get_failed", aerr.Error())
					return
				}
			}
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_get_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var status tasks.TaskStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		switch tasks.TaskStatus(raw) {
		case tasks.TaskStatusQueued, tasks.TaskStatusRunning, tasks.TaskStatusPaused,
			tasks.TaskStatusCompleted, tasks.TaskStatusFailed, tasks.TaskStatusCancelled:
			status = tasks.TaskStatus(raw)
		default:
			respondError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
			return
		}
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("archived")); raw == "1" || strings.EqualFold(raw, "true") {
		s.listArchivedTasks(w, r, status, limit)
		return
	}

	list := s.registry.List(status)
	tasks.SortByCreated(list)
	if len(list) > limit {
		list = list[:limit]
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

// listArchivedTasks serves evicted terminal tasks from the archive store.
func (s *Server) listArchivedTasks(w http.ResponseWriter, r *http.Request, status tasks.TaskStatus, limit int) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, map[string]any{"tasks": []tasks.Task{}})
		return
	}
	list, err := s.store.ListTasks(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_list_failed", err.Error())
		return
	}
	if status != "" {
		filtered := make([]tasks.Task, 0, len(list))
		for _, t := range list {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		list = filtered
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

type cancelTaskRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	var req cancelTaskRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	applied, err := s.scheduler.Cancel(taskID, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_cancel_failed", err.Error())
		return
	}
	s.respondAction(w, taskID, applied)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	applied, err := s.scheduler.Pause(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_pause_failed", err.Error())
		return
	}
	s.respondAction(w, taskID, applied)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	applied, err := s.scheduler.Resume(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_resume_failed", err.Error())
		return
	}
	s.respondAction(w, taskID, applied)
}

func (s *Server) handleEvictTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	if err := s.registry.Evict(taskID); err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusConflict, "task_evict_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	events, err := s.registry.ListEvents(taskID, limit)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_events_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"events":  events,
	})
}

func (s *Server) respondAction(w http.ResponseWriter, taskID string, applied bool) {
	task, err := s.registry.Get(taskID)
	if err != nil {
		respondError(w, http.StatusNotFound, "task_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, actionResponse{
		TaskID:  taskID,
		Applied: applied,
		Status:  string(task.Status),
	})
}
