package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/taskmill/internal/config"
	"github.com/antoniostano/taskmill/internal/observability"
	"github.com/antoniostano/taskmill/internal/scheduler"
	"github.com/antoniostano/taskmill/internal/tasks"
)

type Server struct {
	cfg       config.Config
	registry  *tasks.Registry
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics
	log       *zap.Logger
	store     tasks.Store
	storeMode string
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, registry *tasks.Registry, sched *scheduler.Scheduler, metrics *observability.Metrics, log *zap.Logger, store tasks.Store, storeMode string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		registry:  registry,
		scheduler: sched,
		metrics:   metrics,
		log:       log,
		store:     store,
		storeMode: storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot tail task streams if the
				// service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/tasks", s.handleSubmitTask)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/tasks/events/ws", s.handleEventsWS)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Delete("/v1/tasks/{id}", s.handleEvictTask)
	r.Post("/v1/tasks/{id}/cancel", s.handleCancelTask)
	r.Post("/v1/tasks/{id}/pause", s.handlePauseTask)
	r.Post("/v1/tasks/{id}/resume", s.handleResumeTask)
	r.Get("/v1/tasks/{id}/events", s.handleListTaskEvents)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	queued, running := s.scheduler.Stats()
	depth := 0
	for _, n := range queued {
		depth += n
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
		"running":    running,
		"queued":     depth,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
