// Package telemetry exposes the scheduler's read-only snapshots and the
// operator control surface over HTTP. Snapshots are consistent copies
// taken under the scheduler mutex; serving them never disturbs in-flight
// scheduling.
package telemetry

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tickedf/internal/sched"
)

// Server is the telemetry/control API.
type Server struct {
	router     chi.Router
	logger     *slog.Logger
	sched      *sched.Scheduler
	estop      *sched.EStopMonitor
	clearToken string
	tickMicros int
	startTime  time.Time
}

// New creates a Server with all routes registered. An empty clearToken
// disables the remote emergency-stop clear entirely; the trigger side is
// never gated.
func New(s *sched.Scheduler, estop *sched.EStopMonitor, clearToken string, tickMicros int, logger *slog.Logger) *Server {
	srv := &Server{
		router:     chi.NewRouter(),
		logger:     logger.With("component", "telemetry"),
		sched:      s,
		estop:      estop,
		clearToken: clearToken,
		tickMicros: tickMicros,
		startTime:  time.Now(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/v1/health", s.handleHealth)
	s.router.Get("/api/v1/metrics", s.handleMetrics)
	s.router.Get("/api/v1/tasks", s.handleTasks)
	s.router.Get("/api/v1/tasks/{id}", s.handleTask)
	s.router.Post("/api/v1/tasks/{id}/enable", s.handleTaskControl((*sched.Scheduler).Enable))
	s.router.Post("/api/v1/tasks/{id}/disable", s.handleTaskControl((*sched.Scheduler).Disable))
	s.router.Post("/api/v1/tasks/{id}/reset", s.handleTaskControl((*sched.Scheduler).ResetStatistics))
	s.router.Get("/api/v1/safety", s.handleSafety)
	s.router.Post("/api/v1/estop", s.handleEStopTrigger)
	s.router.Post("/api/v1/estop/clear", s.handleEStopClear)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string `json:"status"`
	GoVersion  string `json:"go_version"`
	Uptime     string `json:"uptime"`
	TickMicros int    `json:"tick_us"`
	Tasks      int    `json:"tasks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, healthResponse{
		Status:     "healthy",
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		TickMicros: s.tickMicros,
		Tasks:      len(s.sched.Tasks()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondOK(w, s.sched.Metrics())
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	respondOK(w, s.sched.Tasks())
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	snap, err := s.sched.Task(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondOK(w, snap)
}

func (s *Server) handleTaskControl(op func(*sched.Scheduler, sched.TaskID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		if err := op(s.sched, id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sched.ErrNoSuchTask) {
				status = http.StatusNotFound
			}
			respondError(w, status, "task_control_failed", err.Error())
			return
		}
		snap, err := s.sched.Task(id)
		if err != nil {
			respondError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		respondOK(w, snap)
	}
}

type safetyResponse struct {
	SafetyActive bool `json:"safety_active"`
}

func (s *Server) handleSafety(w http.ResponseWriter, r *http.Request) {
	respondOK(w, safetyResponse{SafetyActive: s.sched.SafetyActive()})
}

func (s *Server) handleEStopTrigger(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("emergency stop triggered via API", "remote", r.RemoteAddr)
	s.estop.Trigger()
	respondOK(w, safetyResponse{SafetyActive: s.sched.SafetyActive()})
}

func (s *Server) handleEStopClear(w http.ResponseWriter, r *http.Request) {
	if s.clearToken == "" {
		respondError(w, http.StatusForbidden, "clear_disabled",
			"remote emergency-stop clear is not configured")
		return
	}
	if r.Header.Get("X-EStop-Token") != s.clearToken {
		respondError(w, http.StatusUnauthorized, "unauthorized",
			"missing or invalid X-EStop-Token")
		return
	}
	s.logger.Info("emergency stop cleared via API", "remote", r.RemoteAddr)
	s.estop.Clear()
	respondOK(w, safetyResponse{SafetyActive: s.sched.SafetyActive()})
}

func taskID(w http.ResponseWriter, r *http.Request) (sched.TaskID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_task_id", "task id must be a small integer")
		return 0, false
	}
	return sched.TaskID(n), true
}
