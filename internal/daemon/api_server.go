package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
)

const (
	maxRequestBody  = 1 << 20
	requestIDHeader = "X-Request-ID"
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	commands api.Commands
	auth     authenticator

	readTimeout    time.Duration
	writeTimeout   time.Duration
	pingInterval   time.Duration
	wsWriteTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:           strings.TrimSpace(cfg.API.Bind),
		logger:         logging.NewComponentLogger(logger, "api-server"),
		daemon:         d,
		commands:       d.commands,
		auth:           newAuthenticator(cfg.API),
		readTimeout:    time.Duration(cfg.API.ReadTimeout) * time.Second,
		writeTimeout:   time.Duration(cfg.API.WriteTimeout) * time.Second,
		pingInterval:   cfg.BroadcastPingInterval(),
		wsWriteTimeout: cfg.BroadcastWriteTimeout(),
	}
}

func (s *apiServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.correlate)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "route not found", Code: api.CodeNotFound})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Error: "method not allowed", Code: api.CodeValidation})
	})

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(s.auth.middleware)
	protected.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	protected.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	protected.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	protected.HandleFunc("/tasks/{id:[0-9]+}", s.handleGetTask).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/{id:[0-9]+}", s.handleUpdateTask).Methods(http.MethodPatch)
	protected.HandleFunc("/tasks/{id:[0-9]+}", s.handleDeleteTask).Methods(http.MethodDelete)
	protected.HandleFunc("/tasks/{id:[0-9]+}/status", s.handleChangeStatus).Methods(http.MethodPost)
	protected.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	protected.HandleFunc("/queue", s.handleReorder).Methods(http.MethodPut)
	protected.HandleFunc("/queue/check", s.handleQueueCheck).Methods(http.MethodGet, http.MethodPost)
	protected.HandleFunc("/components/{id:[0-9]+}/stages", s.handleComponentPlan).Methods(http.MethodGet)
	protected.HandleFunc("/components/{id:[0-9]+}/next", s.handleNextStage).Methods(http.MethodGet)
	protected.HandleFunc("/stages/{id:[0-9]+}/start", s.handleStartStage).Methods(http.MethodPost)
	protected.HandleFunc("/stages/{id:[0-9]+}/finish", s.handleFinishStage).Methods(http.MethodPost)
	protected.HandleFunc("/directory/{kind}", s.handleDirectory).Methods(http.MethodGet)
	protected.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the api.bind address"),
			)
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// correlate tags each request with a correlation id, taken from the
// X-Request-ID header when present.
func (s *apiServer) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context(), r.Header.Get(requestIDHeader))
		id, _ := logging.CorrelationIDFromContext(ctx)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		s.writeError(w, r, fmt.Errorf("database unavailable: %w", err))
		return
	}
	stats, err := s.commands.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	health := api.Health{
		Status:      "ok",
		QueueSize:   stats.QueueSize,
		Dense:       stats.Dense,
		Subscribers: s.daemon.hub.Count(),
		Sequence:    s.daemon.hub.LastSequence(),
	}
	if !stats.Dense {
		health.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.DaemonStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.commands.ListTasks(r.Context(), r.URL.Query()["status"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *apiServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.commands.CreateTask(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/tasks/"+strconv.FormatInt(detail.Task.ID, 10))
	s.writeJSON(w, http.StatusCreated, detail)
}

func (s *apiServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.commands.GetTask(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.UpdateTaskRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.commands.UpdateTask(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *apiServer) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.commands.DeleteTask(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.StatusChangeRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.commands.ChangeStatus(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.commands.ListQueue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *apiServer) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.commands.ReorderQueue(r.Context(), req.TaskIDs); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleQueue(w, r)
}

func (s *apiServer) handleQueueCheck(w http.ResponseWriter, r *http.Request) {
	check, err := s.commands.CheckQueue(r.Context(), r.Method == http.MethodPost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, check)
}

func (s *apiServer) handleComponentPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, err := s.commands.ComponentPlan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *apiServer) handleNextStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stage, err := s.commands.NextStage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.NextStageResponse{Stage: stage})
}

func (s *apiServer) handleStartStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.StartStageRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	stage, err := s.commands.StartStage(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stage)
}

func (s *apiServer) handleFinishStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.FinishStageRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	stage, err := s.commands.FinishStage(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stage)
}

func (s *apiServer) handleDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.commands.Directory(r.Context(), mux.Vars(r)["kind"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", scheduler.ErrValidation, raw)
	}
	return id, nil
}

// decodeBody strictly decodes one JSON object. With allowEmpty an absent
// body leaves dst untouched.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: decode request: %v", scheduler.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after request body", scheduler.ErrValidation)
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, logging.WithContext(r.Context(), s.logger), err)
}

// writeError renders err as an ErrorResponse. Internal errors are logged
// when a logger is supplied.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logging.ErrorWithContext(logger, "request failed", "api_request_failed", logging.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.NewErrorResponse(err))
}
