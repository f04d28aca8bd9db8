package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

const callTimeout = 30 * time.Second

// Backend is what the server exposes.
type Backend interface {
	Commands() api.Commands
	DaemonStatus(ctx context.Context) (api.DaemonStatus, error)
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer listens on path. shutdown, when set, is invoked by the Stop call.
func NewServer(ctx context.Context, path string, backend Backend, shutdown func(), logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires a backend")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{backend: backend, shutdown: shutdown, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fall back to direct database access"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			if !s.track(conn) {
				conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops the server, disconnects clients, and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may confuse CLI commands"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	backend  Backend
	shutdown func()
	logger   *slog.Logger
	ctx      context.Context
}

func (s *service) call() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, callTimeout)
}

// encodeError prefixes the error code so the client can rebuild it.
func encodeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s", api.ErrorCode(err), err.Error())
}

func (s *service) Status(_ Empty, resp *StatusResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	status, err := s.backend.DaemonStatus(ctx)
	if err != nil {
		return encodeError(err)
	}
	resp.Status = status
	return nil
}

func (s *service) Stop(_ Empty, resp *StopResponse) error {
	if s.shutdown == nil {
		return errors.New("daemon shutdown is not available over IPC")
	}
	s.logger.Info("daemon stop requested via IPC", logging.String(logging.FieldEventType, "daemon_stop_requested"))
	go s.shutdown()
	resp.Stopping = true
	return nil
}

func (s *service) CreateTask(req CreateTaskRequest, resp *TaskDetailResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	detail, err := s.backend.Commands().CreateTask(ctx, req.Task)
	if err != nil {
		return encodeError(err)
	}
	resp.Detail = *detail
	return nil
}

func (s *service) GetTask(req IDRequest, resp *TaskDetailResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	detail, err := s.backend.Commands().GetTask(ctx, req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Detail = *detail
	return nil
}

func (s *service) ListTasks(req ListTasksRequest, resp *TasksResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	tasks, err := s.backend.Commands().ListTasks(ctx, req.Statuses)
	if err != nil {
		return encodeError(err)
	}
	resp.Tasks = tasks
	return nil
}

func (s *service) UpdateTask(req UpdateTaskRequest, resp *TaskResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	task, err := s.backend.Commands().UpdateTask(ctx, req.ID, req.Patch)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = *task
	return nil
}

func (s *service) DeleteTask(req IDRequest, _ *Empty) error {
	ctx, cancel := s.call()
	defer cancel()
	return encodeError(s.backend.Commands().DeleteTask(ctx, req.ID))
}

func (s *service) ChangeStatus(req ChangeStatusRequest, resp *TaskResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	task, err := s.backend.Commands().ChangeStatus(ctx, req.ID, req.Change)
	if err != nil {
		return encodeError(err)
	}
	resp.Task = *task
	return nil
}

func (s *service) ListQueue(_ Empty, resp *TasksResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	tasks, err := s.backend.Commands().ListQueue(ctx)
	if err != nil {
		return encodeError(err)
	}
	resp.Tasks = tasks
	return nil
}

func (s *service) ReorderQueue(req ReorderRequest, _ *Empty) error {
	ctx, cancel := s.call()
	defer cancel()
	return encodeError(s.backend.Commands().ReorderQueue(ctx, req.TaskIDs))
}

func (s *service) CheckQueue(req CheckQueueRequest, resp *QueueCheckResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	check, err := s.backend.Commands().CheckQueue(ctx, req.Repair)
	if err != nil {
		return encodeError(err)
	}
	resp.Check = *check
	return nil
}

func (s *service) ComponentPlan(req IDRequest, resp *ComponentPlanResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	plan, err := s.backend.Commands().ComponentPlan(ctx, req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Plan = *plan
	return nil
}

func (s *service) NextStage(req IDRequest, resp *StageResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	stage, err := s.backend.Commands().NextStage(ctx, req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Stage = stage
	return nil
}

func (s *service) StartStage(req StartStageRequest, resp *StageResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	stage, err := s.backend.Commands().StartStage(ctx, req.ID, req.Start)
	if err != nil {
		return encodeError(err)
	}
	resp.Stage = stage
	return nil
}

func (s *service) FinishStage(req FinishStageRequest, resp *StageResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	stage, err := s.backend.Commands().FinishStage(ctx, req.ID, req.Finish)
	if err != nil {
		return encodeError(err)
	}
	resp.Stage = stage
	return nil
}

func (s *service) Directory(req DirectoryRequest, resp *DirectoryResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	entries, err := s.backend.Commands().Directory(ctx, req.Kind)
	if err != nil {
		return encodeError(err)
	}
	resp.Entries = entries
	return nil
}

func (s *service) Stats(_ Empty, resp *StatsResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	stats, err := s.backend.Commands().Stats(ctx)
	if err != nil {
		return encodeError(err)
	}
	resp.Stats = *stats
	return nil
}
