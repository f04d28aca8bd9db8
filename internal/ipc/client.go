package ipc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon. It implements api.Commands.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

var _ api.Commands = (*Client)(nil)

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// call invokes method and waits for the reply or for ctx to end.
func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	call := c.client.Go(ServiceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		return decodeError(done.Error)
	}
}

// decodeError rebuilds a domain error from its "[code] message" form.
func decodeError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	text := string(serverErr)
	if rest, ok := strings.CutPrefix(text, "["); ok {
		if code, message, ok := strings.Cut(rest, "] "); ok {
			return api.NewError(code, message)
		}
	}
	return api.NewError("", text)
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp.Status, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop(ctx context.Context) error {
	var resp StopResponse
	return c.call(ctx, "Stop", Empty{}, &resp)
}

// CreateTask creates a task with its components and stage plans.
func (c *Client) CreateTask(ctx context.Context, req api.CreateTaskRequest) (*api.TaskDetail, error) {
	var resp TaskDetailResponse
	if err := c.call(ctx, "CreateTask", CreateTaskRequest{Task: req}, &resp); err != nil {
		return nil, err
	}
	return &resp.Detail, nil
}

// GetTask returns a task with its component plans.
func (c *Client) GetTask(ctx context.Context, id int64) (*api.TaskDetail, error) {
	var resp TaskDetailResponse
	if err := c.call(ctx, "GetTask", IDRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Detail, nil
}

// ListTasks lists tasks filtered by status.
func (c *Client) ListTasks(ctx context.Context, statuses []string) ([]api.Task, error) {
	var resp TasksResponse
	if err := c.call(ctx, "ListTasks", ListTasksRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// UpdateTask patches a task.
func (c *Client) UpdateTask(ctx context.Context, id int64, req api.UpdateTaskRequest) (*api.Task, error) {
	var resp TaskResponse
	if err := c.call(ctx, "UpdateTask", UpdateTaskRequest{ID: id, Patch: req}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.call(ctx, "DeleteTask", IDRequest{ID: id}, &Empty{})
}

// ChangeStatus moves a task to another status.
func (c *Client) ChangeStatus(ctx context.Context, id int64, req api.StatusChangeRequest) (*api.Task, error) {
	var resp TaskResponse
	if err := c.call(ctx, "ChangeStatus", ChangeStatusRequest{ID: id, Change: req}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// ListQueue returns in-progress tasks in queue order.
func (c *Client) ListQueue(ctx context.Context) ([]api.Task, error) {
	var resp TasksResponse
	if err := c.call(ctx, "ListQueue", Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// ReorderQueue replaces the queue order.
func (c *Client) ReorderQueue(ctx context.Context, ids []int64) error {
	return c.call(ctx, "ReorderQueue", ReorderRequest{TaskIDs: ids}, &Empty{})
}

// CheckQueue inspects and optionally repairs queue positions.
func (c *Client) CheckQueue(ctx context.Context, repair bool) (*api.QueueCheck, error) {
	var resp QueueCheckResponse
	if err := c.call(ctx, "CheckQueue", CheckQueueRequest{Repair: repair}, &resp); err != nil {
		return nil, err
	}
	return &resp.Check, nil
}

// ComponentPlan returns a component's stage plan.
func (c *Client) ComponentPlan(ctx context.Context, componentID int64) (*api.ComponentPlan, error) {
	var resp ComponentPlanResponse
	if err := c.call(ctx, "ComponentPlan", IDRequest{ID: componentID}, &resp); err != nil {
		return nil, err
	}
	return &resp.Plan, nil
}

// NextStage returns the component's actionable stage, or nil.
func (c *Client) NextStage(ctx context.Context, componentID int64) (*api.Stage, error) {
	var resp StageResponse
	if err := c.call(ctx, "NextStage", IDRequest{ID: componentID}, &resp); err != nil {
		return nil, err
	}
	return resp.Stage, nil
}

// StartStage starts a stage.
func (c *Client) StartStage(ctx context.Context, stageID int64, req api.StartStageRequest) (*api.Stage, error) {
	var resp StageResponse
	if err := c.call(ctx, "StartStage", StartStageRequest{ID: stageID, Start: req}, &resp); err != nil {
		return nil, err
	}
	return resp.Stage, nil
}

// FinishStage finishes a stage.
func (c *Client) FinishStage(ctx context.Context, stageID int64, req api.FinishStageRequest) (*api.Stage, error) {
	var resp StageResponse
	if err := c.call(ctx, "FinishStage", FinishStageRequest{ID: stageID, Finish: req}, &resp); err != nil {
		return nil, err
	}
	return resp.Stage, nil
}

// Directory lists one reference table.
func (c *Client) Directory(ctx context.Context, kind string) ([]api.DirectoryEntry, error) {
	var resp DirectoryResponse
	if err := c.call(ctx, "Directory", DirectoryRequest{Kind: kind}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Stats reports task counts and queue health.
func (c *Client) Stats(ctx context.Context) (*api.Stats, error) {
	var resp StatsResponse
	if err := c.call(ctx, "Stats", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}
