package ipc

import "github.com/formemu/aditim-monitor-sub000/internal/api"

// ServiceName is the RPC receiver name.
const ServiceName = "Aditim"

// Empty is used for calls without arguments or results.
type Empty struct{}

// IDRequest addresses one task, component, or stage.
type IDRequest struct {
	ID int64 `json:"id"`
}

// StatusResponse reports daemon state.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// StopResponse acknowledges a shutdown request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// CreateTaskRequest wraps api.CreateTaskRequest.
type CreateTaskRequest struct {
	Task api.CreateTaskRequest `json:"task"`
}

// TaskDetailResponse carries one task with its plans.
type TaskDetailResponse struct {
	Detail api.TaskDetail `json:"detail"`
}

// ListTasksRequest filters tasks by status.
type ListTasksRequest struct {
	Statuses []string `json:"statuses"`
}

// TasksResponse carries a list of tasks.
type TasksResponse struct {
	Tasks []api.Task `json:"tasks"`
}

// TaskResponse carries one task.
type TaskResponse struct {
	Task api.Task `json:"task"`
}

// UpdateTaskRequest patches a task.
type UpdateTaskRequest struct {
	ID    int64                 `json:"id"`
	Patch api.UpdateTaskRequest `json:"patch"`
}

// ChangeStatusRequest moves a task to another status.
type ChangeStatusRequest struct {
	ID     int64                   `json:"id"`
	Change api.StatusChangeRequest `json:"change"`
}

// ReorderRequest carries the full queue order.
type ReorderRequest struct {
	TaskIDs []int64 `json:"task_ids"`
}

// CheckQueueRequest inspects, and with Repair fixes, queue positions.
type CheckQueueRequest struct {
	Repair bool `json:"repair"`
}

// QueueCheckResponse carries a queue reconciliation report.
type QueueCheckResponse struct {
	Check api.QueueCheck `json:"check"`
}

// ComponentPlanResponse carries a component's stage plan.
type ComponentPlanResponse struct {
	Plan api.ComponentPlan `json:"plan"`
}

// StageResponse carries an optional stage.
type StageResponse struct {
	Stage *api.Stage `json:"stage"`
}

// StartStageRequest starts a stage.
type StartStageRequest struct {
	ID    int64                 `json:"id"`
	Start api.StartStageRequest `json:"start"`
}

// FinishStageRequest finishes a stage.
type FinishStageRequest struct {
	ID     int64                  `json:"id"`
	Finish api.FinishStageRequest `json:"finish"`
}

// DirectoryRequest names a reference table.
type DirectoryRequest struct {
	Kind string `json:"kind"`
}

// DirectoryResponse carries reference table rows.
type DirectoryResponse struct {
	Entries []api.DirectoryEntry `json:"entries"`
}

// StatsResponse carries task statistics.
type StatsResponse struct {
	Stats api.Stats `json:"stats"`
}
