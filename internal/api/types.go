package api

const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task is the transport representation of a work order.
type Task struct {
	ID            int64  `json:"id"`
	ProfileToolID *int64 `json:"profileToolId,omitempty"`
	ProductID     *int64 `json:"productId,omitempty"`
	DepartmentID  *int64 `json:"departmentId,omitempty"`
	Status        string `json:"status"`
	StatusLabel   string `json:"statusLabel"`
	Position      *int   `json:"position,omitempty"`
	Deadline      string `json:"deadline,omitempty"`
	Created       string `json:"created,omitempty"`
	Completed     string `json:"completed,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Component is a physical part tracked inside a task.
type Component struct {
	ID                     int64  `json:"id"`
	TaskID                 int64  `json:"taskId"`
	ProfileToolComponentID *int64 `json:"profileToolComponentId,omitempty"`
	ProductComponentID     *int64 `json:"productComponentId,omitempty"`
	Quantity               int    `json:"quantity"`
	Description            string `json:"description,omitempty"`
}

// Stage is one production step of a component.
type Stage struct {
	ID            int64  `json:"id"`
	ComponentID   int64  `json:"componentId"`
	StageNum      int    `json:"stageNum"`
	WorkSubtypeID int64  `json:"workSubtypeId"`
	MachineID     *int64 `json:"machineId,omitempty"`
	Start         string `json:"start,omitempty"`
	Finish        string `json:"finish,omitempty"`
	Finished      bool   `json:"finished"`
}

// ComponentPlan is a component with its stages in stage order.
type ComponentPlan struct {
	Component  Component `json:"component"`
	Stages     []Stage   `json:"stages"`
	Actionable *Stage    `json:"actionable,omitempty"`
	Finished   int       `json:"finished"`
	Total      int       `json:"total"`
}

// TaskDetail is a task with the plans of its components.
type TaskDetail struct {
	Task       Task            `json:"task"`
	Components []ComponentPlan `json:"components"`
}

// DirectoryEntry is one row of a reference table.
type DirectoryEntry struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
}

// Stats summarizes task counts and queue health.
type Stats struct {
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
	QueueSize int            `json:"queueSize"`
	Dense     bool           `json:"dense"`
}

// QueueCheck reports how queue positions deviate from 0..N-1.
type QueueCheck struct {
	Size       int     `json:"size"`
	Dense      bool    `json:"dense"`
	Unset      []int64 `json:"unset,omitempty"`
	Duplicates []int   `json:"duplicates,omitempty"`
	Gaps       []int   `json:"gaps,omitempty"`
	Repaired   bool    `json:"repaired"`
}

// Health is the payload of GET /api/health.
type Health struct {
	Status      string `json:"status"`
	QueueSize   int    `json:"queueSize"`
	Dense       bool   `json:"dense"`
	Subscribers int    `json:"subscribers"`
	Sequence    uint64 `json:"sequence"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateTaskRequest creates a task with its components and stage plans.
type CreateTaskRequest struct {
	ProfileToolID *int64                   `json:"profileToolId,omitempty"`
	ProductID     *int64                   `json:"productId,omitempty"`
	DepartmentID  *int64                   `json:"departmentId,omitempty"`
	Deadline      string                   `json:"deadline,omitempty"`
	Description   string                   `json:"description,omitempty"`
	Components    []CreateComponentRequest `json:"components"`
}

// CreateComponentRequest is one component of a CreateTaskRequest.
type CreateComponentRequest struct {
	ProfileToolComponentID *int64               `json:"profileToolComponentId,omitempty"`
	ProductComponentID     *int64               `json:"productComponentId,omitempty"`
	Quantity               int                  `json:"quantity,omitempty"`
	Description            string               `json:"description,omitempty"`
	Stages                 []CreateStageRequest `json:"stages"`
}

// CreateStageRequest is one planned stage.
type CreateStageRequest struct {
	StageNum      int    `json:"stageNum"`
	WorkSubtypeID int64  `json:"workSubtypeId"`
	MachineID     *int64 `json:"machineId,omitempty"`
}

// UpdateTaskRequest patches descriptive task fields.
type UpdateTaskRequest struct {
	Description   *string `json:"description,omitempty"`
	Deadline      string  `json:"deadline,omitempty"`
	ClearDeadline bool    `json:"clearDeadline,omitempty"`
}

// StatusChangeRequest moves a task to another status.
type StatusChangeRequest struct {
	Status string `json:"status"`
	Date   string `json:"date,omitempty"`
}

// ReorderRequest carries the full desired queue order.
type ReorderRequest struct {
	TaskIDs []int64 `json:"taskIds"`
}

// StartStageRequest starts a stage, optionally on a different machine.
type StartStageRequest struct {
	MachineID *int64 `json:"machineId,omitempty"`
	Date      string `json:"date,omitempty"`
}

// FinishStageRequest finishes a stage.
type FinishStageRequest struct {
	Date string `json:"date,omitempty"`
}

// DaemonStatus describes the running daemon.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	StartedAt    string `json:"startedAt,omitempty"`
	DatabasePath string `json:"databasePath"`
	LockPath     string `json:"lockPath"`
	APIAddress   string `json:"apiAddress,omitempty"`
	Subscribers  int    `json:"subscribers"`
	Sequence     uint64 `json:"sequence"`
	Stats        Stats  `json:"stats"`
}

// NextStageResponse carries a component's actionable stage, which is null
// when nothing can start.
type NextStageResponse struct {
	Stage *Stage `json:"stage"`
}
