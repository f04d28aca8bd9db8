package scheduler

import (
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/queue"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// NewTask describes a task to create with its components and stage plans.
type NewTask struct {
	ProfileToolID *int64
	ProductID     *int64
	DepartmentID  *int64
	Deadline      *time.Time
	Description   string
	Components    []NewComponent
}

// NewComponent is one component of a NewTask.
type NewComponent struct {
	ProfileToolComponentID *int64
	ProductComponentID     *int64
	Quantity               int
	Description            string
	Stages                 []NewStage
}

// NewStage is one planned stage of a NewComponent.
type NewStage struct {
	StageNum      int
	WorkSubtypeID int64
	MachineID     *int64
}

// TaskPatch changes descriptive task fields. Nil fields are left alone.
type TaskPatch struct {
	Description   *string
	Deadline      *time.Time
	ClearDeadline bool
}

// ComponentPlan is a component with its stages and the stage it may run next.
type ComponentPlan struct {
	Component  *store.Component
	Stages     []store.Stage
	Actionable *store.Stage
	Finished   int
	Total      int
}

// TaskDetail is a task with the plans of all its components.
type TaskDetail struct {
	Task       *store.Task
	Components []ComponentPlan
}

// DirectoryEntry is one row of a reference table.
type DirectoryEntry struct {
	ID    int64
	Name  string
	Group string
}

// Stats summarizes task counts and queue health.
type Stats struct {
	Counts    store.StatusCounts
	QueueSize int
	Dense     bool
}

// QueueCheck reports the queue's state and whether it was repaired.
type QueueCheck struct {
	Report   queue.Report
	Repaired bool
}
