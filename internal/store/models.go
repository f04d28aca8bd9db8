package store

import (
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

// Task is a work order for either a profile tool or a product.
type Task struct {
	ID            int64
	ProfileToolID *int64
	ProductID     *int64
	DepartmentID  *int64
	Status        taskstatus.Status
	// Position is set only while Status is InProgress.
	Position    *int
	Deadline    *time.Time
	Created     time.Time
	Completed   *time.Time
	Description string
}

// InQueue reports whether the task currently holds a queue position.
func (t *Task) InQueue() bool {
	return t != nil && t.Status == taskstatus.InProgress && t.Position != nil
}

// Component is a tracked physical part of a task.
type Component struct {
	ID                     int64
	TaskID                 int64
	ProfileToolComponentID *int64
	ProductComponentID     *int64
	Quantity               int
	Description            string
}

// Stage is one production step of a component.
type Stage struct {
	ID            int64
	ComponentID   int64
	StageNum      int
	WorkSubtypeID int64
	MachineID     *int64
	Start         *time.Time
	Finish        *time.Time
}

// Complete reports whether the stage has a finish date.
func (s Stage) Complete() bool {
	return s.Finish != nil
}

// Started reports whether the stage has a start date.
func (s Stage) Started() bool {
	return s.Start != nil
}

// QueueEntry is the raw queue state of one in-progress task.
type QueueEntry struct {
	TaskID   int64
	Position *int
}

// StatusCounts maps each status to its task count.
type StatusCounts map[taskstatus.Status]int

// Total sums all counts.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
