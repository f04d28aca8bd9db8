package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// formatDate renders a calendar-day field. Those are stored as UTC midnight.
func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// FromTask converts a store task to its API representation.
func FromTask(task *store.Task) Task {
	if task == nil {
		return Task{}
	}
	dto := Task{
		ID:            task.ID,
		ProfileToolID: task.ProfileToolID,
		ProductID:     task.ProductID,
		DepartmentID:  task.DepartmentID,
		Status:        string(task.Status),
		StatusLabel:   task.Status.Label(),
		Position:      task.Position,
		Deadline:      formatDate(task.Deadline),
		Created:       formatTime(&task.Created),
		Completed:     formatDate(task.Completed),
		Description:   task.Description,
	}
	return dto
}

// FromTasks converts a slice of tasks. A nil input yields an empty slice so
// JSON clients always see an array.
func FromTasks(tasks []*store.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromComponent converts a store component.
func FromComponent(component *store.Component) Component {
	if component == nil {
		return Component{}
	}
	return Component{
		ID:                     component.ID,
		TaskID:                 component.TaskID,
		ProfileToolComponentID: component.ProfileToolComponentID,
		ProductComponentID:     component.ProductComponentID,
		Quantity:               component.Quantity,
		Description:            component.Description,
	}
}

// FromStage converts a store stage.
func FromStage(stage store.Stage) Stage {
	return Stage{
		ID:            stage.ID,
		ComponentID:   stage.ComponentID,
		StageNum:      stage.StageNum,
		WorkSubtypeID: stage.WorkSubtypeID,
		MachineID:     stage.MachineID,
		Start:         formatTime(stage.Start),
		Finish:        formatTime(stage.Finish),
		Finished:      stage.Complete(),
	}
}

// FromStagePtr converts an optional stage.
func FromStagePtr(stage *store.Stage) *Stage {
	if stage == nil {
		return nil
	}
	dto := FromStage(*stage)
	return &dto
}

// FromPlan converts a scheduler component plan.
func FromPlan(plan *scheduler.ComponentPlan) ComponentPlan {
	if plan == nil {
		return ComponentPlan{Stages: []Stage{}}
	}
	dto := ComponentPlan{
		Component:  FromComponent(plan.Component),
		Stages:     make([]Stage, 0, len(plan.Stages)),
		Actionable: FromStagePtr(plan.Actionable),
		Finished:   plan.Finished,
		Total:      plan.Total,
	}
	for _, stage := range plan.Stages {
		dto.Stages = append(dto.Stages, FromStage(stage))
	}
	return dto
}

// FromDetail converts a scheduler task detail.
func FromDetail(detail *scheduler.TaskDetail) TaskDetail {
	if detail == nil {
		return TaskDetail{Components: []ComponentPlan{}}
	}
	dto := TaskDetail{
		Task:       FromTask(detail.Task),
		Components: make([]ComponentPlan, 0, len(detail.Components)),
	}
	for i := range detail.Components {
		dto.Components = append(dto.Components, FromPlan(&detail.Components[i]))
	}
	return dto
}

// FromDirectory converts directory entries.
func FromDirectory(entries []scheduler.DirectoryEntry) []DirectoryEntry {
	out := make([]DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, DirectoryEntry{ID: entry.ID, Name: entry.Name, Group: entry.Group})
	}
	return out
}

// FromStats converts scheduler stats. Every known status is present in
// Counts even when zero.
func FromStats(stats *scheduler.Stats) Stats {
	dto := Stats{Counts: make(map[string]int, len(taskstatus.All()))}
	for _, status := range taskstatus.All() {
		dto.Counts[string(status)] = 0
	}
	if stats == nil {
		dto.Dense = true
		return dto
	}
	for status, n := range stats.Counts {
		dto.Counts[string(status)] = n
	}
	dto.Total = stats.Counts.Total()
	dto.QueueSize = stats.QueueSize
	dto.Dense = stats.Dense
	return dto
}

// FromQueueCheck converts a queue reconciliation report.
func FromQueueCheck(check *scheduler.QueueCheck) QueueCheck {
	if check == nil {
		return QueueCheck{Dense: true}
	}
	return QueueCheck{
		Size:       check.Report.Size,
		Dense:      check.Report.Dense,
		Unset:      check.Report.Unset,
		Duplicates: check.Report.Duplicates,
		Gaps:       check.Report.Gaps,
		Repaired:   check.Repaired,
	}
}

// ParseDate accepts a calendar date or an RFC3339 timestamp. A calendar date
// yields midnight UTC of that date regardless of the local zone. An empty
// value yields the zero time, which the scheduler treats as "now".
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, value, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", scheduler.ErrValidation, value)
	}
	return t, nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	t, err := ParseDate(value)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// ToNewTask converts a create request into the scheduler's input.
func ToNewTask(req CreateTaskRequest) (scheduler.NewTask, error) {
	deadline, err := parseOptionalDate(req.Deadline)
	if err != nil {
		return scheduler.NewTask{}, err
	}
	out := scheduler.NewTask{
		ProfileToolID: req.ProfileToolID,
		ProductID:     req.ProductID,
		DepartmentID:  req.DepartmentID,
		Deadline:      deadline,
		Description:   strings.TrimSpace(req.Description),
		Components:    make([]scheduler.NewComponent, 0, len(req.Components)),
	}
	for _, comp := range req.Components {
		nc := scheduler.NewComponent{
			ProfileToolComponentID: comp.ProfileToolComponentID,
			ProductComponentID:     comp.ProductComponentID,
			Quantity:               comp.Quantity,
			Description:            strings.TrimSpace(comp.Description),
			Stages:                 make([]scheduler.NewStage, 0, len(comp.Stages)),
		}
		for _, stage := range comp.Stages {
			nc.Stages = append(nc.Stages, scheduler.NewStage{
				StageNum:      stage.StageNum,
				WorkSubtypeID: stage.WorkSubtypeID,
				MachineID:     stage.MachineID,
			})
		}
		out.Components = append(out.Components, nc)
	}
	return out, nil
}

// ToTaskPatch converts an update request.
func ToTaskPatch(req UpdateTaskRequest) (scheduler.TaskPatch, error) {
	deadline, err := parseOptionalDate(req.Deadline)
	if err != nil {
		return scheduler.TaskPatch{}, err
	}
	if deadline != nil && req.ClearDeadline {
		return scheduler.TaskPatch{}, fmt.Errorf("%w: deadline and clearDeadline are mutually exclusive", scheduler.ErrValidation)
	}
	return scheduler.TaskPatch{
		Description:   req.Description,
		Deadline:      deadline,
		ClearDeadline: req.ClearDeadline,
	}, nil
}

// ParseStatuses parses a status filter. Values may be comma separated.
func ParseStatuses(values []string) ([]taskstatus.Status, error) {
	var out []taskstatus.Status
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := taskstatus.Parse(part)
			if err != nil {
				return nil, err
			}
			out = append(out, status)
		}
	}
	return out, nil
}
