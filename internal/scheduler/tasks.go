package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/queue"
	"github.com/formemu/aditim-monitor-sub000/internal/stageplan"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

func validateNewTask(req NewTask) error {
	if (req.ProfileToolID == nil) == (req.ProductID == nil) {
		return fmt.Errorf("%w: task needs exactly one of profile tool or product", ErrValidation)
	}
	for i, component := range req.Components {
		if (component.ProfileToolComponentID == nil) == (component.ProductComponentID == nil) {
			return fmt.Errorf("%w: component %d needs exactly one of profile tool component or product component", ErrValidation, i+1)
		}
		if req.ProfileToolID != nil && component.ProfileToolComponentID == nil {
			return fmt.Errorf("%w: component %d must reference a profile tool component", ErrValidation, i+1)
		}
		if req.ProductID != nil && component.ProductComponentID == nil {
			return fmt.Errorf("%w: component %d must reference a product component", ErrValidation, i+1)
		}
		if component.Quantity < 0 {
			return fmt.Errorf("%w: component %d quantity must not be negative", ErrValidation, i+1)
		}
		nums := make([]int, len(component.Stages))
		for j, stage := range component.Stages {
			nums[j] = stage.StageNum
		}
		if err := stageplan.ValidatePlan(nums); err != nil {
			return fmt.Errorf("%w: component %d: %w", ErrValidation, i+1, err)
		}
	}
	return nil
}

func checkReferences(ctx context.Context, dir store.Directory, req NewTask) error {
	if req.DepartmentID != nil {
		ok, err := dir.HasDepartment(ctx, *req.DepartmentID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: department %d does not exist", ErrValidation, *req.DepartmentID)
		}
	}
	for _, component := range req.Components {
		for _, stage := range component.Stages {
			ok, err := dir.HasWorkSubtype(ctx, stage.WorkSubtypeID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: work subtype %d does not exist", ErrValidation, stage.WorkSubtypeID)
			}
			if stage.MachineID == nil {
				continue
			}
			if ok, err = dir.HasMachine(ctx, *stage.MachineID); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: machine %d does not exist", ErrValidation, *stage.MachineID)
			}
		}
	}
	return nil
}

// CreateTask stores a New task together with its components and stage plans.
func (s *Service) CreateTask(ctx context.Context, req NewTask) (*TaskDetail, error) {
	if err := validateNewTask(req); err != nil {
		return nil, err
	}

	var taskID int64
	err := s.mutate(ctx, func(tx *store.Tx) error {
		if err := checkReferences(ctx, tx.Directory(), req); err != nil {
			return err
		}
		var err error
		taskID, err = tx.InsertTask(ctx, &store.Task{
			ProfileToolID: req.ProfileToolID,
			ProductID:     req.ProductID,
			DepartmentID:  req.DepartmentID,
			Status:        taskstatus.New,
			Deadline:      calendarDay(req.Deadline),
			Created:       s.now(),
			Description:   req.Description,
		})
		if err != nil {
			return err
		}
		for _, component := range req.Components {
			componentID, err := tx.InsertComponent(ctx, &store.Component{
				TaskID:                 taskID,
				ProfileToolComponentID: component.ProfileToolComponentID,
				ProductComponentID:     component.ProductComponentID,
				Quantity:               component.Quantity,
				Description:            component.Description,
			})
			if err != nil {
				return err
			}
			for _, stage := range component.Stages {
				if _, err := tx.InsertStage(ctx, &store.Stage{
					ComponentID:   componentID,
					StageNum:      stage.StageNum,
					WorkSubtypeID: stage.WorkSubtypeID,
					MachineID:     stage.MachineID,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.logger.Info("task created",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.Int("components", len(req.Components)),
		logging.String(logging.FieldEventType, "task_created"),
	)
	s.publish(broadcast.NewMessage(broadcast.GroupTask, taskID, broadcast.EventCreated))
	return s.GetTask(ctx, taskID)
}

// GetTask loads a task with every component plan.
func (s *Service) GetTask(ctx context.Context, taskID int64) (*TaskDetail, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	components, err := s.store.ComponentsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(components))
	for i, component := range components {
		ids[i] = component.ID
	}
	stages, err := s.store.StagesByComponents(ctx, ids)
	if err != nil {
		return nil, err
	}
	detail := &TaskDetail{Task: task, Components: make([]ComponentPlan, 0, len(components))}
	for _, component := range components {
		detail.Components = append(detail.Components, buildPlan(component, stages[component.ID]))
	}
	return detail, nil
}

func buildPlan(component *store.Component, stages []store.Stage) ComponentPlan {
	finished, total := stageplan.Progress(stages)
	return ComponentPlan{
		Component:  component,
		Stages:     stageplan.Sorted(stages),
		Actionable: stageplan.Resolve(stages),
		Finished:   finished,
		Total:      total,
	}
}

// ListTasks lists tasks, optionally filtered by status.
func (s *Service) ListTasks(ctx context.Context, statuses ...taskstatus.Status) ([]*store.Task, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}
	return s.store.ListTasks(ctx, statuses...)
}

// ListInProgress returns the queue in priority order.
func (s *Service) ListInProgress(ctx context.Context) ([]*store.Task, error) {
	return s.store.ListInProgress(ctx)
}

// DeleteTask removes a task with its components and stages. A task that was
// in the queue leaves it and the remaining positions are compacted.
func (s *Service) DeleteTask(ctx context.Context, taskID int64) error {
	var wasQueued bool
	err := s.mutate(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		wasQueued = task.Status == taskstatus.InProgress
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		if wasQueued {
			_, err = queue.Repack(ctx, tx)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}

	s.logger.Info("task deleted",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String(logging.FieldEventType, "task_deleted"),
	)
	msgs := []broadcast.Message{broadcast.NewMessage(broadcast.GroupTask, taskID, broadcast.EventDeleted)}
	if wasQueued {
		msgs = append(msgs, broadcast.NewMessage(broadcast.GroupQueue, 0, broadcast.EventUpdated))
	}
	s.publish(msgs...)
	return nil
}

// UpdateTaskDetails changes the description and deadline of a task.
func (s *Service) UpdateTaskDetails(ctx context.Context, taskID int64, patch TaskPatch) (*store.Task, error) {
	if patch.Deadline != nil && patch.ClearDeadline {
		return nil, fmt.Errorf("%w: deadline cannot be set and cleared together", ErrValidation)
	}
	var updated *store.Task
	err := s.mutate(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		description := task.Description
		if patch.Description != nil {
			description = strings.TrimSpace(*patch.Description)
		}
		deadline := task.Deadline
		switch {
		case patch.ClearDeadline:
			deadline = nil
		case patch.Deadline != nil:
			deadline = calendarDay(patch.Deadline)
		}
		if err := tx.UpdateTaskDetails(ctx, taskID, description, deadline); err != nil {
			return err
		}
		updated, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", taskID, err)
	}
	s.publish(broadcast.NewMessage(broadcast.GroupTask, taskID, broadcast.EventUpdated))
	return updated, nil
}

// ListComponents lists the components of a task.
func (s *Service) ListComponents(ctx context.Context, taskID int64) ([]*store.Component, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ComponentsByTask(ctx, taskID)
}

// ListStages lists a component's stages in execution order.
func (s *Service) ListStages(ctx context.Context, componentID int64) ([]store.Stage, error) {
	if _, err := s.store.GetComponent(ctx, componentID); err != nil {
		return nil, err
	}
	return s.store.StagesByComponent(ctx, componentID)
}

// ComponentPlan returns a component with its stages, progress, and actionable stage.
func (s *Service) ComponentPlan(ctx context.Context, componentID int64) (*ComponentPlan, error) {
	component, err := s.store.GetComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.StagesByComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}
	plan := buildPlan(component, stages)
	return &plan, nil
}

// Directory lists the entries of one reference table.
func (s *Service) Directory(ctx context.Context, kind store.DirectoryKind) ([]DirectoryEntry, error) {
	dir := s.store.Directory()
	switch kind {
	case store.KindDepartments:
		departments, err := dir.Departments(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]DirectoryEntry, len(departments))
		for i, dep := range departments {
			out[i] = DirectoryEntry{ID: dep.ID, Name: dep.Name}
		}
		return out, nil
	case store.KindMachines:
		machines, err := dir.Machines(ctx)
		if err != nil {
			return nil, err
		}
		departments, err := dir.Departments(ctx)
		if err != nil {
			return nil, err
		}
		names := make(map[int64]string, len(departments))
		for _, dep := range departments {
			names[dep.ID] = dep.Name
		}
		out := make([]DirectoryEntry, len(machines))
		for i, machine := range machines {
			out[i] = DirectoryEntry{ID: machine.ID, Name: machine.Name}
			if machine.DepartmentID != nil {
				out[i].Group = names[*machine.DepartmentID]
			}
		}
		return out, nil
	case store.KindWorkSubtypes:
		subtypes, err := dir.WorkSubtypes(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]DirectoryEntry, len(subtypes))
		for i, subtype := range subtypes {
			out[i] = DirectoryEntry{ID: subtype.ID, Name: subtype.Name, Group: subtype.WorkType}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %w", ErrValidation, store.ErrUnknownDirectory)
	}
}

// Stats reports task counts per status and queue health.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.QueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Counts: counts, QueueSize: len(entries), Dense: queue.IsDense(entries)}, nil
}

// CheckQueue inspects queue positions. With repair set, a queue that is not
// dense is repacked in stored order and viewers are told to refetch it.
func (s *Service) CheckQueue(ctx context.Context, repair bool) (*QueueCheck, error) {
	if !repair {
		entries, err := s.store.QueueEntries(ctx)
		if err != nil {
			return nil, err
		}
		return &QueueCheck{Report: queue.Inspect(entries)}, nil
	}

	var check QueueCheck
	err := s.mutate(ctx, func(tx *store.Tx) error {
		entries, err := tx.QueueEntries(ctx)
		if err != nil {
			return err
		}
		check.Report = queue.Inspect(entries)
		check.Repaired, err = queue.Repack(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repair queue: %w", err)
	}
	if check.Repaired {
		logging.WarnWithContext(s.logger, "queue positions repacked", "queue_repacked",
			logging.Int("size", check.Report.Size),
			logging.Any("gaps", check.Report.Gaps),
			logging.Any("duplicates", check.Report.Duplicates),
			logging.Int("unset", len(check.Report.Unset)),
			logging.String(logging.FieldErrorHint, "positions were written outside the scheduler"),
			logging.String(logging.FieldImpact, "queue order re-derived from stored positions"),
		)
		s.publish(broadcast.NewMessage(broadcast.GroupQueue, 0, broadcast.EventUpdated))
	}
	return &check, nil
}
