package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

// Commands is the command surface exposed to transports and the CLI.
type Commands interface {
	CreateTask(ctx context.Context, req CreateTaskRequest) (*TaskDetail, error)
	GetTask(ctx context.Context, id int64) (*TaskDetail, error)
	ListTasks(ctx context.Context, statuses []string) ([]Task, error)
	UpdateTask(ctx context.Context, id int64, req UpdateTaskRequest) (*Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ChangeStatus(ctx context.Context, id int64, req StatusChangeRequest) (*Task, error)
	ListQueue(ctx context.Context) ([]Task, error)
	ReorderQueue(ctx context.Context, ids []int64) error
	CheckQueue(ctx context.Context, repair bool) (*QueueCheck, error)
	ComponentPlan(ctx context.Context, componentID int64) (*ComponentPlan, error)
	NextStage(ctx context.Context, componentID int64) (*Stage, error)
	StartStage(ctx context.Context, stageID int64, req StartStageRequest) (*Stage, error)
	FinishStage(ctx context.Context, stageID int64, req FinishStageRequest) (*Stage, error)
	Directory(ctx context.Context, kind string) ([]DirectoryEntry, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Service adapts scheduler.Service to Commands.
type Service struct {
	sched *scheduler.Service
}

var _ Commands = (*Service)(nil)

// NewService wraps the scheduler.
func NewService(sched *scheduler.Service) *Service {
	return &Service{sched: sched}
}

var errNoScheduler = errors.New("scheduler unavailable")

func (s *Service) ready() error {
	if s == nil || s.sched == nil {
		return errNoScheduler
	}
	return nil
}

// CreateTask validates and stores a new task.
func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (*TaskDetail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	input, err := ToNewTask(req)
	if err != nil {
		return nil, err
	}
	detail, err := s.sched.CreateTask(ctx, input)
	if err != nil {
		return nil, err
	}
	dto := FromDetail(detail)
	return &dto, nil
}

// GetTask returns a task with its component plans.
func (s *Service) GetTask(ctx context.Context, id int64) (*TaskDetail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	detail, err := s.sched.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromDetail(detail)
	return &dto, nil
}

// ListTasks lists tasks, optionally filtered by status keys or labels.
func (s *Service) ListTasks(ctx context.Context, statuses []string) ([]Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	filter, err := ParseStatuses(statuses)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scheduler.ErrValidation, err)
	}
	tasks, err := s.sched.ListTasks(ctx, filter...)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// UpdateTask patches description and deadline.
func (s *Service) UpdateTask(ctx context.Context, id int64, req UpdateTaskRequest) (*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	patch, err := ToTaskPatch(req)
	if err != nil {
		return nil, err
	}
	task, err := s.sched.UpdateTaskDetails(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	dto := FromTask(task)
	return &dto, nil
}

// DeleteTask removes a task and everything under it.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.sched.DeleteTask(ctx, id)
}

// ChangeStatus applies a status transition.
func (s *Service) ChangeStatus(ctx context.Context, id int64, req StatusChangeRequest) (*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	next, err := taskstatus.Parse(req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scheduler.ErrValidation, err)
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	task, err := s.sched.ChangeTaskStatus(ctx, id, next, date)
	if err != nil {
		return nil, err
	}
	dto := FromTask(task)
	return &dto, nil
}

// ListQueue returns in-progress tasks in queue order.
func (s *Service) ListQueue(ctx context.Context) ([]Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tasks, err := s.sched.ListInProgress(ctx)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// ReorderQueue replaces the queue order.
func (s *Service) ReorderQueue(ctx context.Context, ids []int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.sched.ReorderQueue(ctx, ids)
}

// CheckQueue inspects and optionally repairs queue positions.
func (s *Service) CheckQueue(ctx context.Context, repair bool) (*QueueCheck, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	check, err := s.sched.CheckQueue(ctx, repair)
	if err != nil {
		return nil, err
	}
	dto := FromQueueCheck(check)
	return &dto, nil
}

// ComponentPlan returns a component's stage plan.
func (s *Service) ComponentPlan(ctx context.Context, componentID int64) (*ComponentPlan, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	plan, err := s.sched.ComponentPlan(ctx, componentID)
	if err != nil {
		return nil, err
	}
	dto := FromPlan(plan)
	return &dto, nil
}

// NextStage returns the component's actionable stage, or nil.
func (s *Service) NextStage(ctx context.Context, componentID int64) (*Stage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	stage, err := s.sched.AdvanceStage(ctx, componentID)
	if err != nil {
		return nil, err
	}
	return FromStagePtr(stage), nil
}

// StartStage starts a stage.
func (s *Service) StartStage(ctx context.Context, stageID int64, req StartStageRequest) (*Stage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	stage, err := s.sched.StartStage(ctx, stageID, req.MachineID, date)
	if err != nil {
		return nil, err
	}
	return FromStagePtr(stage), nil
}

// FinishStage finishes a stage.
func (s *Service) FinishStage(ctx context.Context, stageID int64, req FinishStageRequest) (*Stage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	stage, err := s.sched.FinishStage(ctx, stageID, date)
	if err != nil {
		return nil, err
	}
	return FromStagePtr(stage), nil
}

// Directory lists one reference table.
func (s *Service) Directory(ctx context.Context, kind string) ([]DirectoryEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	parsed, err := store.ParseDirectoryKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scheduler.ErrValidation, err)
	}
	entries, err := s.sched.Directory(ctx, parsed)
	if err != nil {
		return nil, err
	}
	return FromDirectory(entries), nil
}

// Stats reports task counts and queue health.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	stats, err := s.sched.Stats(ctx)
	if err != nil {
		return nil, err
	}
	dto := FromStats(stats)
	return &dto, nil
}
