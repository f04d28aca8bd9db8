package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/queue"
	"github.com/formemu/aditim-monitor-sub000/internal/stageplan"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

// Publisher receives change notifications after a mutation commits.
type Publisher interface {
	Publish(msg broadcast.Message) broadcast.Message
}

// Service executes scheduler commands against a store.
type Service struct {
	store  *store.Store
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time

	// mu serializes mutations; reads do not take it.
	mu sync.Mutex
}

// New constructs a Service. pub may be nil when nobody listens for changes.
func New(st *store.Store, pub Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		pub:    pub,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		now:    time.Now,
	}
}

func (s *Service) publish(msgs ...broadcast.Message) {
	if s.pub == nil {
		return
	}
	for _, msg := range msgs {
		s.pub.Publish(msg)
	}
}

func (s *Service) effective(date time.Time) time.Time {
	if date.IsZero() {
		return s.now()
	}
	return date
}

func calendarDay(date *time.Time) *time.Time {
	if date == nil {
		return nil
	}
	day := taskstatus.CalendarDay(*date)
	return &day
}

// mutate runs fn under the writer lock in one transaction.
func (s *Service) mutate(ctx context.Context, fn func(tx *store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.WithTx(ctx, fn)
}

// ChangeTaskStatus moves a task to next and applies the queue side effect in
// the same transaction: entering InProgress appends the task to the queue,
// leaving it removes the task and compacts the rest.
func (s *Service) ChangeTaskStatus(ctx context.Context, taskID int64, next taskstatus.Status, effectiveDate time.Time) (*store.Task, error) {
	var (
		updated *store.Task
		tr      taskstatus.Transition
	)
	err := s.mutate(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		tr, err = taskstatus.Enter(task.Status, next, s.effective(effectiveDate))
		if err != nil {
			return err
		}
		if err := tx.SetTaskStatus(ctx, taskID, next, tr.Completed); err != nil {
			return err
		}
		switch tr.Effect {
		case taskstatus.EffectJoinQueue:
			err = queue.AppendOnEnter(ctx, tx, taskID)
		case taskstatus.EffectLeaveQueue:
			err = queue.RemoveAndCompact(ctx, tx, taskID)
		}
		if err != nil {
			return err
		}
		updated, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("change task %d status: %w", taskID, err)
	}

	s.logger.Info("task status changed",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String("from", string(tr.From)),
		logging.String("to", string(tr.To)),
		logging.String(logging.FieldEventType, "task_status_changed"),
	)
	msgs := []broadcast.Message{broadcast.NewMessage(broadcast.GroupTask, taskID, broadcast.EventStatus)}
	if tr.Effect != taskstatus.EffectNone {
		msgs = append(msgs, broadcast.NewMessage(broadcast.GroupQueue, 0, broadcast.EventUpdated))
	}
	s.publish(msgs...)
	return updated, nil
}

// ReorderQueue replaces the queue order with orderedIDs, which must list
// exactly the current in-progress tasks.
func (s *Service) ReorderQueue(ctx context.Context, orderedIDs []int64) error {
	var changed bool
	err := s.mutate(ctx, func(tx *store.Tx) error {
		var err error
		changed, err = queue.Reorder(ctx, tx, orderedIDs)
		if errors.Is(err, queue.ErrQueueMismatch) {
			for _, id := range orderedIDs {
				if _, lookupErr := tx.GetTask(ctx, id); errors.Is(lookupErr, store.ErrNotFound) {
					return lookupErr
				}
			}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("reorder queue: %w", err)
	}
	if !changed {
		return nil
	}

	s.logger.Info("queue reordered",
		logging.Int("size", len(orderedIDs)),
		logging.String(logging.FieldEventType, "queue_reordered"),
	)
	s.publish(broadcast.NewMessage(broadcast.GroupQueue, 0, broadcast.EventReordered))
	return nil
}

// AdvanceStage returns the component's actionable stage, or nil when every
// stage is finished, the component has none, or an earlier stage blocks.
func (s *Service) AdvanceStage(ctx context.Context, componentID int64) (*store.Stage, error) {
	if _, err := s.store.GetComponent(ctx, componentID); err != nil {
		return nil, err
	}
	stages, err := s.store.StagesByComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}
	return stageplan.Resolve(stages), nil
}

// StartStage records the start of the component's actionable stage. A
// started but unfinished stage may be started again; the new date and
// machine replace the old ones.
func (s *Service) StartStage(ctx context.Context, stageID int64, machineID *int64, date time.Time) (*store.Stage, error) {
	var started *store.Stage
	err := s.mutate(ctx, func(tx *store.Tx) error {
		stage, err := tx.GetStage(ctx, stageID)
		if err != nil {
			return err
		}
		if stage.Complete() {
			return fmt.Errorf("stage %d: %w", stageID, ErrAlreadyFinished)
		}
		stages, err := tx.StagesByComponent(ctx, stage.ComponentID)
		if err != nil {
			return err
		}
		if actionable := stageplan.Resolve(stages); actionable == nil || actionable.ID != stage.ID {
			return fmt.Errorf("stage %d (number %d): %w", stageID, stage.StageNum, ErrStageBlocked)
		}
		if machineID != nil {
			ok, err := tx.Directory().HasMachine(ctx, *machineID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: machine %d does not exist", ErrValidation, *machineID)
			}
		}
		if err := tx.StartStage(ctx, stageID, machineID, s.effective(date)); err != nil {
			return err
		}
		started, err = tx.GetStage(ctx, stageID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("start stage %d: %w", stageID, err)
	}

	s.logger.Info("stage started",
		logging.Int64(logging.FieldStageID, stageID),
		logging.Int64(logging.FieldComponentID, started.ComponentID),
		logging.String(logging.FieldEventType, "stage_started"),
	)
	s.publish(broadcast.NewMessage(broadcast.GroupStagePlan, started.ComponentID, broadcast.EventStarted))
	return started, nil
}

// FinishStage records the finish date of a stage.
func (s *Service) FinishStage(ctx context.Context, stageID int64, date time.Time) (*store.Stage, error) {
	var (
		finished      *store.Stage
		componentDone bool
	)
	err := s.mutate(ctx, func(tx *store.Tx) error {
		stage, err := tx.GetStage(ctx, stageID)
		if err != nil {
			return err
		}
		if stage.Complete() {
			return fmt.Errorf("stage %d: %w", stageID, ErrAlreadyFinished)
		}
		if err := tx.FinishStage(ctx, stageID, s.effective(date)); err != nil {
			return err
		}
		if finished, err = tx.GetStage(ctx, stageID); err != nil {
			return err
		}
		stages, err := tx.StagesByComponent(ctx, stage.ComponentID)
		if err != nil {
			return err
		}
		componentDone = stageplan.IsComplete(stages)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finish stage %d: %w", stageID, err)
	}

	s.logger.Info("stage finished",
		logging.Int64(logging.FieldStageID, stageID),
		logging.Int64(logging.FieldComponentID, finished.ComponentID),
		logging.Bool("component_complete", componentDone),
		logging.String(logging.FieldEventType, "stage_finished"),
	)
	msgs := []broadcast.Message{broadcast.NewMessage(broadcast.GroupStagePlan, finished.ComponentID, broadcast.EventFinished)}
	if componentDone {
		msgs = append(msgs, broadcast.NewMessage(broadcast.GroupComponent, finished.ComponentID, broadcast.EventUpdated))
	}
	s.publish(msgs...)
	return finished, nil
}
