package scheduler

import (
	"errors"

	"github.com/formemu/aditim-monitor-sub000/internal/queue"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

var (
	// ErrInvalidTransition reports a status edge the lifecycle forbids.
	ErrInvalidTransition = taskstatus.ErrInvalidTransition
	// ErrQueueMismatch reports a reorder built from a stale view of the queue.
	ErrQueueMismatch = queue.ErrQueueMismatch
	// ErrNotFound reports a missing task, component, or stage.
	ErrNotFound = store.ErrNotFound
	// ErrAlreadyFinished reports a second start or finish of a finished stage.
	ErrAlreadyFinished = errors.New("stage already finished")
	// ErrStageBlocked reports a start on a stage that is not the component's actionable stage.
	ErrStageBlocked = errors.New("stage blocked")
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation failed")
)
