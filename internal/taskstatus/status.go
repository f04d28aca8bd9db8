// Package taskstatus defines the task lifecycle and the queue side effect
// attached to every legal status edge.
package taskstatus

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a work-order task.
type Status string

const (
	New        Status = "new"
	InProgress Status = "in_progress"
	Done       Status = "done"
	Cancelled  Status = "cancelled"
)

// ErrInvalidTransition reports a status edge that the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUnknownStatus reports a status value outside the lifecycle.
var ErrUnknownStatus = errors.New("unknown status")

var allStatuses = []Status{New, InProgress, Done, Cancelled}

var labels = map[Status]string{
	New:        "Новая",
	InProgress: "В работе",
	Done:       "Выполнена",
	Cancelled:  "Отменена",
}

var edges = map[Status][]Status{
	New:        {InProgress, Cancelled},
	InProgress: {Done, Cancelled},
}

// All returns every status in lifecycle order.
func All() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Parse accepts either the wire key (in_progress) or the operator label (В работе).
func Parse(value string) (Status, error) {
	trimmed := strings.TrimSpace(value)
	key := strings.ToLower(strings.ReplaceAll(trimmed, "-", "_"))
	for _, status := range allStatuses {
		if key == string(status) || trimmed == labels[status] {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
}

// Valid reports whether s is part of the lifecycle.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Label returns the operator-facing name.
func (s Status) Label() string {
	if label, ok := labels[s]; ok {
		return label
	}
	return string(s)
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return s == Done || s == Cancelled
}

// Next lists the statuses reachable from s in one step.
func (s Status) Next() []Status {
	next := edges[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanEnter reports whether next is a legal edge from s.
func (s Status) CanEnter(next Status) bool {
	for _, candidate := range edges[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Effect is the queue membership change a transition requires.
type Effect int

const (
	EffectNone Effect = iota
	EffectJoinQueue
	EffectLeaveQueue
)

func (e Effect) String() string {
	switch e {
	case EffectJoinQueue:
		return "join_queue"
	case EffectLeaveQueue:
		return "leave_queue"
	default:
		return "none"
	}
}

// Transition describes an accepted status change. Completed is set only
// when the target status is terminal.
type Transition struct {
	From      Status
	To        Status
	Effect    Effect
	Completed *time.Time
}

// CalendarDay returns midnight UTC of the calendar date t shows in its own
// location. Deadlines and completion dates are stored this way so they read
// back as the same date in every zone.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Enter validates the edge from current to next and returns the queue effect
// the caller must apply in the same transaction as the status write.
// Requesting the current status is rejected.
func Enter(current, next Status, effective time.Time) (Transition, error) {
	if !next.Valid() {
		return Transition{}, fmt.Errorf("%w: %q", ErrUnknownStatus, next)
	}
	if !current.CanEnter(next) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	tr := Transition{From: current, To: next}
	switch {
	case next == InProgress:
		tr.Effect = EffectJoinQueue
	case current == InProgress:
		tr.Effect = EffectLeaveQueue
	}
	if next.Terminal() {
		if effective.IsZero() {
			effective = time.Now()
		}
		completed := CalendarDay(effective)
		tr.Completed = &completed
	}
	return tr, nil
}
