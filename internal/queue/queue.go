// Package queue keeps the in-progress task queue dense.
//
// The queue is not a table of its own: it is the set of in-progress tasks
// ordered by tasks.position. Every function that writes takes an open
// store.Tx so the caller decides the transaction boundary; after any of them
// returns nil the positions of the in-progress set are exactly 0..N-1.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// ErrQueueMismatch reports a reorder whose task set differs from the current queue.
var ErrQueueMismatch = errors.New("queue mismatch")

// Reorder assigns position = index for each id. ids must contain exactly the
// current in-progress set, each id once; otherwise ErrQueueMismatch is
// returned and nothing is written. Submitting the current order writes
// nothing and reports changed == false.
func Reorder(ctx context.Context, tx *store.Tx, ids []int64) (changed bool, err error) {
	entries, err := tx.QueueEntries(ctx)
	if err != nil {
		return false, err
	}
	current := make([]int64, len(entries))
	for i, entry := range entries {
		current[i] = entry.TaskID
	}
	if err := ValidateOrder(current, ids); err != nil {
		return false, err
	}
	if IsDense(entries) && sameOrder(current, ids) {
		return false, nil
	}
	if err := tx.SetPositions(ctx, ids); err != nil {
		return false, fmt.Errorf("reorder queue: %w", err)
	}
	return true, nil
}

func sameOrder(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AppendOnEnter places a task that has just entered the in-progress state at
// the end of the queue. The task's status must already be written in tx.
func AppendOnEnter(ctx context.Context, tx *store.Tx, id int64) error {
	ids, err := currentIDs(ctx, tx)
	if err != nil {
		return err
	}
	ordered := make([]int64, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			ordered = append(ordered, existing)
		}
	}
	ordered = append(ordered, id)
	if err := tx.SetPositions(ctx, ordered); err != nil {
		return fmt.Errorf("append to queue: %w", err)
	}
	return nil
}

// RemoveAndCompact clears the position of a task that has just left the
// in-progress state and renumbers the remaining members in one update,
// keeping their relative order.
func RemoveAndCompact(ctx context.Context, tx *store.Tx, id int64) error {
	if err := tx.ClearPosition(ctx, id); err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	ids, err := currentIDs(ctx, tx)
	if err != nil {
		return err
	}
	remaining := ids[:0]
	for _, existing := range ids {
		if existing != id {
			remaining = append(remaining, existing)
		}
	}
	if err := tx.SetPositions(ctx, remaining); err != nil {
		return fmt.Errorf("compact queue: %w", err)
	}
	return nil
}

// Repack re-derives dense positions from the stored order (position
// ascending, unset last, ties by id) and reports whether anything changed.
func Repack(ctx context.Context, tx *store.Tx) (bool, error) {
	entries, err := tx.QueueEntries(ctx)
	if err != nil {
		return false, err
	}
	if IsDense(entries) {
		return false, nil
	}
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.TaskID
	}
	if err := tx.SetPositions(ctx, ids); err != nil {
		return false, fmt.Errorf("repack queue: %w", err)
	}
	return true, nil
}

func currentIDs(ctx context.Context, tx *store.Tx) ([]int64, error) {
	entries, err := tx.QueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.TaskID
	}
	return ids, nil
}
