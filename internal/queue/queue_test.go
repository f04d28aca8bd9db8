package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/formemu/aditim-monitor-sub000/internal/queue"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
	"github.com/formemu/aditim-monitor-sub000/internal/testsupport"
)

func enterQueue(t *testing.T, st *store.Store, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		err := st.WithTx(ctx, func(tx *store.Tx) error {
			if err := tx.SetTaskStatus(ctx, id, taskstatus.InProgress, nil); err != nil {
				return err
			}
			return queue.AppendOnEnter(ctx, tx, id)
		})
		if err != nil {
			t.Fatalf("enter queue %d: %v", id, err)
		}
	}
}

func queueIDs(t *testing.T, st *store.Store) []int64 {
	t.Helper()
	entries, err := st.QueueEntries(context.Background())
	if err != nil {
		t.Fatalf("QueueEntries: %v", err)
	}
	if !queue.IsDense(entries) {
		t.Fatalf("queue not dense: %+v", entries)
	}
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.TaskID
	}
	return ids
}

func assertIDs(t *testing.T, got, want []int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("queue %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue %v, want %v", got, want)
		}
	}
}

func newTasks(t *testing.T, st *store.Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = testsupport.NewTask(t, st).Task.ID
	}
	return ids
}

func TestAppendOnEnterUsesQueueLength(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ids := newTasks(t, st, 3)

	for i, id := range ids {
		enterQueue(t, st, id)
		task, err := st.GetTask(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Position == nil || *task.Position != i {
			t.Fatalf("task %d entered at %v, want %d", id, task.Position, i)
		}
	}
	assertIDs(t, queueIDs(t, st), ids)
}

func TestRemoveAndCompactKeepsRelativeOrder(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ids := newTasks(t, st, 4)
	enterQueue(t, st, ids...)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SetTaskStatus(ctx, ids[1], taskstatus.Done, nil); err != nil {
			return err
		}
		return queue.RemoveAndCompact(ctx, tx, ids[1])
	})
	if err != nil {
		t.Fatalf("RemoveAndCompact: %v", err)
	}
	assertIDs(t, queueIDs(t, st), []int64{ids[0], ids[2], ids[3]})

	removed, err := st.GetTask(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if removed.Position != nil {
		t.Fatalf("removed task kept position %d", *removed.Position)
	}
}

func TestReorder(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ids := newTasks(t, st, 3)
	enterQueue(t, st, ids...)
	ctx := context.Background()

	reorder := func(ids []int64) (bool, error) {
		var changed bool
		err := st.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			changed, err = queue.Reorder(ctx, tx, ids)
			return err
		})
		return changed, err
	}

	want := []int64{ids[2], ids[0], ids[1]}
	changed, err := reorder(want)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if !changed {
		t.Fatal("expected reorder to report a change")
	}
	assertIDs(t, queueIDs(t, st), want)

	changed, err = reorder(want)
	if err != nil {
		t.Fatalf("idempotent Reorder: %v", err)
	}
	if changed {
		t.Fatal("reordering to the current order must be a no-op")
	}
	assertIDs(t, queueIDs(t, st), want)
}

func TestReorderMismatchLeavesQueueUnchanged(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ids := newTasks(t, st, 4)
	enterQueue(t, st, ids[:3]...)
	ctx := context.Background()

	cases := map[string][]int64{
		"missing member": {ids[1], ids[0]},
		"extra member":   {ids[3], ids[2], ids[1], ids[0]},
		"foreign member": {ids[3], ids[1], ids[0]},
		"duplicate":      {ids[0], ids[0], ids[1]},
		"empty":          nil,
	}
	for name, proposed := range cases {
		t.Run(name, func(t *testing.T) {
			err := st.WithTx(ctx, func(tx *store.Tx) error {
				_, err := queue.Reorder(ctx, tx, proposed)
				return err
			})
			if !errors.Is(err, queue.ErrQueueMismatch) {
				t.Fatalf("expected ErrQueueMismatch, got %v", err)
			}
			assertIDs(t, queueIDs(t, st), ids[:3])
		})
	}
}

func TestRepackPlacesUnsetMembersLast(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ids := newTasks(t, st, 3)
	ctx := context.Background()

	// Status written without queue maintenance: ids[2] ends up unpositioned.
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range ids {
			if err := tx.SetTaskStatus(ctx, id, taskstatus.InProgress, nil); err != nil {
				return err
			}
		}
		return tx.SetPositions(ctx, []int64{ids[1], ids[0]})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	entries, err := st.QueueEntries(ctx)
	if err != nil {
		t.Fatalf("QueueEntries: %v", err)
	}
	report := queue.Inspect(entries)
	if report.Dense || len(report.Unset) != 1 || report.Unset[0] != ids[2] {
		t.Fatalf("unexpected report before repack: %+v", report)
	}

	var changed bool
	if err := st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		changed, err = queue.Repack(ctx, tx)
		return err
	}); err != nil {
		t.Fatalf("Repack: %v", err)
	}
	if !changed {
		t.Fatal("expected repack to report a change")
	}
	assertIDs(t, queueIDs(t, st), []int64{ids[1], ids[0], ids[2]})

	if err := st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		changed, err = queue.Repack(ctx, tx)
		return err
	}); err != nil {
		t.Fatalf("second Repack: %v", err)
	}
	if changed {
		t.Fatal("dense queue must not be rewritten")
	}
}

func TestInspect(t *testing.T) {
	pos := func(v int) *int { return &v }
	report := queue.Inspect([]store.QueueEntry{
		{TaskID: 1, Position: pos(0)},
		{TaskID: 2, Position: pos(2)},
		{TaskID: 3, Position: pos(2)},
	})
	if report.Dense {
		t.Fatal("expected non-dense report")
	}
	if len(report.Gaps) != 1 || report.Gaps[0] != 1 {
		t.Fatalf("unexpected gaps: %v", report.Gaps)
	}
	if len(report.Duplicates) != 1 || report.Duplicates[0] != 2 {
		t.Fatalf("unexpected duplicates: %v", report.Duplicates)
	}
	if !queue.IsDense(nil) {
		t.Fatal("empty queue is dense")
	}
}
