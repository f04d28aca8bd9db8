package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
	"github.com/formemu/aditim-monitor-sub000/internal/testsupport"
)

func TestOpenCreatesSchemaAndSeeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	version, err := st.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 1 {
		t.Fatalf("unexpected schema version %d", version)
	}

	dir := st.Directory()
	departments, err := dir.Departments(ctx)
	if err != nil || len(departments) == 0 {
		t.Fatalf("expected seeded departments, got %v (err=%v)", departments, err)
	}
	machines, err := dir.Machines(ctx)
	if err != nil || len(machines) == 0 {
		t.Fatalf("expected seeded machines, got %v (err=%v)", machines, err)
	}
	subtypes, err := dir.WorkSubtypes(ctx)
	if err != nil || len(subtypes) == 0 {
		t.Fatalf("expected seeded work subtypes, got %v (err=%v)", subtypes, err)
	}
	ok, err := dir.HasWorkSubtype(ctx, subtypes[0].ID)
	if err != nil || !ok {
		t.Fatalf("HasWorkSubtype(%d) = %v, %v", subtypes[0].ID, ok, err)
	}
	if ok, _ := dir.HasMachine(ctx, 9999); ok {
		t.Fatal("unexpected machine 9999")
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fixture := testsupport.NewTask(t, st, 1, 2)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	task, err := reopened.GetTask(context.Background(), fixture.Task.ID)
	if err != nil {
		t.Fatalf("GetTask after reopen: %v", err)
	}
	if task.Status != taskstatus.New || task.Description != "fixture" {
		t.Fatalf("unexpected task after reopen: %#v", task)
	}
}

func TestGetMissingRowsReturnNotFound(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := st.GetTask(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetTask: expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetComponent(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetComponent: expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetStage(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetStage: expected ErrNotFound, got %v", err)
	}
}

func TestInsertTaskRequiresExactlyOneReference(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	one := int64(1)

	err := st.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertTask(ctx, &store.Task{})
		return err
	})
	if err == nil {
		t.Fatal("expected error without tool or product")
	}
	err = st.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertTask(ctx, &store.Task{ProfileToolID: &one, ProductID: &one})
		return err
	})
	if err == nil {
		t.Fatal("expected error with both tool and product")
	}
}

func TestStagesOrderedByStageNum(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	fixture := testsupport.NewTask(t, st, 30, 10, 20)

	stages, err := st.StagesByComponent(context.Background(), fixture.Component.ID)
	if err != nil {
		t.Fatalf("StagesByComponent: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	for i, want := range []int{10, 20, 30} {
		if stages[i].StageNum != want {
			t.Fatalf("stage %d has num %d, want %d", i, stages[i].StageNum, want)
		}
		if stages[i].Started() || stages[i].Complete() {
			t.Fatalf("new stage must have empty dates: %#v", stages[i])
		}
	}
}

func TestDuplicateStageNumRejectedByStore(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	fixture := testsupport.NewTask(t, st, 1)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertStage(ctx, &store.Stage{ComponentID: fixture.Component.ID, StageNum: 1, WorkSubtypeID: 1})
		return err
	})
	if err == nil {
		t.Fatal("expected unique constraint failure for duplicate stage_num")
	}
}

func TestFinishStageTwiceReportsNotFound(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	fixture := testsupport.NewTask(t, st, 1)
	ctx := context.Background()
	stage := fixture.Stages[0]

	testsupport.MustFinishStage(t, st, stage)
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.FinishStage(ctx, stage.ID, time.Now())
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when no unfinished row matches, got %v", err)
	}
	err = st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.StartStage(ctx, stage.ID, nil, time.Now())
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected start of finished stage to match no row, got %v", err)
	}
}

func TestStartStageKeepsMachineWhenNil(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	fixture := testsupport.NewTask(t, st, 1)
	ctx := context.Background()
	machine := int64(2)
	stageID := fixture.Stages[0].ID

	first := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	if err := st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.StartStage(ctx, stageID, &machine, first); err != nil {
			return err
		}
		return tx.StartStage(ctx, stageID, nil, second)
	}); err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	stage, err := st.GetStage(ctx, stageID)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if stage.MachineID == nil || *stage.MachineID != machine {
		t.Fatalf("expected machine %d kept, got %v", machine, stage.MachineID)
	}
	if stage.Start == nil || !stage.Start.Equal(second) {
		t.Fatalf("expected restart to overwrite start, got %v", stage.Start)
	}
}

func TestSetPositionsAndQueueEntries(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a := testsupport.NewTask(t, st).Task
	b := testsupport.NewTask(t, st).Task
	c := testsupport.NewTask(t, st).Task

	err := st.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range []int64{a.ID, b.ID, c.ID} {
			if err := tx.SetTaskStatus(ctx, id, taskstatus.InProgress, nil); err != nil {
				return err
			}
		}
		return tx.SetPositions(ctx, []int64{c.ID, a.ID, b.ID})
	})
	if err != nil {
		t.Fatalf("set positions: %v", err)
	}

	queue, err := st.ListInProgress(ctx)
	if err != nil {
		t.Fatalf("ListInProgress: %v", err)
	}
	got := []int64{queue[0].ID, queue[1].ID, queue[2].ID}
	want := []int64{c.ID, a.ID, b.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue order %v, want %v", got, want)
		}
		if queue[i].Position == nil || *queue[i].Position != i {
			t.Fatalf("task %d position %v, want %d", queue[i].ID, queue[i].Position, i)
		}
	}

	err = st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetPositions(ctx, []int64{a.ID, 9999})
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	entries, err := st.QueueEntries(ctx)
	if err != nil {
		t.Fatalf("QueueEntries: %v", err)
	}
	if entries[0].TaskID != c.ID {
		t.Fatalf("failed batch must roll back, got first entry %d", entries[0].TaskID)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	fixture := testsupport.NewTask(t, st, 1, 2)
	ctx := context.Background()

	if err := st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteTask(ctx, fixture.Task.ID)
	}); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := st.GetComponent(ctx, fixture.Component.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("component survived delete: %v", err)
	}
	if _, err := st.GetStage(ctx, fixture.Stages[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("stage survived delete: %v", err)
	}
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteTask(ctx, fixture.Task.ID)
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	fixture := testsupport.NewTask(t, st, 1)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SetTaskStatus(ctx, fixture.Task.ID, taskstatus.Cancelled, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	task, err := st.GetTask(ctx, fixture.Task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != taskstatus.New {
		t.Fatalf("status leaked from rolled back tx: %s", task.Status)
	}
}

func TestCountByStatus(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.NewTask(t, st)
	testsupport.NewTask(t, st)

	counts, err := st.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[taskstatus.New] != 2 || counts[taskstatus.Done] != 0 || counts.Total() != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestParseDirectoryKind(t *testing.T) {
	cases := map[string]store.DirectoryKind{
		"departments":   store.KindDepartments,
		"Machines":      store.KindMachines,
		"work_subtypes": store.KindWorkSubtypes,
		"work-subtypes": store.KindWorkSubtypes,
	}
	for input, want := range cases {
		got, err := store.ParseDirectoryKind(input)
		if err != nil || got != want {
			t.Fatalf("ParseDirectoryKind(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := store.ParseDirectoryKind("products"); !errors.Is(err, store.ErrUnknownDirectory) {
		t.Fatalf("expected ErrUnknownDirectory, got %v", err)
	}
}
