package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Fixture is a task created directly in the store with one component.
type Fixture struct {
	Task      *store.Task
	Component *store.Component
	Stages    []store.Stage
}

// NewTask inserts a New product task with a single component whose stages
// carry the given stage numbers. It bypasses the scheduler and performs no
// plan validation.
func NewTask(t testing.TB, st *store.Store, stageNums ...int) Fixture {
	t.Helper()

	ctx := context.Background()
	product := int64(1)
	productComponent := int64(1)
	var fixture Fixture
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		taskID, err := tx.InsertTask(ctx, &store.Task{ProductID: &product, Description: "fixture"})
		if err != nil {
			return err
		}
		componentID, err := tx.InsertComponent(ctx, &store.Component{TaskID: taskID, ProductComponentID: &productComponent})
		if err != nil {
			return err
		}
		for _, num := range stageNums {
			if _, err := tx.InsertStage(ctx, &store.Stage{ComponentID: componentID, StageNum: num, WorkSubtypeID: 1}); err != nil {
				return err
			}
		}
		if fixture.Task, err = tx.GetTask(ctx, taskID); err != nil {
			return err
		}
		if fixture.Component, err = tx.GetComponent(ctx, componentID); err != nil {
			return err
		}
		fixture.Stages, err = tx.StagesByComponent(ctx, componentID)
		return err
	})
	if err != nil {
		t.Fatalf("create fixture task: %v", err)
	}
	return fixture
}

// MustFinishStage marks a stage finished directly in the store.
func MustFinishStage(t testing.TB, st *store.Store, stage store.Stage) {
	t.Helper()

	ctx := context.Background()
	if err := st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.FinishStage(ctx, stage.ID, time.Now())
	}); err != nil {
		t.Fatalf("finish stage %d: %v", stage.ID, err)
	}
}
