package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/testsupport"
)

func newService(t *testing.T) *api.Service {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return api.NewService(scheduler.New(st, nil, nil))
}

func ptr[T any](v T) *T { return &v }

func createRequest(stageNums ...int) api.CreateTaskRequest {
	stages := make([]api.CreateStageRequest, 0, len(stageNums))
	for _, n := range stageNums {
		stages = append(stages, api.CreateStageRequest{StageNum: n, WorkSubtypeID: 1})
	}
	return api.CreateTaskRequest{
		ProductID:   ptr(int64(3)),
		Deadline:    "2026-05-01",
		Description: "  крышка  ",
		Components: []api.CreateComponentRequest{{
			ProductComponentID: ptr(int64(7)),
			Quantity:           2,
			Stages:             stages,
		}},
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	detail, err := svc.CreateTask(ctx, createRequest(1, 2))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if detail.Task.Status != "new" || detail.Task.StatusLabel == "" {
		t.Fatalf("unexpected status %+v", detail.Task)
	}
	if detail.Task.Description != "крышка" {
		t.Fatalf("expected trimmed description, got %q", detail.Task.Description)
	}
	if detail.Task.Deadline == "" || detail.Task.Created == "" {
		t.Fatalf("expected formatted dates, got %+v", detail.Task)
	}
	if len(detail.Components) != 1 || len(detail.Components[0].Stages) != 2 {
		t.Fatalf("unexpected components %+v", detail.Components)
	}
	plan := detail.Components[0]
	if plan.Actionable == nil || plan.Actionable.StageNum != 1 {
		t.Fatalf("expected stage 1 actionable, got %+v", plan.Actionable)
	}

	task, err := svc.ChangeStatus(ctx, detail.Task.ID, api.StatusChangeRequest{Status: "В работе"})
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if task.Position == nil || *task.Position != 0 {
		t.Fatalf("expected queue position 0, got %v", task.Position)
	}

	queued, err := svc.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != detail.Task.ID {
		t.Fatalf("unexpected queue %+v", queued)
	}

	first := plan.Stages[0]
	if _, err := svc.StartStage(ctx, first.ID, api.StartStageRequest{MachineID: ptr(int64(1))}); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	finished, err := svc.FinishStage(ctx, first.ID, api.FinishStageRequest{Date: "2026-04-20T10:00:00Z"})
	if err != nil {
		t.Fatalf("FinishStage: %v", err)
	}
	if !finished.Finished || finished.Finish == "" {
		t.Fatalf("expected finished stage, got %+v", finished)
	}

	next, err := svc.NextStage(ctx, plan.Component.ID)
	if err != nil {
		t.Fatalf("NextStage: %v", err)
	}
	if next == nil || next.StageNum != 2 {
		t.Fatalf("expected stage 2 next, got %+v", next)
	}

	done, err := svc.ChangeStatus(ctx, detail.Task.ID, api.StatusChangeRequest{Status: "done", Date: "2026-04-21"})
	if err != nil {
		t.Fatalf("ChangeStatus done: %v", err)
	}
	if done.Position != nil || done.Completed == "" {
		t.Fatalf("expected completed task outside the queue, got %+v", done)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Counts["done"] != 1 || stats.Counts["new"] != 0 || stats.Total != 1 || !stats.Dense {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestServiceValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.ChangeStatus(ctx, 1, api.StatusChangeRequest{Status: "paused"}); api.ErrorCode(err) != api.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ListTasks(ctx, []string{"new,bogus"}); api.ErrorCode(err) != api.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Directory(ctx, "planets"); api.ErrorCode(err) != api.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	req := createRequest(1)
	req.Deadline = "tomorrow"
	if _, err := svc.CreateTask(ctx, req); !errors.Is(err, scheduler.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateTask(ctx, 1, api.UpdateTaskRequest{Deadline: "2026-05-01", ClearDeadline: true}); !errors.Is(err, scheduler.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.GetTask(ctx, 404); api.ErrorCode(err) != api.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceListTasksFilter(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.CreateTask(ctx, createRequest(1))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.CreateTask(ctx, createRequest(1)); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, a.Task.ID, api.StatusChangeRequest{Status: "in-progress"}); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}

	all, err := svc.ListTasks(ctx, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d (%v)", len(all), err)
	}
	active, err := svc.ListTasks(ctx, []string{"in_progress"})
	if err != nil || len(active) != 1 || active[0].ID != a.Task.ID {
		t.Fatalf("unexpected filtered tasks %+v (%v)", active, err)
	}
}

func TestServiceDirectory(t *testing.T) {
	svc := newService(t)
	machines, err := svc.Directory(context.Background(), "machines")
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if len(machines) == 0 {
		t.Fatalf("expected seeded machines")
	}
	for _, m := range machines {
		if m.Group == "" {
			t.Fatalf("expected machine %d to carry its department", m.ID)
		}
	}
}

func TestNilServiceFails(t *testing.T) {
	var svc *api.Service
	if _, err := svc.Stats(context.Background()); err == nil {
		t.Fatalf("expected error from nil service")
	}
}

func TestCalendarDatesSurviveLocalZone(t *testing.T) {
	saved := time.Local
	time.Local = time.FixedZone("MSK", 3*60*60)
	t.Cleanup(func() { time.Local = saved })

	svc := newService(t)
	ctx := context.Background()

	detail, err := svc.CreateTask(ctx, createRequest(1))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if detail.Task.Deadline != "2026-05-01" {
		t.Fatalf("deadline = %q, want 2026-05-01", detail.Task.Deadline)
	}
	id := detail.Task.ID
	if _, err := svc.ChangeStatus(ctx, id, api.StatusChangeRequest{Status: "in_progress"}); err != nil {
		t.Fatalf("ChangeStatus in_progress: %v", err)
	}
	done, err := svc.ChangeStatus(ctx, id, api.StatusChangeRequest{Status: "done", Date: "2026-10-18"})
	if err != nil {
		t.Fatalf("ChangeStatus done: %v", err)
	}
	if done.Completed != "2026-10-18" || done.Deadline != "2026-05-01" {
		t.Fatalf("unexpected dates deadline=%q completed=%q", done.Deadline, done.Completed)
	}

	updated, err := svc.UpdateTask(ctx, id, api.UpdateTaskRequest{Deadline: "2026-06-01T23:30:00+03:00"})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Deadline != "2026-06-01" {
		t.Fatalf("deadline from timestamp = %q, want 2026-06-01", updated.Deadline)
	}
}

func TestParseDate(t *testing.T) {
	got, err := api.ParseDate("2026-04-14")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !got.Equal(time.Date(2026, time.April, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
	got, err = api.ParseDate("2026-04-14T08:30:00+03:00")
	if err != nil {
		t.Fatalf("ParseDate RFC3339: %v", err)
	}
	if got.UTC().Hour() != 5 {
		t.Fatalf("unexpected hour %v", got.UTC())
	}
	if got, err := api.ParseDate(" "); err != nil || !got.IsZero() {
		t.Fatalf("expected zero time for blank input, got %v (%v)", got, err)
	}
	if _, err := api.ParseDate("14.04.2026"); !errors.Is(err, scheduler.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
