package main

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
)

func startTasks(t *testing.T, env *cliTestEnv, descriptions ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(descriptions))
	for _, description := range descriptions {
		detail := mustCreateTask(t, env, description)
		if _, _, err := runCLI(t, []string{"task", "status", itoa(detail.Task.ID), "in_progress"}, env.socketPath, env.configPath); err != nil {
			t.Fatalf("start task %d: %v", detail.Task.ID, err)
		}
		ids = append(ids, detail.Task.ID)
	}
	return ids
}

func queueIDs(t *testing.T, env *cliTestEnv) []int64 {
	t.Helper()
	out, _, err := runCLI(t, []string{"--json", "queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var tasks []api.Task
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	ids := make([]int64, len(tasks))
	for i, task := range tasks {
		if task.Position == nil || *task.Position != i {
			t.Fatalf("task %d at index %d has position %v", task.ID, i, task.Position)
		}
		ids[i] = task.ID
	}
	return ids
}

func TestQueueReorder(t *testing.T) {
	env := setupCLITestEnv(t)
	ids := startTasks(t, env, "Первая", "Вторая", "Третья")

	out, _, err := runCLI(t, []string{"queue", "reorder", itoa(ids[2]), itoa(ids[0]) + "," + itoa(ids[1])}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue reorder: %v", err)
	}
	requireContains(t, out, "Queue reordered")

	got := queueIDs(t, env)
	want := []int64{ids[2], ids[0], ids[1]}
	if len(got) != len(want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue = %v, want %v", got, want)
		}
	}
}

func TestQueueReorderRejectsPartialList(t *testing.T) {
	env := setupCLITestEnv(t)
	ids := startTasks(t, env, "Первая", "Вторая")

	_, _, err := runCLI(t, []string{"queue", "reorder", itoa(ids[1])}, env.socketPath, env.configPath)
	if api.ErrorCode(err) != api.CodeQueueMismatch {
		t.Fatalf("expected queue mismatch, got %v", err)
	}
	got := queueIDs(t, env)
	if len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
		t.Fatalf("queue changed after rejected reorder: %v", got)
	}
}

func TestQueueCheck(t *testing.T) {
	env := setupCLITestEnv(t)
	startTasks(t, env, "Первая")

	out, _, err := runCLI(t, []string{"queue", "check"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue check: %v", err)
	}
	requireContains(t, out, "[OK] yes")

	out, _, err = runCLI(t, []string{"--json", "queue", "check", "--repair"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue check --repair: %v", err)
	}
	var check api.QueueCheck
	if err := json.Unmarshal([]byte(out), &check); err != nil {
		t.Fatalf("decode check: %v", err)
	}
	if check.Size != 1 || !check.Dense {
		t.Fatalf("unexpected check %+v", check)
	}
}

func TestDirectoryTitleCasesNames(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"directory", "machines"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("directory machines: %v", err)
	}
	requireContains(t, out, "Электроэрозионный Станок 1")

	out, _, err = runCLI(t, []string{"--json", "directory", "work-subtypes"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("directory work-subtypes: %v", err)
	}
	var entries []api.DirectoryEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) == 0 || entries[0].Group == "" {
		t.Fatalf("expected grouped work subtypes, got %+v", entries)
	}

	_, _, err = runCLI(t, []string{"directory", "spaceships"}, env.socketPath, env.configPath)
	if api.ErrorCode(err) != api.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
