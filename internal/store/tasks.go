package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

// GetTask fetches a task by id.
func (r reader) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := r.q.QueryRowContext(ensureContext(ctx), "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks ordered by id, optionally restricted to the given statuses.
func (r reader) ListTasks(ctx context.Context, statuses ...taskstatus.Status) ([]*Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY id"
	return r.queryTasks(ctx, "list tasks", query, args...)
}

// ListInProgress returns the queue: in-progress tasks in position order.
func (r reader) ListInProgress(ctx context.Context) ([]*Task, error) {
	return r.queryTasks(ctx, "list in-progress tasks",
		"SELECT "+taskColumns+" FROM tasks WHERE status = ? ORDER BY position IS NULL, position, id",
		string(taskstatus.InProgress),
	)
}

func (r reader) queryTasks(ctx context.Context, op, query string, args ...any) ([]*Task, error) {
	rows, err := r.q.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tasks, nil
}

// QueueEntries returns the raw positions of every in-progress task, in the
// order Repack would assign: position ascending, unset positions last, ties by id.
func (r reader) QueueEntries(ctx context.Context) ([]QueueEntry, error) {
	rows, err := r.q.QueryContext(ensureContext(ctx),
		"SELECT id, position FROM tasks WHERE status = ? ORDER BY position IS NULL, position, id",
		string(taskstatus.InProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var (
			entry    QueueEntry
			position sql.NullInt64
		)
		if err := rows.Scan(&entry.TaskID, &position); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		if position.Valid {
			p := int(position.Int64)
			entry.Position = &p
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return entries, nil
}

// CountByStatus returns task counts per status. Statuses with no tasks report zero.
func (r reader) CountByStatus(ctx context.Context) (StatusCounts, error) {
	rows, err := r.q.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(StatusCounts, 4)
	for _, status := range taskstatus.All() {
		counts[status] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[taskstatus.Status(status)] = n
	}
	return counts, rows.Err()
}

// InsertTask stores a new task and returns its id. Status defaults to New
// and Created to the current time.
func (tx *Tx) InsertTask(ctx context.Context, task *Task) (int64, error) {
	if task == nil {
		return 0, errors.New("insert task: nil task")
	}
	if (task.ProfileToolID == nil) == (task.ProductID == nil) {
		return 0, errors.New("insert task: exactly one of profile tool or product is required")
	}
	status := task.Status
	if status == "" {
		status = taskstatus.New
	}
	created := task.Created
	if created.IsZero() {
		created = time.Now()
	}
	var position any
	if task.Position != nil {
		position = *task.Position
	}
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		`INSERT INTO tasks (profile_tool_id, product_id, department_id, status, position, deadline, created, completed, description)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt64(task.ProfileToolID),
		nullableInt64(task.ProductID),
		nullableInt64(task.DepartmentID),
		string(status),
		position,
		nullableTime(task.Deadline),
		formatTime(created),
		nullableTime(task.Completed),
		strings.TrimSpace(task.Description),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

// SetTaskStatus records a status change and, for terminal statuses, the completion date.
// Queue positions are not touched; see SetPositions and ClearPosition.
func (tx *Tx) SetTaskStatus(ctx context.Context, id int64, status taskstatus.Status, completed *time.Time) error {
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		"UPDATE tasks SET status = ?, completed = ? WHERE id = ?",
		string(status), nullableTime(completed), id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireAffected(res, "task", id)
}

// UpdateTaskDetails replaces the descriptive fields of a task.
func (tx *Tx) UpdateTaskDetails(ctx context.Context, id int64, description string, deadline *time.Time) error {
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		"UPDATE tasks SET description = ?, deadline = ? WHERE id = ?",
		strings.TrimSpace(description), nullableTime(deadline), id,
	)
	if err != nil {
		return fmt.Errorf("update task details: %w", err)
	}
	return requireAffected(res, "task", id)
}

// DeleteTask removes a task with its components and stages.
func (tx *Tx) DeleteTask(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	if _, err := tx.tx.ExecContext(ctx,
		`DELETE FROM task_component_stages
         WHERE component_id IN (SELECT id FROM task_components WHERE task_id = ?)`, id); err != nil {
		return fmt.Errorf("delete task stages: %w", err)
	}
	if _, err := tx.tx.ExecContext(ctx, "DELETE FROM task_components WHERE task_id = ?", id); err != nil {
		return fmt.Errorf("delete task components: %w", err)
	}
	res, err := tx.tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res, "task", id)
}

// SetPositions assigns position = index to each task in ids with a single
// UPDATE statement. Tasks not listed keep their current position.
func (tx *Tx) SetPositions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("UPDATE tasks SET position = CASE id")
	args := make([]any, 0, len(ids)*3)
	for i, id := range ids {
		sb.WriteString(" WHEN ? THEN ?")
		args = append(args, id, i)
	}
	sb.WriteString(" END WHERE id IN (")
	sb.WriteString(makePlaceholders(len(ids)))
	sb.WriteString(")")
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.tx.ExecContext(ensureContext(ctx), sb.String(), args...)
	if err != nil {
		return fmt.Errorf("assign queue positions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign queue positions: %w", err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("assign queue positions: updated %d of %d tasks: %w", affected, len(ids), ErrNotFound)
	}
	return nil
}

// ClearPosition removes the queue position from a task.
func (tx *Tx) ClearPosition(ctx context.Context, id int64) error {
	res, err := tx.tx.ExecContext(ensureContext(ctx), "UPDATE tasks SET position = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear queue position: %w", err)
	}
	return requireAffected(res, "task", id)
}

func requireAffected(res sql.Result, kind string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", kind, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
