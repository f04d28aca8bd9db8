package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

type rowScanner interface{ Scan(dest ...any) error }

const taskColumns = "id, profile_tool_id, product_id, department_id, status, position, deadline, created, completed, description"

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task         Task
		profileTool  sql.NullInt64
		product      sql.NullInt64
		department   sql.NullInt64
		statusStr    string
		position     sql.NullInt64
		deadlineRaw  sql.NullString
		createdRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&profileTool,
		&product,
		&department,
		&statusStr,
		&position,
		&deadlineRaw,
		&createdRaw,
		&completedRaw,
		&task.Description,
	); err != nil {
		return nil, err
	}
	task.ProfileToolID = int64Ptr(profileTool)
	task.ProductID = int64Ptr(product)
	task.DepartmentID = int64Ptr(department)
	task.Status = taskstatus.Status(statusStr)
	if position.Valid {
		p := int(position.Int64)
		task.Position = &p
	}
	var err error
	if task.Deadline, err = timePtr(deadlineRaw); err != nil {
		return nil, fmt.Errorf("task %d deadline: %w", task.ID, err)
	}
	if task.Created, err = parseTimeString(createdRaw); err != nil {
		return nil, fmt.Errorf("task %d created: %w", task.ID, err)
	}
	if task.Completed, err = timePtr(completedRaw); err != nil {
		return nil, fmt.Errorf("task %d completed: %w", task.ID, err)
	}
	return &task, nil
}

const componentColumns = "id, task_id, profile_tool_component_id, product_component_id, quantity, description"

func scanComponent(scanner rowScanner) (*Component, error) {
	var (
		component   Component
		profileTool sql.NullInt64
		product     sql.NullInt64
	)
	if err := scanner.Scan(
		&component.ID,
		&component.TaskID,
		&profileTool,
		&product,
		&component.Quantity,
		&component.Description,
	); err != nil {
		return nil, err
	}
	component.ProfileToolComponentID = int64Ptr(profileTool)
	component.ProductComponentID = int64Ptr(product)
	return &component, nil
}

const stageColumns = "id, component_id, stage_num, work_subtype_id, machine_id, start, finish"

func scanStage(scanner rowScanner) (*Stage, error) {
	var (
		stage     Stage
		machine   sql.NullInt64
		startRaw  sql.NullString
		finishRaw sql.NullString
	)
	if err := scanner.Scan(
		&stage.ID,
		&stage.ComponentID,
		&stage.StageNum,
		&stage.WorkSubtypeID,
		&machine,
		&startRaw,
		&finishRaw,
	); err != nil {
		return nil, err
	}
	stage.MachineID = int64Ptr(machine)
	var err error
	if stage.Start, err = timePtr(startRaw); err != nil {
		return nil, fmt.Errorf("stage %d start: %w", stage.ID, err)
	}
	if stage.Finish, err = timePtr(finishRaw); err != nil {
		return nil, fmt.Errorf("stage %d finish: %w", stage.ID, err)
	}
	return &stage, nil
}

func int64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func timePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
	}
	return t, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
