package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetComponent fetches a component by id.
func (r reader) GetComponent(ctx context.Context, id int64) (*Component, error) {
	row := r.q.QueryRowContext(ensureContext(ctx), "SELECT "+componentColumns+" FROM task_components WHERE id = ?", id)
	component, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("component %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get component: %w", err)
	}
	return component, nil
}

// ComponentsByTask lists the components of a task in creation order.
func (r reader) ComponentsByTask(ctx context.Context, taskID int64) ([]*Component, error) {
	rows, err := r.q.QueryContext(ensureContext(ctx),
		"SELECT "+componentColumns+" FROM task_components WHERE task_id = ? ORDER BY id", taskID)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	var components []*Component
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		components = append(components, component)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return components, nil
}

// GetStage fetches a stage by id.
func (r reader) GetStage(ctx context.Context, id int64) (*Stage, error) {
	row := r.q.QueryRowContext(ensureContext(ctx), "SELECT "+stageColumns+" FROM task_component_stages WHERE id = ?", id)
	stage, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return stage, nil
}

// StagesByComponent lists a component's stages ordered by stage number.
func (r reader) StagesByComponent(ctx context.Context, componentID int64) ([]Stage, error) {
	grouped, err := r.StagesByComponents(ctx, []int64{componentID})
	if err != nil {
		return nil, err
	}
	return grouped[componentID], nil
}

// StagesByComponents loads the stages of several components in one query,
// keyed by component id and ordered by stage number.
func (r reader) StagesByComponents(ctx context.Context, componentIDs []int64) (map[int64][]Stage, error) {
	out := make(map[int64][]Stage, len(componentIDs))
	if len(componentIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(componentIDs))
	for i, id := range componentIDs {
		args[i] = id
	}
	rows, err := r.q.QueryContext(ensureContext(ctx),
		"SELECT "+stageColumns+" FROM task_component_stages WHERE component_id IN ("+
			makePlaceholders(len(componentIDs))+") ORDER BY component_id, stage_num", args...)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out[stage.ComponentID] = append(out[stage.ComponentID], *stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return out, nil
}

// InsertComponent stores a component of an existing task.
func (tx *Tx) InsertComponent(ctx context.Context, component *Component) (int64, error) {
	if component == nil {
		return 0, errors.New("insert component: nil component")
	}
	if (component.ProfileToolComponentID == nil) == (component.ProductComponentID == nil) {
		return 0, errors.New("insert component: exactly one of profile tool component or product component is required")
	}
	quantity := component.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		`INSERT INTO task_components (task_id, profile_tool_component_id, product_component_id, quantity, description)
         VALUES (?, ?, ?, ?, ?)`,
		component.TaskID,
		nullableInt64(component.ProfileToolComponentID),
		nullableInt64(component.ProductComponentID),
		quantity,
		strings.TrimSpace(component.Description),
	)
	if err != nil {
		return 0, fmt.Errorf("insert component: %w", err)
	}
	return res.LastInsertId()
}

// InsertStage stores a stage with empty start and finish dates.
func (tx *Tx) InsertStage(ctx context.Context, stage *Stage) (int64, error) {
	if stage == nil {
		return 0, errors.New("insert stage: nil stage")
	}
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		`INSERT INTO task_component_stages (component_id, stage_num, work_subtype_id, machine_id)
         VALUES (?, ?, ?, ?)`,
		stage.ComponentID,
		stage.StageNum,
		stage.WorkSubtypeID,
		nullableInt64(stage.MachineID),
	)
	if err != nil {
		return 0, fmt.Errorf("insert stage: %w", err)
	}
	return res.LastInsertId()
}

// StartStage records the start date and machine of an unfinished stage.
func (tx *Tx) StartStage(ctx context.Context, id int64, machineID *int64, start time.Time) error {
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		"UPDATE task_component_stages SET start = ?, machine_id = COALESCE(?, machine_id) WHERE id = ? AND finish IS NULL",
		formatTime(start), nullableInt64(machineID), id,
	)
	if err != nil {
		return fmt.Errorf("start stage: %w", err)
	}
	return requireAffected(res, "stage", id)
}

// FinishStage records the finish date of an unfinished stage.
func (tx *Tx) FinishStage(ctx context.Context, id int64, finish time.Time) error {
	res, err := tx.tx.ExecContext(ensureContext(ctx),
		"UPDATE task_component_stages SET finish = ? WHERE id = ? AND finish IS NULL",
		formatTime(finish), id,
	)
	if err != nil {
		return fmt.Errorf("finish stage: %w", err)
	}
	return requireAffected(res, "stage", id)
}
