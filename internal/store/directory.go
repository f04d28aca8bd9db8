package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DirectoryKind names one reference table.
type DirectoryKind string

const (
	KindDepartments  DirectoryKind = "departments"
	KindMachines     DirectoryKind = "machines"
	KindWorkSubtypes DirectoryKind = "work-subtypes"
)

// ErrUnknownDirectory reports an unsupported directory kind.
var ErrUnknownDirectory = errors.New("unknown directory kind")

// DirectoryKinds lists the supported kinds.
func DirectoryKinds() []DirectoryKind {
	return []DirectoryKind{KindDepartments, KindMachines, KindWorkSubtypes}
}

// ParseDirectoryKind maps a URL or CLI argument to a DirectoryKind.
func ParseDirectoryKind(value string) (DirectoryKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "departments", "department":
		return KindDepartments, nil
	case "machines", "machine":
		return KindMachines, nil
	case "work-subtypes", "work-subtype", "subtypes":
		return KindWorkSubtypes, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirectory, value)
}

// Department is a shop-floor department.
type Department struct {
	ID   int64
	Name string
}

// Machine is a piece of equipment a stage can be assigned to.
type Machine struct {
	ID           int64
	Name         string
	DepartmentID *int64
}

// WorkSubtype is the kind of operation a stage performs.
type WorkSubtype struct {
	ID       int64
	WorkType string
	Name     string
}

// Directory provides typed read-only access to reference data.
type Directory struct {
	q querier
}

// Directory returns the reference data accessor.
func (r reader) Directory() Directory {
	return Directory{q: r.q}
}

// Departments lists departments by name.
func (d Directory) Departments(ctx context.Context) ([]Department, error) {
	rows, err := d.q.QueryContext(ensureContext(ctx), "SELECT id, name FROM departments ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var dep Department
		if err := rows.Scan(&dep.ID, &dep.Name); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

// Machines lists machines by name.
func (d Directory) Machines(ctx context.Context) ([]Machine, error) {
	rows, err := d.q.QueryContext(ensureContext(ctx), "SELECT id, name, department_id FROM machines ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var out []Machine
	for rows.Next() {
		var (
			machine    Machine
			department sql.NullInt64
		)
		if err := rows.Scan(&machine.ID, &machine.Name, &department); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		machine.DepartmentID = int64Ptr(department)
		out = append(out, machine)
	}
	return out, rows.Err()
}

// WorkSubtypes lists work subtypes grouped by work type.
func (d Directory) WorkSubtypes(ctx context.Context) ([]WorkSubtype, error) {
	rows, err := d.q.QueryContext(ensureContext(ctx), "SELECT id, work_type, name FROM work_subtypes ORDER BY work_type, name")
	if err != nil {
		return nil, fmt.Errorf("list work subtypes: %w", err)
	}
	defer rows.Close()

	var out []WorkSubtype
	for rows.Next() {
		var subtype WorkSubtype
		if err := rows.Scan(&subtype.ID, &subtype.WorkType, &subtype.Name); err != nil {
			return nil, fmt.Errorf("scan work subtype: %w", err)
		}
		out = append(out, subtype)
	}
	return out, rows.Err()
}

// HasMachine reports whether a machine id exists.
func (d Directory) HasMachine(ctx context.Context, id int64) (bool, error) {
	return d.exists(ctx, "machines", id)
}

// HasWorkSubtype reports whether a work subtype id exists.
func (d Directory) HasWorkSubtype(ctx context.Context, id int64) (bool, error) {
	return d.exists(ctx, "work_subtypes", id)
}

// HasDepartment reports whether a department id exists.
func (d Directory) HasDepartment(ctx context.Context, id int64) (bool, error) {
	return d.exists(ctx, "departments", id)
}

func (d Directory) exists(ctx context.Context, table string, id int64) (bool, error) {
	var count int
	if err := d.q.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM "+table+" WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return count > 0, nil
}
