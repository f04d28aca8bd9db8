package store

import (
	"database/sql"
	"strings"
	"testing"
)

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r[i].(int64)
		case *int:
			*p = r[i].(int)
		case *string:
			*p = r[i].(string)
		case *sql.NullInt64:
			*p = r[i].(sql.NullInt64)
		case *sql.NullString:
			*p = r[i].(sql.NullString)
		}
	}
	return nil
}

func TestScanStageRejectsCorruptFinish(t *testing.T) {
	row := fakeRow{
		int64(4), int64(2), 1, int64(1),
		sql.NullInt64{},
		sql.NullString{String: "2026-04-14T08:00:00Z", Valid: true},
		sql.NullString{String: "yesterday", Valid: true},
	}
	stage, err := scanStage(row)
	if err == nil {
		t.Fatalf("expected parse error, got stage %+v", stage)
	}
	if !strings.Contains(err.Error(), "stage 4 finish") {
		t.Fatalf("error should name the column, got %v", err)
	}
}

func TestScanStageKeepsNullFinishOpen(t *testing.T) {
	row := fakeRow{
		int64(4), int64(2), 1, int64(1),
		sql.NullInt64{Int64: 3, Valid: true},
		sql.NullString{String: "2026-04-14T08:00:00Z", Valid: true},
		sql.NullString{},
	}
	stage, err := scanStage(row)
	if err != nil {
		t.Fatalf("scanStage: %v", err)
	}
	if stage.Finish != nil || stage.Start == nil || stage.Complete() {
		t.Fatalf("unexpected stage %+v", stage)
	}
}

func TestScanTaskRejectsCorruptCreated(t *testing.T) {
	row := fakeRow{
		int64(7), sql.NullInt64{}, sql.NullInt64{Int64: 3, Valid: true}, sql.NullInt64{},
		"new", sql.NullInt64{},
		sql.NullString{String: "2026-05-01T00:00:00Z", Valid: true},
		"not a time",
		sql.NullString{},
		"",
	}
	if _, err := scanTask(row); err == nil || !strings.Contains(err.Error(), "task 7 created") {
		t.Fatalf("expected created parse error, got %v", err)
	}
}
