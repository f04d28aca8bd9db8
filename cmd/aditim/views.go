package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
)

var nameCaser = cases.Title(language.Russian)

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func optionalPosition(pos *int) string {
	if pos == nil {
		return "-"
	}
	return strconv.Itoa(*pos)
}

// displayName title-cases a reference table name for terminal output.
func displayName(name string) string {
	return nameCaser.String(strings.TrimSpace(name))
}

func taskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			optionalPosition(task.Position),
			task.StatusLabel,
			dash(task.Deadline),
			dash(task.Description),
		})
	}
	return rows
}

func renderTasks(out io.Writer, tasks []api.Task, emptyMessage string) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, emptyMessage)
		return
	}
	fmt.Fprint(out, renderTable(
		[]string{"ID", "Pos", "Status", "Deadline", "Description"},
		taskRows(tasks),
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func stageState(stage api.Stage) string {
	switch {
	case stage.Finished:
		return "finished"
	case stage.Start != "":
		return "started"
	default:
		return "pending"
	}
}

func stageRows(stages []api.Stage, actionable *api.Stage) [][]string {
	rows := make([][]string, 0, len(stages))
	for _, stage := range stages {
		marker := ""
		if actionable != nil && actionable.ID == stage.ID {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			strconv.FormatInt(stage.ID, 10),
			strconv.Itoa(stage.StageNum),
			strconv.FormatInt(stage.WorkSubtypeID, 10),
			optionalID(stage.MachineID),
			stageState(stage),
			dash(stage.Start),
			dash(stage.Finish),
		})
	}
	return rows
}

func renderPlan(out io.Writer, plan api.ComponentPlan) {
	component := plan.Component
	fmt.Fprintf(out, "Component %d (qty %d, %d/%d stages finished)\n",
		component.ID, component.Quantity, plan.Finished, plan.Total)
	if component.Description != "" {
		fmt.Fprintf(out, "  %s\n", component.Description)
	}
	if len(plan.Stages) == 0 {
		fmt.Fprintln(out, "  No stages planned")
		return
	}
	fmt.Fprint(out, renderTable(
		[]string{"", "Stage ID", "#", "Work", "Machine", "State", "Start", "Finish"},
		stageRows(plan.Stages, plan.Actionable),
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func renderTaskDetail(out io.Writer, detail *api.TaskDetail) {
	task := detail.Task
	fmt.Fprintf(out, "Task %d\n", task.ID)
	fmt.Fprintf(out, "  Status:      %s\n", task.StatusLabel)
	fmt.Fprintf(out, "  Position:    %s\n", optionalPosition(task.Position))
	fmt.Fprintf(out, "  Product:     %s\n", optionalID(task.ProductID))
	fmt.Fprintf(out, "  Profile:     %s\n", optionalID(task.ProfileToolID))
	fmt.Fprintf(out, "  Department:  %s\n", optionalID(task.DepartmentID))
	fmt.Fprintf(out, "  Deadline:    %s\n", dash(task.Deadline))
	fmt.Fprintf(out, "  Created:     %s\n", dash(task.Created))
	fmt.Fprintf(out, "  Completed:   %s\n", dash(task.Completed))
	fmt.Fprintf(out, "  Description: %s\n", dash(task.Description))
	for _, plan := range detail.Components {
		fmt.Fprintln(out)
		renderPlan(out, plan)
	}
}

func describeStage(stage *api.Stage) string {
	if stage == nil {
		return "none"
	}
	return fmt.Sprintf("stage %d (id %d, %s)", stage.StageNum, stage.ID, stageState(*stage))
}
