package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage workshop tasks",
	}
	taskCmd.AddCommand(newTaskCreateCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskStatusCommand(ctx))
	taskCmd.AddCommand(newTaskUpdateCommand(ctx))
	taskCmd.AddCommand(newTaskDeleteCommand(ctx))
	return taskCmd
}

type taskCreateFlags struct {
	file                   string
	productID              int64
	profileToolID          int64
	departmentID           int64
	deadline               string
	description            string
	productComponentID     int64
	profileToolComponentID int64
	quantity               int
	stages                 []string
}

func newTaskCreateCommand(ctx *commandContext) *cobra.Command {
	var flags taskCreateFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task with one component, or from a JSON file",
		Long: "Create a task. Either pass --file with a JSON request describing every\n" +
			"component, or describe a single component with --stage flags in the\n" +
			"form NUM:WORK_SUBTYPE[:MACHINE].",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCreateRequest(flags, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withCommands(func(c api.Commands) error {
				detail, err := c.CreateTask(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, detail)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %d\n", detail.Task.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "JSON file with the full create request (- for stdin)")
	cmd.Flags().Int64Var(&flags.productID, "product", 0, "Product id")
	cmd.Flags().Int64Var(&flags.profileToolID, "profile-tool", 0, "Profile tool id")
	cmd.Flags().Int64Var(&flags.departmentID, "department", 0, "Department id")
	cmd.Flags().StringVar(&flags.deadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.description, "description", "", "Task description")
	cmd.Flags().Int64Var(&flags.productComponentID, "product-component", 0, "Product component id")
	cmd.Flags().Int64Var(&flags.profileToolComponentID, "profile-tool-component", 0, "Profile tool component id")
	cmd.Flags().IntVar(&flags.quantity, "quantity", 1, "Component quantity")
	cmd.Flags().StringArrayVar(&flags.stages, "stage", nil, "Stage as NUM:WORK_SUBTYPE[:MACHINE] (repeatable)")
	return cmd
}

func buildCreateRequest(flags taskCreateFlags, stdin io.Reader) (api.CreateTaskRequest, error) {
	if path := strings.TrimSpace(flags.file); path != "" {
		return readCreateRequest(path, stdin)
	}
	if len(flags.stages) == 0 {
		return api.CreateTaskRequest{}, errors.New("at least one --stage is required (or use --file)")
	}
	stages := make([]api.CreateStageRequest, 0, len(flags.stages))
	for _, raw := range flags.stages {
		stage, err := parseStageFlag(raw)
		if err != nil {
			return api.CreateTaskRequest{}, err
		}
		stages = append(stages, stage)
	}
	return api.CreateTaskRequest{
		ProductID:     positiveID(flags.productID),
		ProfileToolID: positiveID(flags.profileToolID),
		DepartmentID:  positiveID(flags.departmentID),
		Deadline:      flags.deadline,
		Description:   flags.description,
		Components: []api.CreateComponentRequest{{
			ProductComponentID:     positiveID(flags.productComponentID),
			ProfileToolComponentID: positiveID(flags.profileToolComponentID),
			Quantity:               flags.quantity,
			Stages:                 stages,
		}},
	}, nil
}

func readCreateRequest(path string, stdin io.Reader) (api.CreateTaskRequest, error) {
	var req api.CreateTaskRequest
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("read task file: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse task file: %w", err)
	}
	return req, nil
}

func parseStageFlag(raw string) (api.CreateStageRequest, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return api.CreateStageRequest{}, fmt.Errorf("invalid stage %q: expected NUM:WORK_SUBTYPE[:MACHINE]", raw)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return api.CreateStageRequest{}, fmt.Errorf("invalid stage number in %q", raw)
	}
	subtype, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return api.CreateStageRequest{}, fmt.Errorf("invalid work subtype in %q", raw)
	}
	stage := api.CreateStageRequest{StageNum: num, WorkSubtypeID: subtype}
	if len(parts) == 3 {
		machine, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return api.CreateStageRequest{}, fmt.Errorf("invalid machine in %q", raw)
		}
		stage.MachineID = &machine
	}
	return stage, nil
}

func positiveID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCommands(func(c api.Commands) error {
				tasks, err := c.ListTasks(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, tasks)
				}
				renderTasks(cmd.OutOrStdout(), tasks, "No tasks")
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its components and stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return ctx.withCommands(func(c api.Commands) error {
				detail, err := c.GetTask(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, detail)
				}
				renderTaskDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
}

func newTaskStatusCommand(ctx *commandContext) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task to another status",
		Long:  "Move a task to new, in_progress, done or cancelled. Russian labels are accepted.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			req := api.StatusChangeRequest{Status: args[1], Date: date}
			return ctx.withCommands(func(c api.Commands) error {
				task, err := c.ChangeStatus(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, task)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task %d is now %s\n", task.ID, task.StatusLabel)
				if task.Position != nil {
					fmt.Fprintf(out, "Queue position: %d\n", *task.Position)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Effective date (YYYY-MM-DD), defaults to today")
	return cmd
}

func newTaskUpdateCommand(ctx *commandContext) *cobra.Command {
	var description string
	var deadline string
	var clearDeadline bool
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change a task's description or deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			req := api.UpdateTaskRequest{Deadline: deadline, ClearDeadline: clearDeadline}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			return ctx.withCommands(func(c api.Commands) error {
				task, err := c.UpdateTask(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated task %d\n", task.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "New deadline (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "Remove the deadline")
	return cmd
}

func newTaskDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task with its components and stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return ctx.withCommands(func(c api.Commands) error {
				if err := c.DeleteTask(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
				return nil
			})
		},
	}
}
