package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and reorder the production queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List in-progress tasks in queue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCommands(func(c api.Commands) error {
				tasks, err := c.ListQueue(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, tasks)
				}
				renderTasks(cmd.OutOrStdout(), tasks, "Queue is empty")
				return nil
			})
		},
	}

	reorderCmd := &cobra.Command{
		Use:   "reorder <task-id>...",
		Short: "Set the queue order; every queued task must be listed exactly once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "task")
			if err != nil {
				return err
			}
			return ctx.withCommands(func(c api.Commands) error {
				if err := c.ReorderQueue(cmd.Context(), ids); err != nil {
					return err
				}
				tasks, err := c.ListQueue(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, tasks)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue reordered")
				renderTasks(cmd.OutOrStdout(), tasks, "Queue is empty")
				return nil
			})
		},
	}

	var repair bool
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify queue positions are dense, optionally repairing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCommands(func(c api.Commands) error {
				check, err := c.CheckQueue(cmd.Context(), repair)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, check)
				}
				renderQueueCheck(cmd, check)
				return nil
			})
		},
	}
	checkCmd.Flags().BoolVar(&repair, "repair", false, "Renumber positions when they are not dense")

	queueCmd.AddCommand(listCmd, reorderCmd, checkCmd)
	return queueCmd
}

func renderQueueCheck(cmd *cobra.Command, check *api.QueueCheck) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	kind := statusOK
	if !check.Dense {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Queue size", statusInfo, fmt.Sprint(check.Size), colorize))
	fmt.Fprintln(out, renderStatusLine("Dense", kind, yesNo(check.Dense), colorize))
	if len(check.Unset) > 0 {
		fmt.Fprintln(out, renderStatusLine("Unset", statusWarn, joinInts(check.Unset), colorize))
	}
	if len(check.Duplicates) > 0 {
		fmt.Fprintln(out, renderStatusLine("Duplicates", statusWarn, joinInts(check.Duplicates), colorize))
	}
	if len(check.Gaps) > 0 {
		fmt.Fprintln(out, renderStatusLine("Gaps", statusWarn, joinInts(check.Gaps), colorize))
	}
	if check.Repaired {
		fmt.Fprintln(out, renderStatusLine("Repaired", statusOK, "positions renumbered", colorize))
	}
}

func joinInts[T ~int | ~int64](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
