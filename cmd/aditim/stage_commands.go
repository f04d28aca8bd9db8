package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	stageCmd := &cobra.Command{
		Use:   "stage",
		Short: "Track component stages",
	}

	listCmd := &cobra.Command{
		Use:   "list <component-id>",
		Short: "Show a component's stage plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "component")
			if err != nil {
				return err
			}
			return ctx.withCommands(func(c api.Commands) error {
				plan, err := c.ComponentPlan(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, plan)
				}
				renderPlan(cmd.OutOrStdout(), *plan)
				return nil
			})
		},
	}

	nextCmd := &cobra.Command{
		Use:   "next <component-id>",
		Short: "Show the stage that can be worked on now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "component")
			if err != nil {
				return err
			}
			return ctx.withCommands(func(c api.Commands) error {
				stage, err := c.NextStage(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, api.NextStageResponse{Stage: stage})
				}
				if stage == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "All stages finished")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Next: %s\n", describeStage(stage))
				return nil
			})
		},
	}

	var machineID int64
	var startDate string
	startCmd := &cobra.Command{
		Use:   "start <stage-id>",
		Short: "Record that work on a stage has begun",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "stage")
			if err != nil {
				return err
			}
			req := api.StartStageRequest{MachineID: positiveID(machineID), Date: startDate}
			return ctx.withCommands(func(c api.Commands) error {
				stage, err := c.StartStage(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, stage)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", describeStage(stage))
				return nil
			})
		},
	}
	startCmd.Flags().Int64Var(&machineID, "machine", 0, "Machine doing the work")
	startCmd.Flags().StringVar(&startDate, "date", "", "Start date (YYYY-MM-DD), defaults to today")

	var finishDate string
	finishCmd := &cobra.Command{
		Use:   "finish <stage-id>",
		Short: "Record that a stage is finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "stage")
			if err != nil {
				return err
			}
			req := api.FinishStageRequest{Date: finishDate}
			return ctx.withCommands(func(c api.Commands) error {
				stage, err := c.FinishStage(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, stage)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Finished %s\n", describeStage(stage))
				return nil
			})
		},
	}
	finishCmd.Flags().StringVar(&finishDate, "date", "", "Finish date (YYYY-MM-DD), defaults to today")

	stageCmd.AddCommand(listCmd, nextCmd, startCmd, finishCmd)
	return stageCmd
}
