package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/daemonctl"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the aditim daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				cmd.Context(),
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level for the daemon (debug, info, warn, error)")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the aditim daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time, killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the aditim daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				cmd.Context(),
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}
			if result.WasRunning {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.Start.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Log level for the daemon (debug, info, warn, error)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, snapshot)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range snapshot.Lines {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Tasks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := statusCountRows(snapshot.Daemon.Stats.Counts)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No tasks")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func statusCountRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range taskstatus.All() {
		if count := counts[string(status)]; count > 0 {
			rows = append(rows, []string{status.Label(), strconv.Itoa(count)})
		}
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
