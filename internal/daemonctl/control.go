package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/ipc"
	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts a detached daemon process running `serve`.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(ctx context.Context, socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	status, err := client.Status(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("query daemon status: %w", err)
	}
	if !status.Running {
		return StartResult{}, errors.New("daemon answered but is not serving")
	}
	if launched {
		return StartResult{State: StartStateStarted, Launched: true, PID: status.PID}, nil
	}
	return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
}

// WaitForShutdown waits for daemon IPC to disappear or report not-running.
func WaitForShutdown(ctx context.Context, socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(pollInterval)
			continue
		}
		status, statusErr := client.Status(ctx)
		_ = client.Close()
		if statusErr == nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(ctx context.Context, socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status(ctx)
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// ForceKillProcess sends SIGKILL to daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pidStr != "" {
			if parsed, parseErr := strconv.Atoi(pidStr); parseErr == nil && parsed > 0 {
				pid = parsed
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate requests daemon stop and force-kills the process if still
// alive after gracePeriod.
func StopAndTerminate(ctx context.Context, socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(ctx); statusErr == nil {
		pid = status.PID
	}
	err = client.Stop(ctx)
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{StopAcknowledged: true, PID: pid}

	_ = WaitForShutdown(ctx, socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(ctx, socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}

	if livePID == 0 {
		livePID = pid
	}
	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), livePID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(ctx, socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(ctx, socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusLine is one row of the status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Snapshot is the combined daemon and database status.
type Snapshot struct {
	Daemon api.DaemonStatus `json:"daemon"`
	Lines  []StatusLine     `json:"lines"`
}

// BuildStatusSnapshot collects daemon status, falling back to reading the
// database directly when the daemon is not running.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{Daemon: api.DaemonStatus{
		DatabasePath: cfg.DatabasePath(),
		LockPath:     cfg.LockPath(),
	}}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if status, statusErr := client.Status(ctx); statusErr == nil {
			snapshot.Daemon = *status
		}
	}

	if !snapshot.Daemon.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if stats, statsErr := offlineStats(queryCtx, cfg); statsErr == nil {
			snapshot.Daemon.Stats = *stats
		}
	}

	snapshot.Lines = BuildStatusLines(cfg, snapshot.Daemon)
	return snapshot, nil
}

func offlineStats(ctx context.Context, cfg *config.Config) (*api.Stats, error) {
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return api.NewService(scheduler.New(st, nil, nil)).Stats(ctx)
}

// BuildStatusLines resolves status lines from runtime state and configuration.
func BuildStatusLines(cfg *config.Config, status api.DaemonStatus) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if status.Running {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		lines = append(lines, StatusLine{Label: "API", Severity: "ok", Detail: status.APIAddress})
		lines = append(lines, StatusLine{Label: "Viewers", Severity: "info", Detail: strconv.Itoa(status.Subscribers) + " connected"})
	} else {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `aditim start`)"})
	}

	queueDetail := fmt.Sprintf("%d in progress", status.Stats.QueueSize)
	if status.Stats.Dense {
		lines = append(lines, StatusLine{Label: "Queue", Severity: "ok", Detail: queueDetail})
	} else {
		lines = append(lines, StatusLine{Label: "Queue", Severity: "warn", Detail: queueDetail + ", positions need repair (run `aditim queue check --repair`)"})
	}

	if cfg.AuthEnabled() {
		lines = append(lines, StatusLine{Label: "Auth", Severity: "ok", Detail: "Bearer token required"})
	} else {
		lines = append(lines, StatusLine{Label: "Auth", Severity: "warn", Detail: "Disabled"})
	}

	if cfg.Relay.Redis.Enabled {
		lines = append(lines, StatusLine{Label: "Redis relay", Severity: "ok", Detail: cfg.Relay.Redis.Addr + " " + cfg.Relay.Redis.Channel})
	} else {
		lines = append(lines, StatusLine{Label: "Redis relay", Severity: "info", Detail: "Disabled"})
	}
	if cfg.Relay.Kafka.Enabled {
		lines = append(lines, StatusLine{Label: "Kafka journal", Severity: "ok", Detail: strings.Join(cfg.Relay.Kafka.Brokers, ",") + " " + cfg.Relay.Kafka.Topic})
	} else {
		lines = append(lines, StatusLine{Label: "Kafka journal", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
