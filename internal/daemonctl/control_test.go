package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/daemonctl"
	"github.com/formemu/aditim-monitor-sub000/internal/daemonrun"
	"github.com/formemu/aditim-monitor-sub000/internal/ipc"
	"github.com/formemu/aditim-monitor-sub000/internal/testsupport"
)

func TestStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewTask(t, st, 1)

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Daemon.Running {
		t.Fatal("expected daemon to be reported as stopped")
	}
	if snapshot.Daemon.Stats.Total != 1 || snapshot.Daemon.Stats.Counts["new"] != 1 {
		t.Fatalf("expected offline stats, got %+v", snapshot.Daemon.Stats)
	}
	if len(snapshot.Lines) == 0 || snapshot.Lines[0].Label != "Daemon" || snapshot.Lines[0].Severity != "warn" {
		t.Fatalf("unexpected lines %+v", snapshot.Lines)
	}
}

func TestStatusSnapshotWithoutDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if _, err := os.Stat(cfg.DatabasePath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("status must not create the database, stat err=%v", err)
	}
	if snapshot.Daemon.Stats.Total != 0 {
		t.Fatalf("unexpected stats %+v", snapshot.Daemon.Stats)
	}
}

func TestStatusLinesReflectConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	cfg.Relay.Redis.Enabled = true
	cfg.Relay.Redis.Addr = "redis:6379"

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	found := map[string]daemonctl.StatusLine{}
	for _, line := range snapshot.Lines {
		found[line.Label] = line
	}
	if found["Auth"].Severity != "ok" {
		t.Fatalf("expected auth enabled, got %+v", found["Auth"])
	}
	if !strings.Contains(found["Redis relay"].Detail, "redis:6379") {
		t.Fatalf("expected redis address, got %+v", found["Redis relay"])
	}
	if found["Kafka journal"].Detail != "Disabled" {
		t.Fatalf("expected kafka disabled, got %+v", found["Kafka journal"])
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.StopAndTerminate(context.Background(), cfg.SocketPath(), cfg, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	alive, pid, err := daemonctl.ProcessInfo(context.Background(), cfg.SocketPath())
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "aditim.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKillProcess(filepath.Join(dir, "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error without any pid")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

func TestEnsureStartedAndStopRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runErr := make(chan error, 1)
	go func() {
		runErr <- daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: "error"})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
			client.Close()
			break
		}
		select {
		case err := <-runErr:
			if err != nil && strings.Contains(err.Error(), "operation not permitted") {
				t.Skipf("unix sockets unavailable: %v", err)
			}
			t.Fatalf("Run exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon never became reachable")
		}
		time.Sleep(20 * time.Millisecond)
	}

	ctx := context.Background()
	result, err := daemonctl.EnsureStarted(ctx, cfg.SocketPath(), "", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.Launched || result.PID != os.Getpid() {
		t.Fatalf("unexpected start result %+v", result)
	}

	snapshot, err := daemonctl.BuildStatusSnapshot(ctx, cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snapshot.Daemon.Running || snapshot.Lines[0].Severity != "ok" {
		t.Fatalf("expected running snapshot, got %+v", snapshot)
	}

	stop, err := daemonctl.StopAndTerminate(ctx, cfg.SocketPath(), cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !stop.StopAcknowledged || stop.ForcedKill {
		t.Fatalf("unexpected stop result %+v", stop)
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not exit")
	}
}
