package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/daemon"
	"github.com/formemu/aditim-monitor-sub000/internal/ipc"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
}

func newCLIConfig(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, key := range []string{"ADITIM_API_TOKEN", "ADITIM_JWT_SECRET", "ADITIM_API_BIND"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	configPath := filepath.Join(homeDir, ".config", "aditim", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg, configPath := newCLIConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, st, broadcast.NewHub(broadcast.Options{Logger: logger}), logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, cancel, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    testsupport.BaseDir(cfg),
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[api]\nbind = %q\ntoken = %q\njwt_secret = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
		cfg.API.Token,
		cfg.API.JWTSecret,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
