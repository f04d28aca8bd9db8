package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/formemu/aditim-monitor-sub000/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "aditim")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "aditim.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.SocketPath() != filepath.Join(wantData, "aditim.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.AuthEnabled() {
		t.Fatal("expected auth disabled by default")
	}
	if cfg.Relay.Redis.Enabled || cfg.Relay.Kafka.Enabled {
		t.Fatal("expected relays disabled by default")
	}
	if cfg.Broadcast.SendBuffer != config.Default().Broadcast.SendBuffer {
		t.Fatalf("unexpected send buffer: %d", cfg.Broadcast.SendBuffer)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadReadsProjectFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	dataDir := filepath.Join(t.TempDir(), "data")
	configPath := filepath.Join(t.TempDir(), "aditim.toml")
	body := strings.Join([]string{
		"[paths]",
		"data_dir = \"" + filepath.ToSlash(dataDir) + "\"",
		"[api]",
		"bind = \"0.0.0.0:9000\"",
		"token = \"  shop-floor  \"",
		"[logging]",
		"format = \"JSON\"",
		"level = \"DEBUG\"",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.API.Bind != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind: %q", cfg.API.Bind)
	}
	if cfg.API.Token != "shop-floor" {
		t.Fatalf("expected trimmed token, got %q", cfg.API.Token)
	}
	if !cfg.AuthEnabled() {
		t.Fatal("expected auth enabled with token")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "aditim.toml")
	if err := os.WriteFile(configPath, []byte("[api]\nlisten = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADITIM_API_TOKEN", "env-token")
	t.Setenv("ADITIM_API_BIND", "127.0.0.1:7600")
	t.Setenv("ADITIM_REDIS_ADDR", "redis:6379")
	t.Setenv("ADITIM_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.API.Token)
	}
	if cfg.API.Bind != "127.0.0.1:7600" {
		t.Fatalf("expected bind from env, got %q", cfg.API.Bind)
	}
	if !cfg.Relay.Redis.Enabled || cfg.Relay.Redis.Addr != "redis:6379" {
		t.Fatalf("expected redis relay from env, got %+v", cfg.Relay.Redis)
	}
	if !cfg.Relay.Kafka.Enabled {
		t.Fatal("expected kafka relay enabled from env")
	}
	if len(cfg.Relay.Kafka.Brokers) != 2 || cfg.Relay.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Relay.Kafka.Brokers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "bad bind",
			mutate:  func(c *config.Config) { c.API.Bind = "localhost" },
			wantErr: "api.bind",
		},
		{
			name: "token and jwt",
			mutate: func(c *config.Config) {
				c.API.Token = "a"
				c.API.JWTSecret = "b"
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "zero buffer",
			mutate:  func(c *config.Config) { c.Broadcast.SendBuffer = 0 },
			wantErr: "send_buffer",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *config.Config) { c.Relay.Redis.Enabled = true },
			wantErr: "relay.redis.addr",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *config.Config) { c.Relay.Kafka.Enabled = true },
			wantErr: "relay.kafka.brokers",
		},
		{
			name:    "unknown level",
			mutate:  func(c *config.Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.API.Bind != config.Default().API.Bind {
		t.Fatalf("sample bind %q differs from default %q", cfg.API.Bind, config.Default().API.Bind)
	}
	if cfg.Relay.Kafka.Topic != "aditim.changes" {
		t.Fatalf("unexpected sample kafka topic: %q", cfg.Relay.Kafka.Topic)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
