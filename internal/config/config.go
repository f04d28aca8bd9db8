package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains the HTTP/WebSocket listener settings.
type API struct {
	Bind      string `toml:"bind"`
	Token     string `toml:"token"`
	JWTSecret string `toml:"jwt_secret"`
	// ReadTimeout and WriteTimeout apply to plain REST requests; the
	// WebSocket endpoint manages its own deadlines.
	ReadTimeout  int `toml:"read_timeout"`
	WriteTimeout int `toml:"write_timeout"`
}

// Broadcast contains change-notification fan-out tuning.
type Broadcast struct {
	SendBuffer   int `toml:"send_buffer"`
	WriteTimeout int `toml:"write_timeout"`
	PingInterval int `toml:"ping_interval"`
}

// RedisRelay mirrors local change notifications to other scheduler instances.
type RedisRelay struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// KafkaRelay journals change notifications to a Kafka topic.
type KafkaRelay struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	WriteTimeout int      `toml:"write_timeout"`
}

// Relay groups the optional outbound fan-out targets.
type Relay struct {
	Redis RedisRelay `toml:"redis"`
	Kafka KafkaRelay `toml:"kafka"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values.
//
// Configuration sections by subsystem:
//   - Paths: data directory (database, socket, lock) and log directory
//   - API: HTTP bind address, bearer token or JWT secret, timeouts
//   - Broadcast: per-subscriber buffer and WebSocket deadlines
//   - Relay: optional Redis pub/sub and Kafka journal fan-out
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	Broadcast Broadcast `toml:"broadcast"`
	Relay     Relay     `toml:"relay"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aditim/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is loaded
// first so environment overrides can be kept next to the deployment.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("aditim.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "aditim.db")
}

// SocketPath returns the CLI control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "aditim.sock")
}

// LockPath returns the single-instance daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "aditim.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "aditim.pid")
}

// BroadcastWriteTimeout returns the per-message WebSocket write deadline.
func (c *Config) BroadcastWriteTimeout() time.Duration {
	return time.Duration(c.Broadcast.WriteTimeout) * time.Second
}

// BroadcastPingInterval returns the WebSocket keepalive ping interval.
func (c *Config) BroadcastPingInterval() time.Duration {
	return time.Duration(c.Broadcast.PingInterval) * time.Second
}

// AuthEnabled reports whether API requests must present credentials.
func (c *Config) AuthEnabled() bool {
	return c.API.Token != "" || c.API.JWTSecret != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
