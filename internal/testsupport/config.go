package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/formemu/aditim-monitor-sub000/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIToken enables static bearer token auth on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithJWTSecret enables JWT bearer auth on the test config.
func WithJWTSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.JWTSecret = secret
	}
}

// WithSendBuffer overrides the per-subscriber broadcast buffer.
func WithSendBuffer(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Broadcast.SendBuffer = size
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
