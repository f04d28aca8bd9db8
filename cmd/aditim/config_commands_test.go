package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/formemu/aditim-monitor-sub000/internal/testsupport"
)

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	requireContains(t, string(data), "[api]")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	_, configPath := newCLIConfig(t, testsupport.WithAPIToken("shop-floor"))

	out, _, err := runCLI(t, []string{"config", "show"}, "", configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, configPath)
	requireContains(t, out, redacted)
	if strings.Contains(out, "shop-floor") {
		t.Fatalf("token leaked in %q", out)
	}

	out, _, err = runCLI(t, []string{"config", "show", "--show-secrets"}, "", configPath)
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "shop-floor")
}

func TestConfigValidate(t *testing.T) {
	_, configPath := newCLIConfig(t)
	out, _, err := runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	broken := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(broken, []byte("[api]\nbind = \"nope\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, "", broken); err == nil {
		t.Fatal("expected invalid bind to fail validation")
	}
}

func TestTokenCommand(t *testing.T) {
	_, configPath := newCLIConfig(t, testsupport.WithJWTSecret("s3cret"))
	out, _, err := runCLI(t, []string{"token", "--subject", "monitor", "--ttl", "1h"}, "", configPath)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(out), "."); len(parts) != 3 {
		t.Fatalf("expected a JWT, got %q", out)
	}

	_, plainConfig := newCLIConfig(t)
	if _, _, err := runCLI(t, []string{"token"}, "", plainConfig); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}
