package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AWS_REGION", "TERRARAILS_APP", "TERRARAILS_ENV",
		"TERRARAILS_CONTEXT_DIR", "TERRARAILS_DOCKERFILE",
		"TERRARAILS_CPU", "TERRARAILS_MEMORY", "TERRARAILS_HEALTH_PATH",
		"TERRARAILS_ENDPOINT_URL", "TERRARAILS_SERVICE_PORT",
		"TERRARAILS_DESIRED_COUNT", "TERRARAILS_PROBE_ATTEMPTS",
		"TERRARAILS_PROBE_INTERVAL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg := FromEnv()
	if cfg.Region != DefaultRegion {
		t.Errorf("Region = %q, want %q", cfg.Region, DefaultRegion)
	}
	if cfg.DesiredCount != DefaultDesiredCount {
		t.Errorf("DesiredCount = %d, want %d", cfg.DesiredCount, DefaultDesiredCount)
	}
	if cfg.HealthPath != "/health" {
		t.Errorf("HealthPath = %q, want /health", cfg.HealthPath)
	}
	if cfg.ProbeInterval.Std() != 10*time.Second {
		t.Errorf("ProbeInterval = %v, want 10s", cfg.ProbeInterval.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("TERRARAILS_APP", "shop")
	t.Setenv("TERRARAILS_DESIRED_COUNT", "4")
	t.Setenv("TERRARAILS_PROBE_INTERVAL", "5s")

	cfg := FromEnv()
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q, want eu-west-1", cfg.Region)
	}
	if cfg.App != "shop" {
		t.Errorf("App = %q, want shop", cfg.App)
	}
	if cfg.DesiredCount != 4 {
		t.Errorf("DesiredCount = %d, want 4", cfg.DesiredCount)
	}
	if cfg.ProbeInterval.Std() != 5*time.Second {
		t.Errorf("ProbeInterval = %v, want 5s", cfg.ProbeInterval.Std())
	}
}

func TestLoadFileWithEnvWinning(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "terra-rails.toml")
	data := `
region = "us-west-2"
app = "shop"
env = "staging"
desired_count = 3
probe_interval = "2s"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TERRARAILS_ENV", "production")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region != "us-west-2" {
		t.Errorf("Region = %q, want us-west-2", cfg.Region)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production (env override)", cfg.Env)
	}
	if cfg.DesiredCount != 3 {
		t.Errorf("DesiredCount = %d, want 3", cfg.DesiredCount)
	}
	if cfg.ProbeInterval.Std() != 2*time.Second {
		t.Errorf("ProbeInterval = %v, want 2s", cfg.ProbeInterval.Std())
	}
	if got := cfg.Prefix(); got != "shop-production" {
		t.Errorf("Prefix = %q, want shop-production", got)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App != DefaultApp {
		t.Errorf("App = %q, want %q", cfg.App, DefaultApp)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty app", func(c *Config) { c.App = "" }, true},
		{"app with slash", func(c *Config) { c.App = "a/b" }, true},
		{"bad port", func(c *Config) { c.ServicePort = 70000 }, true},
		{"zero replicas", func(c *Config) { c.DesiredCount = 0 }, true},
		{"relative health path", func(c *Config) { c.HealthPath = "health" }, true},
		{"zero attempts", func(c *Config) { c.ProbeAttempts = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := FromEnv()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
