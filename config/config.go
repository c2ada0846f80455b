// Package config holds deployment configuration loaded from a TOML file
// and/or environment variables. Environment variables win over file values
// so CI can override a checked-in terra-rails.toml per run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultRegion        = "us-east-1"
	DefaultApp           = "rails"
	DefaultEnv           = "production"
	DefaultServicePort   = 3000
	DefaultDesiredCount  = 2
	DefaultCPU           = "256"
	DefaultMemory        = "512"
	DefaultHealthPath    = "/health"
	DefaultProbeAttempts = 30
	DefaultProbeInterval = 10 * time.Second
)

// Config holds everything the deployer needs to converge and verify a stack.
type Config struct {
	Region string `toml:"region"`

	// App and Env together name every AWS resource ("<app>-<env>-...").
	App string `toml:"app"`
	Env string `toml:"env"`

	// Image build inputs.
	ContextDir string `toml:"context_dir"` // docker build context
	Dockerfile string `toml:"dockerfile"`  // relative to ContextDir

	// Service sizing. CPU/Memory are Fargate units as strings ("256"/"512").
	ServicePort  int    `toml:"service_port"`
	DesiredCount int    `toml:"desired_count"`
	CPU          string `toml:"cpu"`
	Memory       string `toml:"memory"`

	// Verifier budget: ProbeAttempts probes, one every ProbeInterval.
	HealthPath    string   `toml:"health_path"`
	ProbeAttempts int      `toml:"probe_attempts"`
	ProbeInterval Duration `toml:"probe_interval"`

	// EndpointURL points every AWS client at a simulator (localstack etc.)
	// instead of the real control plane. Empty in production.
	EndpointURL string `toml:"endpoint_url"`
}

// Duration is a time.Duration that unmarshals from TOML strings like "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads the TOML file at path (skipped if path is empty or missing),
// then applies environment overrides and defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults alone.
func FromEnv() Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	setIfEnv(&c.Region, "AWS_REGION")
	setIfEnv(&c.App, "TERRARAILS_APP")
	setIfEnv(&c.Env, "TERRARAILS_ENV")
	setIfEnv(&c.ContextDir, "TERRARAILS_CONTEXT_DIR")
	setIfEnv(&c.Dockerfile, "TERRARAILS_DOCKERFILE")
	setIfEnv(&c.CPU, "TERRARAILS_CPU")
	setIfEnv(&c.Memory, "TERRARAILS_MEMORY")
	setIfEnv(&c.HealthPath, "TERRARAILS_HEALTH_PATH")
	setIfEnv(&c.EndpointURL, "TERRARAILS_ENDPOINT_URL")
	setIntIfEnv(&c.ServicePort, "TERRARAILS_SERVICE_PORT")
	setIntIfEnv(&c.DesiredCount, "TERRARAILS_DESIRED_COUNT")
	setIntIfEnv(&c.ProbeAttempts, "TERRARAILS_PROBE_ATTEMPTS")
	if v := os.Getenv("TERRARAILS_PROBE_INTERVAL"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.ProbeInterval = Duration(dur)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.App == "" {
		c.App = DefaultApp
	}
	if c.Env == "" {
		c.Env = DefaultEnv
	}
	if c.ContextDir == "" {
		c.ContextDir = "."
	}
	if c.Dockerfile == "" {
		c.Dockerfile = "Dockerfile"
	}
	if c.ServicePort == 0 {
		c.ServicePort = DefaultServicePort
	}
	if c.DesiredCount == 0 {
		c.DesiredCount = DefaultDesiredCount
	}
	if c.CPU == "" {
		c.CPU = DefaultCPU
	}
	if c.Memory == "" {
		c.Memory = DefaultMemory
	}
	if c.HealthPath == "" {
		c.HealthPath = DefaultHealthPath
	}
	if c.ProbeAttempts == 0 {
		c.ProbeAttempts = DefaultProbeAttempts
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = Duration(DefaultProbeInterval)
	}
}

// Validate checks required configuration.
func (c Config) Validate() error {
	if c.App == "" {
		return fmt.Errorf("app name is required")
	}
	if strings.ContainsAny(c.App, " /_") {
		return fmt.Errorf("app name %q must be a plain DNS-safe token", c.App)
	}
	if c.Env == "" {
		return fmt.Errorf("env name is required")
	}
	if c.ServicePort <= 0 || c.ServicePort > 65535 {
		return fmt.Errorf("service port %d out of range", c.ServicePort)
	}
	if c.DesiredCount < 1 {
		return fmt.Errorf("desired count must be at least 1")
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("health path %q must start with /", c.HealthPath)
	}
	if c.ProbeAttempts < 1 {
		return fmt.Errorf("probe attempts must be at least 1")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive")
	}
	return nil
}

// Prefix returns the "<app>-<env>" prefix used for all resource names.
func (c Config) Prefix() string {
	return c.App + "-" + c.Env
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setIntIfEnv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
