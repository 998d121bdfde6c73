package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.APITokenHash != "" {
		t.Errorf("auth must be disabled by default, got hash %q", cfg.Server.APITokenHash)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("failure threshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Orchestrator.MaxDecompositionDepth != 3 {
		t.Errorf("max decomposition depth = %d, want 3", cfg.Orchestrator.MaxDecompositionDepth)
	}
	if !cfg.Orchestrator.ContinueOnError {
		t.Error("continue_on_error should default to true")
	}
	if cfg.Logging.AsyncBuffer != 1024 {
		t.Errorf("async buffer = %d, want 1024", cfg.Logging.AsyncBuffer)
	}
	if cfg.Runner.QueueCapacity != 256 {
		t.Errorf("queue capacity = %d, want 256", cfg.Runner.QueueCapacity)
	}
	if cfg.Cache.MaxCostBytes != 16<<20 {
		t.Errorf("cache max cost = %d, want 16 MiB", cfg.Cache.MaxCostBytes)
	}

	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crucible.yaml")
	yml := `
server:
  port: "9090"
logging:
  level: debug
  async: true
  async_buffer: 32
orchestrator:
  max_concurrency: 7
runner:
  shell_timeout: 45s
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Logging.Async {
		t.Error("async should be enabled by YAML")
	}
	if cfg.Logging.AsyncBuffer != 32 {
		t.Errorf("async buffer = %d, want 32", cfg.Logging.AsyncBuffer)
	}
	if cfg.Orchestrator.MaxConcurrency != 7 {
		t.Errorf("max concurrency = %d, want 7", cfg.Orchestrator.MaxConcurrency)
	}
	if cfg.Runner.ShellTimeout != 45*time.Second {
		t.Errorf("shell timeout = %v, want 45s", cfg.Runner.ShellTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q, want default", cfg.NATS.URL)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("failure threshold = %d, want default 5", cfg.Breaker.FailureThreshold)
	}
}

func TestLoadYAMLMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing yaml must fall back to defaults: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("malformed yaml must fail the load")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CRUCIBLE_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env:env@db:5432/crucible")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("CRUCIBLE_LOG_LEVEL", "warn")
	t.Setenv("CRUCIBLE_LOG_ASYNC_BUFFER", "256")
	t.Setenv("CRUCIBLE_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("CRUCIBLE_ORCH_AGENT_TIMEOUT", "90s")
	t.Setenv("CRUCIBLE_RUNNER_QUEUE_CAPACITY", "64")
	t.Setenv("CRUCIBLE_CACHE_MAX_COST_BYTES", "1048576")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want 7070", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://env:env@db:5432/crucible" {
		t.Errorf("dsn = %q, want env value", cfg.Postgres.DSN)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url = %q, want env value", cfg.NATS.URL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Logging.AsyncBuffer != 256 {
		t.Errorf("async buffer = %d, want 256", cfg.Logging.AsyncBuffer)
	}
	if cfg.Breaker.FailureThreshold != 9 {
		t.Errorf("failure threshold = %d, want 9", cfg.Breaker.FailureThreshold)
	}
	if cfg.Orchestrator.AgentTimeout != 90*time.Second {
		t.Errorf("agent timeout = %v, want 90s", cfg.Orchestrator.AgentTimeout)
	}
	if cfg.Runner.QueueCapacity != 64 {
		t.Errorf("queue capacity = %d, want 64", cfg.Runner.QueueCapacity)
	}
	if cfg.Cache.MaxCostBytes != 1<<20 {
		t.Errorf("cache max cost = %d, want 1 MiB", cfg.Cache.MaxCostBytes)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crucible.yaml")
	yml := `
server:
  port: "9090"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CRUCIBLE_PORT", "7070")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	// Env wins over YAML, YAML wins over defaults.
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, env must override yaml", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, yaml must override default", cfg.Logging.Level)
	}
}

func TestEnvIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("CRUCIBLE_BREAKER_FAILURE_THRESHOLD", "lots")
	t.Setenv("CRUCIBLE_ORCH_AGENT_TIMEOUT", "soon")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("garbage int env must keep default, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Orchestrator.AgentTimeout != 5*time.Minute {
		t.Errorf("garbage duration env must keep default, got %v", cfg.Orchestrator.AgentTimeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "missing port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port",
		},
		{
			name:   "missing dsn",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn",
		},
		{
			name:   "missing nats url",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url",
		},
		{
			name:   "zero failure threshold",
			modify: func(c *Config) { c.Breaker.FailureThreshold = 0 },
			errMsg: "breaker.failure_threshold",
		},
		{
			name:   "zero success threshold",
			modify: func(c *Config) { c.Breaker.SuccessThreshold = 0 },
			errMsg: "breaker.success_threshold",
		},
		{
			name:   "zero max concurrency",
			modify: func(c *Config) { c.Orchestrator.MaxConcurrency = 0 },
			errMsg: "orchestrator.max_concurrency",
		},
		{
			name:   "zero decomposition depth",
			modify: func(c *Config) { c.Orchestrator.MaxDecompositionDepth = 0 },
			errMsg: "orchestrator.max_decomposition_depth",
		},
		{
			name:   "zero queue capacity",
			modify: func(c *Config) { c.Runner.QueueCapacity = 0 },
			errMsg: "runner.queue_capacity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.errMsg)
			}
		})
	}
}
