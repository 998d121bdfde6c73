package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "crucible.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CRUCIBLE_PORT")
	setString(&cfg.Server.CORSOrigin, "CRUCIBLE_CORS_ORIGIN")
	setString(&cfg.Server.APITokenHash, "CRUCIBLE_API_TOKEN_HASH")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CRUCIBLE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CRUCIBLE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CRUCIBLE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CRUCIBLE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CRUCIBLE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "CRUCIBLE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CRUCIBLE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CRUCIBLE_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "CRUCIBLE_LOG_ASYNC_BUFFER")

	setInt(&cfg.Breaker.FailureThreshold, "CRUCIBLE_BREAKER_FAILURE_THRESHOLD")
	setInt(&cfg.Breaker.SuccessThreshold, "CRUCIBLE_BREAKER_SUCCESS_THRESHOLD")
	setDuration(&cfg.Breaker.ResetTimeout, "CRUCIBLE_BREAKER_RESET_TIMEOUT")
	setDuration(&cfg.Breaker.FailureWindow, "CRUCIBLE_BREAKER_FAILURE_WINDOW")

	setInt(&cfg.Orchestrator.MaxConcurrency, "CRUCIBLE_ORCH_MAX_CONCURRENCY")
	setDuration(&cfg.Orchestrator.SubtaskTimeout, "CRUCIBLE_ORCH_SUBTASK_TIMEOUT")
	setInt(&cfg.Orchestrator.MaxDecompositionDepth, "CRUCIBLE_ORCH_MAX_DEPTH")
	setBool(&cfg.Orchestrator.ContinueOnError, "CRUCIBLE_ORCH_CONTINUE_ON_ERROR")
	setDuration(&cfg.Orchestrator.AgentTimeout, "CRUCIBLE_ORCH_AGENT_TIMEOUT")

	setString(&cfg.Runner.WorkspacePath, "CRUCIBLE_WORKSPACE")
	setDuration(&cfg.Runner.ShellTimeout, "CRUCIBLE_RUNNER_SHELL_TIMEOUT")
	setDuration(&cfg.Runner.PythonTimeout, "CRUCIBLE_RUNNER_PYTHON_TIMEOUT")
	setDuration(&cfg.Runner.DevServerReady, "CRUCIBLE_RUNNER_DEVSERVER_READY")
	setInt(&cfg.Runner.QueueCapacity, "CRUCIBLE_RUNNER_QUEUE_CAPACITY")
	setInt(&cfg.Runner.MaxConcurrentIO, "CRUCIBLE_RUNNER_MAX_IO")

	setDuration(&cfg.Security.VerdictCacheTTL, "CRUCIBLE_SECURITY_CACHE_TTL")
	setInt64(&cfg.Cache.MaxCostBytes, "CRUCIBLE_CACHE_MAX_COST_BYTES")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}
	if cfg.Breaker.SuccessThreshold < 1 {
		return errors.New("breaker.success_threshold must be >= 1")
	}
	if cfg.Orchestrator.MaxConcurrency < 1 {
		return errors.New("orchestrator.max_concurrency must be >= 1")
	}
	if cfg.Orchestrator.MaxDecompositionDepth < 1 {
		return errors.New("orchestrator.max_decomposition_depth must be >= 1")
	}
	if cfg.Runner.QueueCapacity < 1 {
		return errors.New("runner.queue_capacity must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
