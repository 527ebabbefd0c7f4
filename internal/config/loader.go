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
const DefaultConfigFile = "sightline.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
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
	setString(&cfg.Server.Port, "SIGHTLINE_PORT")
	setString(&cfg.Server.CORSOrigin, "SIGHTLINE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SIGHTLINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SIGHTLINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SIGHTLINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SIGHTLINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SIGHTLINE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "SIGHTLINE_NATS_SUBJECT")
	setInt(&cfg.Hub.BacklogCapacity, "SIGHTLINE_HUB_BACKLOG")
	setInt(&cfg.Hub.ObserverQueueCapacity, "SIGHTLINE_HUB_QUEUE")
	setInt(&cfg.Consumer.WindowCapacity, "SIGHTLINE_CONSUMER_WINDOW")
	setDuration(&cfg.Consumer.BackoffBase, "SIGHTLINE_BACKOFF_BASE")
	setDuration(&cfg.Consumer.BackoffCap, "SIGHTLINE_BACKOFF_CAP")
	setDuration(&cfg.Consumer.ConnectTimeout, "SIGHTLINE_CONNECT_TIMEOUT")
	setString(&cfg.Logging.Level, "SIGHTLINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SIGHTLINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SIGHTLINE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "SIGHTLINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SIGHTLINE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "SIGHTLINE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.SummaryTTL, "SIGHTLINE_CACHE_SUMMARY_TTL")
	setString(&cfg.Agents.ProfilePath, "SIGHTLINE_AGENT_PROFILES")
}

// validate checks that required fields are set and bounds are finite.
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
	if cfg.Hub.BacklogCapacity < 1 {
		return errors.New("hub.backlog_capacity must be >= 1")
	}
	if cfg.Hub.ObserverQueueCapacity < 1 {
		return errors.New("hub.observer_queue_capacity must be >= 1")
	}
	if cfg.Consumer.WindowCapacity < 1 {
		return errors.New("consumer.window_capacity must be >= 1")
	}
	if cfg.Consumer.BackoffBase <= 0 {
		return errors.New("consumer.backoff_base must be > 0")
	}
	if cfg.Consumer.BackoffCap < cfg.Consumer.BackoffBase {
		return errors.New("consumer.backoff_cap must be >= backoff_base")
	}
	if cfg.Consumer.ConnectTimeout <= 0 {
		return errors.New("consumer.connect_timeout must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
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
