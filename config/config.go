// Package config loads the orchestrator configuration from the
// environment, with an optional YAML file overlay for deployments that
// prefer checked-in settings over environment wiring.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"train-orchestrator/core/trainerrors"
)

// Artifact storage backends selectable via ArtifactBackend.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string `yaml:"server_port"`

	// Database. An empty URL selects the local-file run and metrics
	// stores under DataDir instead of Postgres.
	DatabaseURL string `yaml:"database_url"`
	DataDir     string `yaml:"data_dir"`

	// Artifact storage
	ArtifactBackend string `yaml:"artifact_backend"` // local | s3
	ArtifactRoot    string `yaml:"artifact_root"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	S3Region        string `yaml:"s3_region"`

	// Concurrency
	GlobalLimit int64 `yaml:"global_limit"`
	TenantLimit int64 `yaml:"tenant_limit"`
	Workers     int   `yaml:"workers"` // 0 picks max(2, 2*GlobalLimit)

	// Training backend
	Device    string `yaml:"device"`
	PythonBin string `yaml:"python_bin"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text | json
}

// Load reads configuration from environment variables, overlays the YAML
// file named by CONFIG_FILE when set and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DataDir:         getEnv("DATA_DIR", "data"),
		ArtifactBackend: getEnv("ARTIFACT_BACKEND", BackendLocal),
		ArtifactRoot:    getEnv("ARTIFACT_ROOT", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		S3Region:        getEnv("AWS_REGION", ""),
		GlobalLimit:     getEnvInt64("GLOBAL_LIMIT", 1),
		TenantLimit:     getEnvInt64("TENANT_LIMIT", 1),
		Workers:         int(getEnvInt64("WORKERS", 0)),
		Device:          getEnv("TRAIN_DEVICE", "cpu"),
		PythonBin:       getEnv("PYTHON_BIN", "python3"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.ArtifactRoot == "" {
		cfg.ArtifactRoot = filepath.Join(cfg.DataDir, "artifacts")
	}
	return cfg, cfg.validate()
}

// applyFile overlays settings from a YAML file. Only keys present in the
// file replace the environment-derived values.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}

func (c *Config) validate() error {
	if c.GlobalLimit < 1 {
		return &trainerrors.ErrInvalidArgument{Name: "GLOBAL_LIMIT", Value: c.GlobalLimit, Message: "must be at least 1"}
	}
	if c.TenantLimit < 1 {
		return &trainerrors.ErrInvalidArgument{Name: "TENANT_LIMIT", Value: c.TenantLimit, Message: "must be at least 1"}
	}
	if c.Workers < 0 {
		return &trainerrors.ErrInvalidArgument{Name: "WORKERS", Value: c.Workers, Message: "must not be negative"}
	}
	if c.ArtifactBackend != BackendLocal && c.ArtifactBackend != BackendS3 {
		return &trainerrors.ErrInvalidArgument{Name: "ARTIFACT_BACKEND", Value: c.ArtifactBackend, Message: "must be local or s3"}
	}
	if c.ArtifactBackend == BackendS3 && c.S3Bucket == "" {
		return &trainerrors.ErrInvalidArgument{Name: "S3_BUCKET", Value: c.S3Bucket, Message: "required for the s3 artifact backend"}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &trainerrors.ErrInvalidArgument{Name: "LOG_FORMAT", Value: c.LogFormat, Message: "must be text or json"}
	}
	return nil
}

// UseDatabase reports whether the Postgres-backed stores are selected.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != ""
}

// RunStateFile is the state file used when no database is configured.
func (c *Config) RunStateFile() string {
	return filepath.Join(c.DataDir, "runs.json")
}

// MetricsFile is the metrics log used when no database is configured.
func (c *Config) MetricsFile() string {
	return filepath.Join(c.DataDir, "metrics.jsonl")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
