// Package config loads the static environment/config surface (worker
// concurrency per queue, per-kind request interval and rate limit,
// Validation Loop bounds, job timeouts) from a YAML tree overlaid with
// environment variables, and separately exposes the Active Config Registry:
// the hot-reloadable model-kind -> credentials/model-name bindings read from
// the Job Store's companion config table.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// QueueConfig configures one named job queue's worker pool.
type QueueConfig struct {
	WorkerCount        int           `yaml:"worker_count"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	SoftTimeout        time.Duration `yaml:"soft_timeout"`
	HardTimeout        time.Duration `yaml:"hard_timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`
}

// ValidationConfig bounds the Validation Loop.
type ValidationConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	MaxWorkers    int `yaml:"max_workers"`
}

// ModelKindConfig configures the Model Client Pool's rate/retry discipline
// for one kind — distinct from the Active Config's credentials, which live
// in the database and are hot-reloadable (see registry.go).
type ModelKindConfig struct {
	RequestIntervalMS int `yaml:"request_interval_ms"`
	RetryBudget       int `yaml:"retry_budget"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig configures the Status Channel's Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig configures the Job API's HTTP listener.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig configures the Artifact Cache and final output locations.
type StorageConfig struct {
	ArtifactCacheRoot string `yaml:"artifact_cache_root"`
	OutputRoot        string `yaml:"output_root"`
}

// RetentionConfig configures the background retention/cleanup loop.
type RetentionConfig struct {
	Interval        time.Duration `yaml:"interval"`
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
	JobRetention    time.Duration `yaml:"job_retention"`
}

// Config is the full static environment/config surface loaded at startup.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Database   DatabaseConfig             `yaml:"database"`
	Redis      RedisConfig                `yaml:"redis"`
	Storage    StorageConfig              `yaml:"storage"`
	Validation ValidationConfig           `yaml:"validation"`
	Retention  RetentionConfig            `yaml:"retention"`
	Queues     map[string]QueueConfig     `yaml:"queues"`
	ModelPool  map[string]ModelKindConfig `yaml:"model_pool"`

	// JobHardTimeout/JobSoftTimeout are the per-job deadlines (30 minutes
	// hard, 25 minutes soft).
	JobHardTimeout time.Duration `yaml:"job_hard_timeout"`
	JobSoftTimeout time.Duration `yaml:"job_soft_timeout"`

	// configDir records where this config was loaded from, for ConfigDir().
	configDir string
}

// Defaults returns the baseline config merged under whatever the YAML file
// supplies, generalized to this system's two named queues.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			ArtifactCacheRoot: "./data/cache",
			OutputRoot:        "./data/output",
		},
		Validation: ValidationConfig{
			MaxIterations: 3,
			MaxWorkers:    4,
		},
		Retention: RetentionConfig{
			Interval:        30 * time.Minute,
			OrphanThreshold: 45 * time.Minute,
			JobRetention:    7 * 24 * time.Hour,
		},
		Queues: map[string]QueueConfig{
			"generate": {
				WorkerCount:        5,
				RateLimitPerSecond: 2,
				SoftTimeout:        25 * time.Minute,
				HardTimeout:        30 * time.Minute,
				PollInterval:       time.Second,
				PollIntervalJitter: 500 * time.Millisecond,
			},
			"analyze-template": {
				WorkerCount:        3,
				RateLimitPerSecond: 2,
				SoftTimeout:        25 * time.Minute,
				HardTimeout:        30 * time.Minute,
				PollInterval:       time.Second,
				PollIntervalJitter: 500 * time.Millisecond,
			},
		},
		ModelPool: map[string]ModelKindConfig{
			"text":          {RequestIntervalMS: 200, RetryBudget: 3},
			"vision":        {RequestIntervalMS: 500, RetryBudget: 3},
			"deep_thinking": {RequestIntervalMS: 1000, RetryBudget: 2},
			"embedding":     {RequestIntervalMS: 100, RetryBudget: 3},
		},
		JobHardTimeout: 30 * time.Minute,
		JobSoftTimeout: 25 * time.Minute,
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} occurrences in raw YAML text
// before parsing, the hand-rolled overlay this repository uses instead of a
// templating dependency.
func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if len(groups) > 2 && len(groups[2]) > 2 {
			return groups[2][2:] // strip ":-"
		}
		return []byte("")
	})
}

// Load reads the YAML file at path, expands environment variable
// references, and merges it over Defaults(). A missing file is not an
// error — the caller gets pure defaults, useful for local dev.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	cfg.configDir = path

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fromFile Config
	if err := yaml.Unmarshal(expandEnv(raw), &fromFile); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, &fromFile, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merging %s over defaults: %w", path, err)
	}
	return cfg, nil
}

// ConfigDir returns the path Config was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Queue returns the named queue's config, falling back to the zero value
// (which callers should treat as "unconfigured queue") if absent.
func (c *Config) Queue(name string) (QueueConfig, bool) {
	q, ok := c.Queues[name]
	return q, ok
}

// ModelKindPool returns the named model kind's pool config, or the zero
// value if absent.
func (c *Config) ModelKindPool(kind string) (ModelKindConfig, bool) {
	m, ok := c.ModelPool[kind]
	return m, ok
}
