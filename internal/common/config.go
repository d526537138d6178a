package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Backend     BackendConfig   `toml:"backend"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Jobs        JobsConfig      `toml:"jobs"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BackendConfig describes the vision backend the console drives.
type BackendConfig struct {
	BaseURL string `toml:"base_url"` // e.g. "http://127.0.0.1:2076"
	Timeout string `toml:"timeout"`  // per-request timeout, e.g. "10s"
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`

	// MaxRunHistory caps persisted run records; older records are pruned
	// on startup. Zero disables pruning.
	MaxRunHistory int `toml:"max_run_history"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// JobsConfig contains orchestration tuning for batch jobs.
type JobsConfig struct {
	PollInterval  string            `toml:"poll_interval"`  // default progress poll interval, e.g. "500ms"
	PollIntervals map[string]string `toml:"poll_intervals"` // per-kind overrides, e.g. kfold_sort = "1s"
}

// SchedulerConfig enables cron-triggered job starts.
type SchedulerConfig struct {
	Enabled bool           `toml:"enabled"`
	Jobs    []ScheduledJob `toml:"jobs"`
}

// ScheduledJob fires one job kind on a cron schedule.
type ScheduledJob struct {
	Kind     string                 `toml:"kind"`
	Schedule string                 `toml:"schedule"` // cron expression
	Payload  map[string]interface{} `toml:"payload"`  // optional start payload
}

type WebSocketConfig struct {
	ProgressThrottle string `toml:"progress_throttle"` // min interval between job_progress broadcasts, e.g. "250ms"
}

// NewDefaultConfig returns the configuration defaults applied before any file
// or environment override.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:2076",
			Timeout: "10s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/pillops.db",
			},
			MaxRunHistory: 500,
		},
		Jobs: JobsConfig{
			PollInterval: "500ms",
			PollIntervals: map[string]string{
				"kfold_sort": "1s",
			},
		},
		WebSocket: WebSocketConfig{
			ProgressThrottle: "250ms",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PILLOPS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PILLOPS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("PILLOPS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if url := os.Getenv("PILLOPS_BACKEND_URL"); url != "" {
		config.Backend.BaseURL = url
	}

	if level := os.Getenv("PILLOPS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("PILLOPS_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// BackendTimeout parses the backend request timeout, falling back to 10s.
func (c *Config) BackendTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Backend.Timeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// DefaultPollInterval parses the default progress poll interval, falling back to 500ms.
func (c *Config) DefaultPollInterval() time.Duration {
	if d, err := time.ParseDuration(c.Jobs.PollInterval); err == nil && d > 0 {
		return d
	}
	return 500 * time.Millisecond
}

// PollIntervalFor returns the poll interval for a job kind, honoring per-kind
// overrides from [jobs.poll_intervals].
func (c *Config) PollIntervalFor(kind string) time.Duration {
	if raw, ok := c.Jobs.PollIntervals[kind]; ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return c.DefaultPollInterval()
}

// ProgressThrottle parses the WebSocket progress broadcast throttle, falling
// back to 250ms. Zero disables throttling.
func (c *Config) ProgressThrottle() time.Duration {
	if c.WebSocket.ProgressThrottle == "" {
		return 250 * time.Millisecond
	}
	if d, err := time.ParseDuration(c.WebSocket.ProgressThrottle); err == nil && d >= 0 {
		return d
	}
	return 250 * time.Millisecond
}
