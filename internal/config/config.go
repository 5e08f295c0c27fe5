// Package config holds the configuration structs for the tdist server,
// worker, and CLI, with optional YAML file and .env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the tdist server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (":memory:" for testing)

	// ExpectedNodes is the number of workers the run waits for before the
	// initial distribution.
	ExpectedNodes int `yaml:"expected_nodes"`
	// Policy selects the scheduling policy: "bounded-queue" or "classic".
	Policy string `yaml:"policy"`

	MinQueueSize  int           `yaml:"min_queue_size"`
	MaxQueueSize  int           `yaml:"max_queue_size"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// WorkerConfig holds configuration for a tdist worker process.
type WorkerConfig struct {
	ServerURL string `yaml:"server_url"` // Base URL of the server (default "http://localhost:8080")
	Name      string `yaml:"name"`       // Node name; hostname-pid when empty
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// ListCommand prints one test ID per line on stdout.
	ListCommand string `yaml:"list_command"`
	// Filter is an optional JavaScript expression evaluated per test ID
	// with id, file and name bindings; items evaluating falsy are dropped.
	Filter string `yaml:"filter"`
	// RunCommand executes one test item; every "{id}" is replaced by the
	// test ID. Exit code zero means the item passed.
	RunCommand string `yaml:"run_command"`

	PollInterval time.Duration `yaml:"poll_interval"`
}

// CLIConfig holds configuration for the tdist CLI.
type CLIConfig struct {
	ServerURL string        `yaml:"server_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
		DBPath:        ":memory:",
		ExpectedNodes: 1,
		Policy:        "bounded-queue",
		MinQueueSize:  2,
		MaxQueueSize:  2,
		SlowThreshold: 100 * time.Millisecond,
	}
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ServerURL:    "http://localhost:8080",
		LogLevel:     "info",
		LogFormat:    "text",
		PollInterval: 200 * time.Millisecond,
	}
}

// DefaultCLIConfig returns sensible defaults.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		ServerURL: "http://localhost:8080",
		Timeout:   10 * time.Second,
	}
}

// LoadEnv loads a .env file into the process environment if one exists.
// Values already set in the environment win.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadFile merges a YAML config file into cfg. Missing files are not an
// error so the flag can default to a well-known path.
func LoadFile(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides server fields from TDIST_* environment variables.
func (c *ServerConfig) ApplyEnv() {
	envString("TDIST_ADDR", &c.Addr)
	envString("TDIST_LOG_LEVEL", &c.LogLevel)
	envString("TDIST_LOG_FORMAT", &c.LogFormat)
	envString("TDIST_DB_PATH", &c.DBPath)
	envString("TDIST_POLICY", &c.Policy)
	envInt("TDIST_EXPECTED_NODES", &c.ExpectedNodes)
	envInt("TDIST_MIN_QUEUE_SIZE", &c.MinQueueSize)
	envInt("TDIST_MAX_QUEUE_SIZE", &c.MaxQueueSize)
	envDuration("TDIST_SLOW_THRESHOLD", &c.SlowThreshold)
}

// ApplyEnv overrides worker fields from TDIST_* environment variables.
func (c *WorkerConfig) ApplyEnv() {
	envString("TDIST_SERVER_URL", &c.ServerURL)
	envString("TDIST_NODE_NAME", &c.Name)
	envString("TDIST_LOG_LEVEL", &c.LogLevel)
	envString("TDIST_LOG_FORMAT", &c.LogFormat)
	envString("TDIST_LIST_COMMAND", &c.ListCommand)
	envString("TDIST_FILTER", &c.Filter)
	envString("TDIST_RUN_COMMAND", &c.RunCommand)
	envDuration("TDIST_POLL_INTERVAL", &c.PollInterval)
}

// Validate checks invariants the scheduler depends on.
func (c ServerConfig) Validate() error {
	if c.ExpectedNodes < 1 {
		return fmt.Errorf("expected_nodes must be at least 1, got %d", c.ExpectedNodes)
	}
	if c.MinQueueSize < 1 || c.MaxQueueSize < 1 {
		return fmt.Errorf("queue sizes must be at least 1, got min=%d max=%d", c.MinQueueSize, c.MaxQueueSize)
	}
	if c.SlowThreshold < 0 {
		return fmt.Errorf("slow_threshold must not be negative, got %s", c.SlowThreshold)
	}
	switch c.Policy {
	case "bounded-queue", "classic":
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}

// Validate checks that the worker can actually run tests.
func (c WorkerConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.ListCommand == "" {
		return fmt.Errorf("list_command is required")
	}
	if c.RunCommand == "" {
		return fmt.Errorf("run_command is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
