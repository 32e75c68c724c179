package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the controller configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Broker       BrokerConfig       `toml:"broker"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Scaler       ScalerConfig       `toml:"scaler"`
	Database     DatabaseConfig     `toml:"database"`
	Report       ReportConfig       `toml:"report"`
	Auth         AuthConfig         `toml:"auth"`
	Logging      LoggingConfig      `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BrokerConfig selects and parameterizes the queue statistics probe.
type BrokerConfig struct {
	Mode           string `toml:"mode"`            // "management" (HTTP API) or "amqp" (passive declare)
	Host           string `toml:"host"`            // Broker hostname
	AMQPPort       int    `toml:"amqp_port"`       // AMQP port for passive-declare mode
	ManagementPort int    `toml:"management_port"` // Management API port
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	VHost          string `toml:"vhost"`
	Timeout        string `toml:"timeout"` // Per-probe timeout, e.g. "2s"
}

// ProbeTimeout returns the per-probe timeout with a 2 second fallback.
func (b BrokerConfig) ProbeTimeout() time.Duration {
	if d, err := time.ParseDuration(b.Timeout); err == nil && d > 0 {
		return d
	}
	return 2 * time.Second
}

type OrchestratorConfig struct {
	Namespace    string `toml:"namespace"`      // Namespace worker jobs run in
	Kubeconfig   string `toml:"kubeconfig"`     // Path for out-of-cluster use; in-cluster config when empty
	LogsHostPath string `toml:"logs_host_path"` // Host directory backing the shared /logs volume
	ReportURL    string `toml:"report_url"`     // Progress report endpoint injected into workers
}

// ScalerConfig parameterizes the control loop. Poll interval, idle threshold
// and burst cap are tuning knobs with production defaults; max_jobs is the
// global worker budget.
type ScalerConfig struct {
	MaxJobs       int    `toml:"max_jobs"`
	PollInterval  string `toml:"poll_interval"`  // e.g. "5s"
	IdleThreshold int    `toml:"idle_threshold"` // Consecutive idle ticks before scale-down
	BurstCap      int    `toml:"burst_cap"`      // Max launches per tick per type when bursting
	Catalog       string `toml:"catalog"`        // Path to the job-type catalog file
}

// PollDuration returns the tick interval with a 5 second fallback.
func (s ScalerConfig) PollDuration() time.Duration {
	if d, err := time.ParseDuration(s.PollInterval); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

type DatabaseConfig struct {
	Path          string `toml:"path"`           // SQLite database file
	RetentionDays int    `toml:"retention_days"` // Message audit retention; 0 disables pruning
}

// ReportConfig throttles audit ingestion so a worker storm cannot starve the
// database pool.
type ReportConfig struct {
	RateLimit int `toml:"rate_limit"` // Sustained report-message requests per second
	RateBurst int `toml:"rate_burst"` // Burst allowance
}

type AuthConfig struct {
	Enabled         bool   `toml:"enabled"`          // Require basic auth on read endpoints
	DefaultUser     string `toml:"default_user"`     // Principal seeded on first boot
	DefaultPassword string `toml:"default_password"` // Password for the seeded principal
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// NewDefaultConfig creates a configuration with default values.
// Defaults mirror the reference deployment: broker at "rabbitmq", namespace
// "default", a budget of 3 worker jobs, 5 second ticks.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8000,
			Host: "0.0.0.0",
		},
		Broker: BrokerConfig{
			Mode:           "management",
			Host:           "rabbitmq",
			AMQPPort:       5672,
			ManagementPort: 15672,
			Username:       "guest",
			Password:       "guest",
			VHost:          "/",
			Timeout:        "2s",
		},
		Orchestrator: OrchestratorConfig{
			Namespace:    "default",
			LogsHostPath: "/logs",
			ReportURL:    "http://armada:8000/report",
		},
		Scaler: ScalerConfig{
			MaxJobs:       3,
			PollInterval:  "5s",
			IdleThreshold: 6,
			BurstCap:      5,
			Catalog:       "jobs.config.yaml",
		},
		Database: DatabaseConfig{
			Path:          "./data/armada.db",
			RetentionDays: 30,
		},
		Report: ReportConfig{
			RateLimit: 200,
			RateBurst: 400,
		},
		Auth: AuthConfig{
			Enabled:         true,
			DefaultUser:     "admin",
			DefaultPassword: "admin123",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> files -> env.
// Later files override earlier files; environment variables override all
// files. A missing path list is valid and yields defaults plus env.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variables on top of file config.
// BROKER_HOST, NAMESPACE and MAX_JOBS are the deployment-contract names the
// platform charts set; ARMADA_* names cover the rest.
func applyEnvOverrides(config *Config) {
	if host := os.Getenv("BROKER_HOST"); host != "" {
		config.Broker.Host = host
	}
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		config.Orchestrator.Namespace = ns
	}
	if maxJobs := os.Getenv("MAX_JOBS"); maxJobs != "" {
		if v, err := strconv.Atoi(maxJobs); err == nil && v > 0 {
			config.Scaler.MaxJobs = v
		}
	}
	if port := os.Getenv("ARMADA_SERVER_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			config.Server.Port = v
		}
	}
	if host := os.Getenv("ARMADA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("ARMADA_DB_PATH"); path != "" {
		config.Database.Path = path
	}
	if catalog := os.Getenv("ARMADA_CATALOG"); catalog != "" {
		config.Scaler.Catalog = catalog
	}
	if level := os.Getenv("ARMADA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if reportURL := os.Getenv("ARMADA_REPORT_URL"); reportURL != "" {
		config.Orchestrator.ReportURL = reportURL
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
