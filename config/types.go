// Package config provides configuration management for stagehand applications
package config

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/najoast/stagehand/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Slog maps the level onto slog. Trace and fatal sit one step below debug
// and above error respectively.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogLevelTrace:
		return slog.LevelDebug - 4
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	case LogLevelFatal:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// RestartPolicyKind names a supervisor restart policy
type RestartPolicyKind string

const (
	PolicyAlways  RestartPolicyKind = "always"
	PolicyNever   RestartPolicyKind = "never"
	PolicyWindow  RestartPolicyKind = "window"
	PolicyBackoff RestartPolicyKind = "backoff"
)

// IsValid checks if the policy kind is known
func (k RestartPolicyKind) IsValid() bool {
	switch k {
	case PolicyAlways, PolicyNever, PolicyWindow, PolicyBackoff:
		return true
	default:
		return false
	}
}

// Config represents the complete application configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Actor runtime configuration
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Custom configurations (for user-defined actors)
	Custom map[string]interface{} `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`

	// Application description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Application metadata
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Include source locations
	AddSource bool `yaml:"add_source" json:"add_source"`

	// Fields to include in every record
	Fields map[string]interface{} `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// RuntimeConfig contains actor runtime settings
type RuntimeConfig struct {
	// Default mailbox capacity
	MailboxCapacity int `yaml:"mailbox_capacity" json:"mailbox_capacity"`

	// Work units a context handles before yielding its arbiter
	Throughput int `yaml:"throughput" json:"throughput"`

	// Pin dedicated-thread pool workers to OS threads
	LockOSThread bool `yaml:"lock_os_thread" json:"lock_os_thread"`

	// Default worker count for dedicated-thread pools
	PoolWorkers int `yaml:"pool_workers" json:"pool_workers"`

	// Upper bound for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Default restart policy for supervised actors
	Supervisor SupervisorConfig `yaml:"supervisor" json:"supervisor"`
}

// SupervisorConfig selects and tunes the default restart policy
type SupervisorConfig struct {
	// Policy kind (always, never, window, backoff)
	Policy RestartPolicyKind `yaml:"policy" json:"policy"`

	// Restart limit within the window; zero means unlimited for backoff
	MaxRestarts int `yaml:"max_restarts" json:"max_restarts"`

	// Window over which restarts are counted
	Within time.Duration `yaml:"within" json:"within"`

	// First backoff delay
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`

	// Backoff ceiling
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	// Record runtime metrics
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Instrumentation scope name
	MeterName string `yaml:"meter_name" json:"meter_name"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "stagehand-app",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       true,
			Description: "stagehand application",
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stdout",
		},
		Runtime: RuntimeConfig{
			MailboxCapacity: core.DefaultMailboxCapacity,
			Throughput:      core.DefaultThroughput,
			LockOSThread:    true,
			PoolWorkers:     4,
			ShutdownTimeout: 10 * time.Second,
			Supervisor: SupervisorConfig{
				Policy:         PolicyAlways,
				MaxRestarts:    10,
				Within:         time.Minute,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     10 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			MeterName: "github.com/najoast/stagehand",
		},
		Custom: make(map[string]interface{}),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return ErrInvalidLogFormat
	}

	// Validate runtime config
	if c.Runtime.MailboxCapacity <= 0 {
		return ErrInvalidMailboxCapacity
	}
	if c.Runtime.Throughput <= 0 {
		return ErrInvalidThroughput
	}
	if c.Runtime.PoolWorkers <= 0 {
		return ErrInvalidPoolWorkers
	}
	if c.Runtime.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return c.Runtime.Supervisor.Validate()
}

// Validate checks that the selected policy has the settings it needs
func (s SupervisorConfig) Validate() error {
	if !s.Policy.IsValid() {
		return ErrInvalidRestartPolicy
	}
	switch s.Policy {
	case PolicyWindow:
		if s.MaxRestarts <= 0 || s.Within <= 0 {
			return ErrInvalidRestartLimit
		}
	case PolicyBackoff:
		if s.InitialBackoff <= 0 || s.MaxBackoff < s.InitialBackoff || s.MaxRestarts < 0 {
			return ErrInvalidBackoff
		}
	}
	return nil
}

// RestartPolicy builds the core restart policy described by the config
func (s SupervisorConfig) RestartPolicy() core.RestartPolicy {
	switch s.Policy {
	case PolicyNever:
		return core.NeverRestart{}
	case PolicyWindow:
		return core.WindowPolicy{MaxRestarts: s.MaxRestarts, Within: s.Within}
	case PolicyBackoff:
		return core.BackoffPolicy{
			Initial:     s.InitialBackoff,
			Max:         s.MaxBackoff,
			MaxRestarts: s.MaxRestarts,
			Within:      s.Within,
		}
	default:
		return core.AlwaysRestart{}
	}
}

// SystemConfig translates the runtime settings into a core.SystemConfig
func (c *Config) SystemConfig(logger *slog.Logger, meter metric.Meter) core.SystemConfig {
	return core.SystemConfig{
		Name:            c.App.Name,
		Logger:          logger,
		MailboxCapacity: c.Runtime.MailboxCapacity,
		Throughput:      c.Runtime.Throughput,
		LockOSThread:    c.Runtime.LockOSThread,
		RestartPolicy:   c.Runtime.Supervisor.RestartPolicy(),
		Meter:           meter,
	}
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}

// Clone returns a deep copy of the maps in c
func (c *Config) Clone() *Config {
	out := *c
	if c.App.Metadata != nil {
		out.App.Metadata = make(map[string]string, len(c.App.Metadata))
		for k, v := range c.App.Metadata {
			out.App.Metadata[k] = v
		}
	}
	if c.Log.Fields != nil {
		out.Log.Fields = make(map[string]interface{}, len(c.Log.Fields))
		for k, v := range c.Log.Fields {
			out.Log.Fields[k] = v
		}
	}
	if c.Custom != nil {
		out.Custom = make(map[string]interface{}, len(c.Custom))
		for k, v := range c.Custom {
			out.Custom[k] = v
		}
	}
	return &out
}
