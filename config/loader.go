// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "STAGEHAND"

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config

	// Environment lookup, replaceable in tests
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	paths := []string{".", "./config", "./configs", "/etc/stagehand"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".stagehand"))
	}
	return &Loader{
		searchPaths:   paths,
		envPrefix:     DefaultEnvPrefix,
		defaultConfig: DefaultConfig(),
		lookupEnv:     os.LookupEnv,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from the specified file. An empty filename
// yields the defaults with environment overrides applied.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.finish(l.defaults())
	}
	return l.LoadFromFile(filename)
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrConfigFileNotFound, "%s", filename)
		}
		return nil, errors.Wrapf(err, "read config file %s", filename)
	}
	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, errors.WithMessagef(err, "config file %s", filename)
	}
	return l.finish(config)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read configuration data")
	}
	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(config)
}

// AutoLoad automatically discovers and loads configuration
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		return l.finish(l.defaults())
	}
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(configFile)
}

// FindConfigFile returns the first configuration file on the search path
func (l *Loader) FindConfigFile() (string, error) {
	return l.findConfigFile()
}

func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"stagehand.yaml", "stagehand.yml",
		"config.yaml", "config.yml",
		"stagehand.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	return l.defaultConfig.Clone()
}

// finish applies environment overrides and validates
func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(ErrConfigValidateError, err.Error())
	}
	return config, nil
}

// parseConfig decodes data over a copy of the defaults so that omitted
// fields keep their default values.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaults()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(ErrConfigParseError, err.Error())
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(ErrConfigParseError, err.Error())
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}

	return config, nil
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	env := envReader{prefix: l.envPrefix, lookup: l.lookupEnv}
	if env.lookup == nil {
		env.lookup = os.LookupEnv
	}

	// App configuration
	env.str("APP_NAME", &config.App.Name)
	env.str("APP_VERSION", &config.App.Version)
	if val, ok := env.get("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}
	env.boolean("APP_DEBUG", &config.App.Debug)

	// Log configuration
	if val, ok := env.get("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	env.str("LOG_FORMAT", &config.Log.Format)
	env.str("LOG_OUTPUT", &config.Log.Output)
	env.boolean("LOG_ADD_SOURCE", &config.Log.AddSource)

	// Runtime configuration
	env.integer("RUNTIME_MAILBOX_CAPACITY", &config.Runtime.MailboxCapacity)
	env.integer("RUNTIME_THROUGHPUT", &config.Runtime.Throughput)
	env.boolean("RUNTIME_LOCK_OS_THREAD", &config.Runtime.LockOSThread)
	env.integer("RUNTIME_POOL_WORKERS", &config.Runtime.PoolWorkers)
	env.duration("RUNTIME_SHUTDOWN_TIMEOUT", &config.Runtime.ShutdownTimeout)

	// Supervisor configuration
	if val, ok := env.get("SUPERVISOR_POLICY"); ok {
		config.Runtime.Supervisor.Policy = RestartPolicyKind(strings.ToLower(val))
	}
	env.integer("SUPERVISOR_MAX_RESTARTS", &config.Runtime.Supervisor.MaxRestarts)
	env.duration("SUPERVISOR_WITHIN", &config.Runtime.Supervisor.Within)
	env.duration("SUPERVISOR_INITIAL_BACKOFF", &config.Runtime.Supervisor.InitialBackoff)
	env.duration("SUPERVISOR_MAX_BACKOFF", &config.Runtime.Supervisor.MaxBackoff)

	// Metrics configuration
	env.boolean("METRICS_ENABLED", &config.Metrics.Enabled)
	env.str("METRICS_METER_NAME", &config.Metrics.MeterName)

	return env.err
}

// envReader collects the first malformed variable it meets
type envReader struct {
	prefix string
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) key(name string) string {
	return e.prefix + "_" + name
}

func (e *envReader) get(name string) (string, bool) {
	val, ok := e.lookup(e.key(name))
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) str(name string, dst *string) {
	if val, ok := e.get(name); ok {
		*dst = val
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	val, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		e.fail(name, val)
		return
	}
	*dst = b
}

func (e *envReader) integer(name string, dst *int) {
	val, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		e.fail(name, val)
		return
	}
	*dst = n
}

func (e *envReader) duration(name string, dst *time.Duration) {
	val, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.fail(name, val)
		return
	}
	*dst = d
}

func (e *envReader) fail(name, val string) {
	if e.err == nil {
		e.err = errors.Wrapf(ErrEnvironmentVarError, "%s=%q", e.key(name), val)
	}
}
