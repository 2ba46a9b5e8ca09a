// Package config provides error definitions for configuration management
package config

import "github.com/pkg/errors"

// Configuration validation errors
var (
	ErrInvalidAppName         = errors.New("invalid application name")
	ErrInvalidEnvironment     = errors.New("invalid environment")
	ErrInvalidLogLevel        = errors.New("invalid log level")
	ErrInvalidLogFormat       = errors.New("invalid log format")
	ErrInvalidMailboxCapacity = errors.New("invalid mailbox capacity")
	ErrInvalidThroughput      = errors.New("invalid throughput")
	ErrInvalidPoolWorkers     = errors.New("invalid pool worker count")
	ErrInvalidShutdownTimeout = errors.New("invalid shutdown timeout")
	ErrInvalidRestartPolicy   = errors.New("invalid restart policy")
	ErrInvalidRestartLimit    = errors.New("invalid restart limit")
	ErrInvalidBackoff         = errors.New("invalid restart backoff")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrConfigValidateError = errors.New("configuration validation error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
	ErrUnsupportedFormat   = errors.New("unsupported configuration format")
)
