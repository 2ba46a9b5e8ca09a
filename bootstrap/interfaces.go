// Package bootstrap provides application lifecycle management for stagehand
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/najoast/stagehand/config"
	"github.com/najoast/stagehand/core"
)

// Service represents a service that can be managed by the lifecycle manager
type Service interface {
	// Start starts the service
	Start(ctx context.Context) error

	// Stop stops the service
	Stop(ctx context.Context) error

	// Health returns the health status of the service
	Health(ctx context.Context) (HealthStatus, error)

	// Name returns the service name
	Name() string
}

// HealthStatus represents the health status of a service
type HealthStatus struct {
	// State indicates whether the service is healthy
	State HealthState `json:"state"`

	// Message provides additional information about the health status
	Message string `json:"message,omitempty"`

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time `json:"last_check,omitempty"`

	// Data contains additional health information
	Data map[string]interface{} `json:"data,omitempty"`
}

// HealthState represents the health state of a service
type HealthState string

const (
	// HealthUnknown indicates the health status is unknown
	HealthUnknown HealthState = "unknown"

	// HealthStarting indicates the service is starting up
	HealthStarting HealthState = "starting"

	// HealthHealthy indicates the service is healthy and operational
	HealthHealthy HealthState = "healthy"

	// HealthUnhealthy indicates the service is unhealthy but may recover
	HealthUnhealthy HealthState = "unhealthy"

	// HealthStopping indicates the service is shutting down
	HealthStopping HealthState = "stopping"

	// HealthStopped indicates the service has stopped
	HealthStopped HealthState = "stopped"
)

// LifecycleManager manages the lifecycle of services
type LifecycleManager interface {
	// Register registers a service with optional dependencies
	Register(name string, service Service, deps ...string) error

	// Start starts all services in dependency order
	Start(ctx context.Context) error

	// Stop stops all services in reverse start order
	Stop(ctx context.Context) error

	// Health returns the health status of all services
	Health(ctx context.Context) map[string]HealthStatus

	// Services returns all registered service names
	Services() []string

	// Events returns a channel for lifecycle events
	Events() <-chan LifecycleEvent

	// AddListener adds a lifecycle event listener
	AddListener(listener func(LifecycleEvent))
}

// Application is a configured actor system plus the services around it
type Application interface {
	// Run starts every service and blocks until ctx is done, the process
	// is signalled, or the actor system stops on its own
	Run(ctx context.Context) error

	// Shutdown stops every service gracefully
	Shutdown(ctx context.Context) error

	// System returns the actor system
	System() *core.System

	// Config returns the configuration the application was built from
	Config() *config.Config

	// Logger returns the application logger
	Logger() *slog.Logger

	// LifecycleManager returns the lifecycle manager
	LifecycleManager() LifecycleManager
}

// EventType names a lifecycle event
type EventType string

const (
	EventServiceRegistered  EventType = "service.registered"
	EventLifecycleStarting  EventType = "lifecycle.starting"
	EventServiceStarting    EventType = "service.starting"
	EventServiceStarted     EventType = "service.started"
	EventServiceStartFailed EventType = "service.start_failed"
	EventLifecycleStarted   EventType = "lifecycle.started"
	EventLifecycleStopping  EventType = "lifecycle.stopping"
	EventServiceStopping    EventType = "service.stopping"
	EventServiceStopped     EventType = "service.stopped"
	EventServiceStopFailed  EventType = "service.stop_failed"
	EventLifecycleStopped   EventType = "lifecycle.stopped"
	EventConfigReloaded     EventType = "config.reloaded"
)

// LifecycleEvent represents an event in the service lifecycle
type LifecycleEvent struct {
	Type      EventType              `json:"type"`
	Service   string                 `json:"service,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     error                  `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// ApplicationError represents an error that occurred during application lifecycle
type ApplicationError struct {
	Operation string
	Service   string
	Err       error
}

func (e *ApplicationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s failed for service %s: %v", e.Operation, e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
