// Package bootstrap provides service lifecycle management
package bootstrap

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Lifecycle errors
var (
	ErrEmptyServiceName   = errors.New("service name cannot be empty")
	ErrNilService         = errors.New("service cannot be nil")
	ErrServiceExists      = errors.New("service already registered")
	ErrAlreadyStarted     = errors.New("lifecycle manager already started")
	ErrAlreadyStopping    = errors.New("lifecycle manager already stopping")
	ErrMissingDependency  = errors.New("dependency not registered")
	ErrCircularDependency = errors.New("circular dependency detected")
)

// DefaultLifecycleManager implements the LifecycleManager interface
type DefaultLifecycleManager struct {
	// services holds all registered services
	services map[string]Service

	// dependencies tracks service dependencies
	dependencies map[string][]string

	// startOrder tracks the order services were started
	startOrder []string

	// mutex protects concurrent access
	mutex sync.RWMutex

	// started indicates if the lifecycle manager has been started
	started bool

	// stopping indicates if the lifecycle manager is shutting down
	stopping bool

	// eventChan for broadcasting lifecycle events
	eventChan chan LifecycleEvent

	// listeners for lifecycle events
	listeners   []func(LifecycleEvent)
	listenersMu sync.RWMutex

	// timeout for service operations
	timeout time.Duration

	logger *slog.Logger
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger *slog.Logger) *DefaultLifecycleManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultLifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		eventChan:    make(chan LifecycleEvent, 100),
		timeout:      30 * time.Second,
		logger:       logger.With("component", "lifecycle"),
	}
}

// Register registers a service with the lifecycle manager
func (lm *DefaultLifecycleManager) Register(name string, service Service, deps ...string) error {
	if name == "" {
		return ErrEmptyServiceName
	}
	if service == nil {
		return ErrNilService
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return errors.Wrapf(ErrAlreadyStarted, "register %s", name)
	}
	if _, exists := lm.services[name]; exists {
		return errors.Wrap(ErrServiceExists, name)
	}

	lm.services[name] = service
	lm.dependencies[name] = append([]string(nil), deps...)

	lm.broadcastEvent(LifecycleEvent{
		Type:    EventServiceRegistered,
		Service: name,
		Data:    map[string]interface{}{"dependencies": deps},
	})
	return nil
}

// Start starts all services in dependency order. When a service fails to
// start, the services already started are stopped again in reverse order.
func (lm *DefaultLifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return ErrAlreadyStarted
	}

	startOrder, err := lm.calculateStartOrder()
	if err != nil {
		return &ApplicationError{Operation: "start", Err: err}
	}

	lm.broadcastEvent(LifecycleEvent{
		Type: EventLifecycleStarting,
		Data: map[string]interface{}{"order": startOrder},
	})

	for _, serviceName := range startOrder {
		service := lm.services[serviceName]

		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarting, Service: serviceName})

		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStartFailed, Service: serviceName, Error: err})
			lm.logger.Error("service failed to start", "service", serviceName, "error", err)
			lm.stopStarted(ctx)
			return &ApplicationError{Operation: "start", Service: serviceName, Err: err}
		}

		lm.startOrder = append(lm.startOrder, serviceName)
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarted, Service: serviceName})
		lm.logger.Debug("service started", "service", serviceName)
	}

	lm.started = true
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStarted})
	return nil
}

// Stop stops all services in reverse start order
func (lm *DefaultLifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	if lm.stopping {
		return ErrAlreadyStopping
	}
	lm.stopping = true

	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStopping})
	err := lm.stopStarted(ctx)

	lm.started = false
	lm.stopping = false
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStopped})
	return err
}

// stopStarted stops every started service, newest first, and returns the
// last failure
func (lm *DefaultLifecycleManager) stopStarted(ctx context.Context) error {
	var lastError error

	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		serviceName := lm.startOrder[i]
		service := lm.services[serviceName]

		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopping, Service: serviceName})

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Stop(stopCtx)
		cancel()

		if err != nil {
			lastError = &ApplicationError{Operation: "stop", Service: serviceName, Err: err}
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopFailed, Service: serviceName, Error: err})
			lm.logger.Error("service failed to stop", "service", serviceName, "error", err)
		} else {
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopped, Service: serviceName})
		}
	}

	lm.startOrder = nil
	return lastError
}

// Health returns the health status of all services
func (lm *DefaultLifecycleManager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mutex.RLock()
	services := make(map[string]Service, len(lm.services))
	for name, service := range lm.services {
		services[name] = service
	}
	lm.mutex.RUnlock()

	health := make(map[string]HealthStatus, len(services))
	for name, service := range services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		if status.LastCheck.IsZero() {
			status.LastCheck = time.Now()
		}
		health[name] = status
	}
	return health
}

// Services returns all registered service names
func (lm *DefaultLifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns a channel for lifecycle events. Events are dropped when
// nobody drains it.
func (lm *DefaultLifecycleManager) Events() <-chan LifecycleEvent {
	return lm.eventChan
}

// AddListener adds a lifecycle event listener
func (lm *DefaultLifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()
	lm.listeners = append(lm.listeners, listener)
}

// calculateStartOrder orders services so that dependencies start first.
// Ties are broken by name.
func (lm *DefaultLifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}
	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, errors.Wrapf(ErrMissingDependency, "%s requires %s", service, dep)
			}
			graph[dep] = append(graph[dep], service)
			inDegree[service]++
		}
	}

	var queue []string
	for service, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, service)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var ready []string
		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(lm.services) {
		return nil, ErrCircularDependency
	}
	return result, nil
}

// broadcastEvent sends an event to the channel and to every listener
func (lm *DefaultLifecycleManager) broadcastEvent(event LifecycleEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case lm.eventChan <- event:
	default:
	}

	lm.listenersMu.RLock()
	listeners := append([]func(LifecycleEvent){}, lm.listeners...)
	lm.listenersMu.RUnlock()

	for _, listener := range listeners {
		go func(l func(LifecycleEvent)) {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Error("lifecycle listener panicked", "event", event.Type, "panic", r)
				}
			}()
			l(event)
		}(listener)
	}
}

// SetTimeout sets the timeout for service operations
func (lm *DefaultLifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *DefaultLifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	return lm.started
}

// GetService returns a registered service by name
func (lm *DefaultLifecycleManager) GetService(name string) (Service, bool) {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	service, exists := lm.services[name]
	return service, exists
}
