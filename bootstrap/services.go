package bootstrap

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/najoast/stagehand/config"
	"github.com/najoast/stagehand/core"
)

// ActorSystemService runs a core.System as a managed service
type ActorSystemService struct {
	system *core.System
}

// NewActorSystemService wraps sys
func NewActorSystemService(sys *core.System) *ActorSystemService {
	return &ActorSystemService{system: sys}
}

func (s *ActorSystemService) Name() string {
	return "actor-system"
}

// Start runs the system's main arbiter in the background
func (s *ActorSystemService) Start(ctx context.Context) error {
	if s.system.Stopping() {
		return core.ErrSystemStopped
	}
	s.system.Start()
	return nil
}

// Stop shuts the system down and waits for every arbiter within ctx
func (s *ActorSystemService) Stop(ctx context.Context) error {
	return s.system.Shutdown(ctx)
}

func (s *ActorSystemService) Health(ctx context.Context) (HealthStatus, error) {
	data := map[string]interface{}{
		"arbiters": s.system.Arbiters(),
		"services": s.system.Registry().Names(),
	}

	select {
	case <-s.system.Done():
		data["exit_code"] = s.system.ExitCode()
		return HealthStatus{State: HealthStopped, Message: "actor system stopped", Data: data}, nil
	default:
	}

	if s.system.Stopping() {
		return HealthStatus{State: HealthStopping, Message: "actor system stopping", Data: data}, nil
	}
	return HealthStatus{State: HealthHealthy, Message: "actor system running", Data: data}, nil
}

// ConfigWatcherService reloads the configuration file and applies the
// settings that can change at runtime: the log level and the default
// restart policy.
type ConfigWatcherService struct {
	watcher *config.Watcher
	level   *slog.LevelVar
	system  *core.System
	logger  *slog.Logger
	events  *DefaultLifecycleManager
}

// NewConfigWatcherService applies reloads from watcher to level and sys.
// level may be nil when the logger was supplied by the caller.
func NewConfigWatcherService(watcher *config.Watcher, level *slog.LevelVar, sys *core.System, logger *slog.Logger) *ConfigWatcherService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcherService{
		watcher: watcher,
		level:   level,
		system:  sys,
		logger:  logger.With("component", "config"),
	}
}

func (s *ConfigWatcherService) Name() string {
	return "config-watcher"
}

func (s *ConfigWatcherService) Start(ctx context.Context) error {
	s.watcher.OnConfigChange(s.apply)
	if err := s.watcher.Start(); err != nil {
		return errors.WithMessage(err, "start config watcher")
	}
	return nil
}

func (s *ConfigWatcherService) Stop(ctx context.Context) error {
	return s.watcher.Stop()
}

func (s *ConfigWatcherService) Health(ctx context.Context) (HealthStatus, error) {
	cfg := s.watcher.GetConfig()
	return HealthStatus{
		State:   HealthHealthy,
		Message: "watching " + s.watcher.File(),
		Data: map[string]interface{}{
			"log_level":      cfg.Log.Level.String(),
			"restart_policy": string(cfg.Runtime.Supervisor.Policy),
		},
	}, nil
}

// apply pushes the reloadable parts of newConfig into the running system.
// Other changes take effect on the next start.
func (s *ConfigWatcherService) apply(oldConfig, newConfig *config.Config) {
	if s.level != nil && oldConfig.Log.Level != newConfig.Log.Level {
		s.level.Set(newConfig.Log.Level.Slog())
		s.logger.Info("log level changed", "from", oldConfig.Log.Level, "to", newConfig.Log.Level)
	}
	if oldConfig.Runtime.Supervisor != newConfig.Runtime.Supervisor {
		s.system.SetRestartPolicy(newConfig.Runtime.Supervisor.RestartPolicy())
		s.logger.Info("restart policy changed", "policy", newConfig.Runtime.Supervisor.Policy)
	}
	if s.events != nil {
		s.events.broadcastEvent(LifecycleEvent{Type: EventConfigReloaded, Service: s.Name()})
	}
}
