// Package bootstrap provides application implementation
package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/najoast/stagehand/config"
	"github.com/najoast/stagehand/core"
)

// ErrAlreadyRunning is returned by Run on a running application
var ErrAlreadyRunning = errors.New("application is already running")

type serviceEntry struct {
	name    string
	service Service
	deps    []string
}

type options struct {
	cfg        *config.Config
	configFile string
	loader     *config.Loader
	logger     *slog.Logger
	meter      metric.Meter
	signals    bool
	services   []serviceEntry
}

// Option configures an application
type Option func(*options)

// WithConfig uses cfg as is instead of loading one
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads path and watches it for changes
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithLoader replaces the default configuration loader
func WithLoader(loader *config.Loader) Option {
	return func(o *options) { o.loader = loader }
}

// WithLogger uses logger instead of one built from the log config
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMeter records runtime metrics on meter
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithSignals controls whether Run stops on SIGINT and SIGTERM. It is on
// by default.
func WithSignals(enabled bool) Option {
	return func(o *options) { o.signals = enabled }
}

// WithService registers an extra service. Services that create actors
// should depend on "actor-system".
func WithService(name string, service Service, deps ...string) Option {
	return func(o *options) {
		o.services = append(o.services, serviceEntry{name: name, service: service, deps: deps})
	}
}

// DefaultApplication implements the Application interface
type DefaultApplication struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	system    *core.System
	lifecycle *DefaultLifecycleManager
	signals   bool

	mutex   sync.Mutex
	running bool
}

// NewApplication loads configuration, builds the logger and the actor
// system, and registers the core services.
func NewApplication(opts ...Option) (*DefaultApplication, error) {
	o := options{signals: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loader == nil {
		o.loader = config.NewLoader()
	}

	cfg, watcher, err := loadConfig(&o)
	if err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	app := &DefaultApplication{cfg: cfg, signals: o.signals, logCloser: nopCloser{}}
	cleanup := func() {
		if watcher != nil {
			watcher.Stop()
		}
		app.logCloser.Close()
	}

	var level *slog.LevelVar
	if o.logger != nil {
		app.logger = o.logger
	} else {
		logger, lv, closer, err := config.NewLogger(cfg.Log)
		if err != nil {
			cleanup()
			return nil, &ApplicationError{Operation: "configure", Err: err}
		}
		app.logger, level, app.logCloser = logger, lv, closer
	}
	app.logger = app.logger.With("app", cfg.App.Name)

	meter := o.meter
	if meter == nil && cfg.Metrics.Enabled {
		meter = otel.Meter(cfg.Metrics.MeterName)
	}

	app.system, err = core.NewSystem(cfg.SystemConfig(app.logger, meter))
	if err != nil {
		cleanup()
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	app.lifecycle = NewLifecycleManager(app.logger)
	app.lifecycle.SetTimeout(cfg.Runtime.ShutdownTimeout)

	register := func(name string, svc Service, deps ...string) error {
		if err := app.lifecycle.Register(name, svc, deps...); err != nil {
			cleanup()
			return &ApplicationError{Operation: "register", Service: name, Err: err}
		}
		return nil
	}

	if err := register("actor-system", NewActorSystemService(app.system)); err != nil {
		return nil, err
	}
	if watcher != nil {
		svc := NewConfigWatcherService(watcher, level, app.system, app.logger)
		svc.events = app.lifecycle
		if err := register(svc.Name(), svc, "actor-system"); err != nil {
			return nil, err
		}
	}
	for _, entry := range o.services {
		if err := register(entry.name, entry.service, entry.deps...); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// loadConfig resolves the configuration source. A config file gets a
// watcher so that later edits are picked up.
func loadConfig(o *options) (*config.Config, *config.Watcher, error) {
	if o.cfg != nil {
		if err := o.cfg.Validate(); err != nil {
			return nil, nil, errors.Wrap(config.ErrConfigValidateError, err.Error())
		}
		return o.cfg, nil, nil
	}
	if o.configFile == "" {
		cfg, err := o.loader.AutoLoad()
		return cfg, nil, err
	}

	watcher, err := config.NewWatcher(o.configFile, o.loader, config.WithLogger(o.logger))
	if err != nil {
		return nil, nil, err
	}
	return watcher.GetConfig(), watcher, nil
}

// Run starts every service and blocks until ctx is done, a termination
// signal arrives, or the actor system is stopped from inside. It then shuts
// down within the configured shutdown timeout.
func (app *DefaultApplication) Run(ctx context.Context) error {
	app.mutex.Lock()
	if app.running {
		app.mutex.Unlock()
		return ErrAlreadyRunning
	}
	app.running = true
	app.mutex.Unlock()

	if app.signals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	if err := app.lifecycle.Start(ctx); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return err
	}
	app.logger.Info("application started", "services", app.lifecycle.Services())

	select {
	case <-ctx.Done():
		app.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	case <-app.system.Done():
		app.logger.Info("actor system exited", "code", app.system.ExitCode())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.Runtime.ShutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

// Shutdown stops every service in reverse start order
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	app.mutex.Unlock()

	err := app.lifecycle.Stop(ctx)
	app.logger.Info("application stopped", "code", app.system.ExitCode())
	if cerr := app.logCloser.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close log output")
	}
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ExitCode returns the code the actor system was stopped with
func (app *DefaultApplication) ExitCode() int {
	return app.system.ExitCode()
}

// System returns the actor system
func (app *DefaultApplication) System() *core.System {
	return app.system
}

// Config returns the configuration the application was built from
func (app *DefaultApplication) Config() *config.Config {
	return app.cfg
}

// Logger returns the application logger
func (app *DefaultApplication) Logger() *slog.Logger {
	return app.logger
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() LifecycleManager {
	return app.lifecycle
}
