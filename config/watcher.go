// Package config provides configuration watching and hot-reload functionality
package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DefaultDebounce collapses bursts of writes into one reload
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a configuration file and reloads it when it changes
type Watcher struct {
	configFile string
	loader     *Loader
	logger     *slog.Logger
	debounce   time.Duration

	config   *Config
	configMu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	callbacks   []ConfigChangeCallback
	callbacksMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// ConfigChangeCallback is called when configuration changes
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// WatcherOption tunes a Watcher
type WatcherOption func(*Watcher)

// WithLogger sets the watcher's logger
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the quiet period before a reload
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher and loads the initial configuration
func NewWatcher(configFile string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if _, err := formatOf(configFile); err != nil {
		return nil, err
	}
	if loader == nil {
		loader = NewLoader()
	}

	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", configFile)
	}

	config, err := loader.LoadFromFile(abs)
	if err != nil {
		return nil, errors.WithMessage(err, "load initial config")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(ErrConfigWatchError, err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		configFile: abs,
		loader:     loader,
		logger:     slog.Default(),
		debounce:   DefaultDebounce,
		config:     config,
		fsWatcher:  fsWatcher,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "config-watcher", "file", abs)
	return w, nil
}

// Start begins watching. The parent directory is watched so that editors
// which replace the file by rename are still observed.
func (w *Watcher) Start() error {
	var err error
	w.startOnce.Do(func() {
		if err = w.fsWatcher.Add(filepath.Dir(w.configFile)); err != nil {
			err = errors.Wrap(ErrConfigWatchError, err.Error())
			return
		}
		w.wg.Add(1)
		go w.watchLoop()
	})
	return err
}

// Stop stops watching and waits for the watch loop to exit
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.cancel()
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

// File returns the watched path
func (w *Watcher) File() string {
	return w.configFile
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback for configuration changes
func (w *Watcher) OnConfigChange(callback ConfigChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload reloads the configuration immediately
func (w *Watcher) Reload() error {
	return w.reloadConfig()
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configFile {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce.Reset(w.debounce)
			} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Warn("config file removed or renamed")
			}

		case <-debounce.C:
			if err := w.reloadConfig(); err != nil {
				w.logger.Error("config reload failed", "error", err)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// reloadConfig keeps the previous configuration when the new one is invalid
func (w *Watcher) reloadConfig() error {
	newConfig, err := w.loader.LoadFromFile(w.configFile)
	if err != nil {
		return err
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	w.logger.Info("configuration reloaded")
	w.notifyCallbacks(oldConfig, newConfig)
	return nil
}

// notifyCallbacks runs callbacks in registration order
func (w *Watcher) notifyCallbacks(oldConfig, newConfig *Config) {
	w.callbacksMu.RLock()
	callbacks := make([]ConfigChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config change callback panicked", "panic", r)
				}
			}()
			cb(oldConfig, newConfig)
		}()
	}
}
