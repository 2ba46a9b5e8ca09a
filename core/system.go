package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
)

// Default runtime limits.
const (
	DefaultMailboxCapacity = 16
	DefaultThroughput      = 64
)

// SystemConfig contains configuration for an actor system.
type SystemConfig struct {
	// Name identifies the system in logs
	Name string

	// Logger is used by the runtime; nil means slog.Default()
	Logger *slog.Logger

	// MailboxCapacity is the default bound of actor mailboxes
	MailboxCapacity int

	// Throughput is the default number of work units a context handles
	// before yielding its arbiter
	Throughput int

	// LockOSThread pins dedicated-thread pool workers to OS threads
	LockOSThread bool

	// RestartPolicy is the default policy for supervised actors;
	// nil means AlwaysRestart
	RestartPolicy RestartPolicy

	// Meter records runtime metrics; nil disables them
	Meter metric.Meter
}

// DefaultSystemConfig returns the default system configuration.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Name:            "stagehand",
		Logger:          slog.Default(),
		MailboxCapacity: DefaultMailboxCapacity,
		Throughput:      DefaultThroughput,
		LockOSThread:    true,
		RestartPolicy:   AlwaysRestart{},
	}
}

type policyBox struct {
	policy RestartPolicy
}

// System is an explicit registry of arbiters. It is created at process
// start and passed to whatever constructs actors, so independent systems can
// coexist in one process.
type System struct {
	cfg      SystemConfig
	logger   *slog.Logger
	metrics  *instruments
	policy   atomic.Pointer[policyBox]
	registry *Registry

	mu       sync.Mutex
	arbiters map[string]*Arbiter
	seq      int
	main     *Arbiter

	stopped  atomic.Bool
	exitCode atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

// NewSystem creates a system and its main arbiter. The main arbiter does
// not run until Run or Start is called.
func NewSystem(cfg SystemConfig) (*System, error) {
	def := DefaultSystemConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.MailboxCapacity <= 0 {
		cfg.MailboxCapacity = def.MailboxCapacity
	}
	if cfg.Throughput <= 0 {
		cfg.Throughput = def.Throughput
	}
	if cfg.RestartPolicy == nil {
		cfg.RestartPolicy = def.RestartPolicy
	}

	m, err := newInstruments(cfg.Meter)
	if err != nil {
		return nil, errors.Wrap(err, "create instruments")
	}

	s := &System{
		cfg:      cfg,
		logger:   cfg.Logger.With("system", cfg.Name),
		metrics:  m,
		arbiters: make(map[string]*Arbiter),
		done:     make(chan struct{}),
	}
	s.policy.Store(&policyBox{policy: cfg.RestartPolicy})
	s.registry = newRegistry(s)
	s.main = newArbiter(s, "main", false)
	s.arbiters[s.main.name] = s.main
	return s, nil
}

// Name returns the system name.
func (s *System) Name() string {
	return s.cfg.Name
}

// Logger returns the system logger.
func (s *System) Logger() *slog.Logger {
	return s.logger
}

// Arbiter returns the main arbiter.
func (s *System) Arbiter() *Arbiter {
	return s.main
}

// Registry returns the named address registry.
func (s *System) Registry() *Registry {
	return s.registry
}

// RestartPolicy returns the default restart policy.
func (s *System) RestartPolicy() RestartPolicy {
	return s.policy.Load().policy
}

// SetRestartPolicy replaces the default restart policy. Supervisors pick it
// up at their next fault.
func (s *System) SetRestartPolicy(p RestartPolicy) {
	if p == nil {
		p = AlwaysRestart{}
	}
	s.policy.Store(&policyBox{policy: p})
}

// NewArbiter starts an additional arbiter on its own goroutine. An empty
// name is replaced by a generated one.
func (s *System) NewArbiter(name string) (*Arbiter, error) {
	return s.spawnArbiter(name, false)
}

// Arbiters returns the names of the running arbiters.
func (s *System) Arbiters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.arbiters))
	for name := range s.arbiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *System) spawnArbiter(name string, lockThread bool) (*Arbiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return nil, ErrSystemStopped
	}
	if name == "" {
		s.seq++
		name = fmt.Sprintf("arbiter-%d", s.seq)
	}
	if _, ok := s.arbiters[name]; ok {
		return nil, errors.Wrapf(ErrNameTaken, "arbiter %s", name)
	}

	a := newArbiter(s, name, lockThread)
	s.arbiters[name] = a
	go a.run()
	return a, nil
}

func (s *System) forget(a *Arbiter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.arbiters[a.name] == a && a != s.main {
		delete(s.arbiters, a.name)
	}
}

func (s *System) capacity(opts ActorOptions) int {
	if opts.MailboxCapacity > 0 {
		return opts.MailboxCapacity
	}
	return s.cfg.MailboxCapacity
}

// Run drives the main arbiter on the calling goroutine until Stop is
// called, waits for the other arbiters to exit and returns the exit code
// passed to Stop.
func (s *System) Run() int {
	s.logger.Info("actor system running")
	if !s.main.run() {
		<-s.main.Done()
	}
	s.Stop(int(s.exitCode.Load()))
	s.wait(context.Background())

	s.logger.Info("actor system stopped", "code", s.exitCode.Load())
	s.doneOnce.Do(func() { close(s.done) })
	return int(s.exitCode.Load())
}

// Start runs the system in the background.
func (s *System) Start() {
	go s.Run()
}

// Stop asks every arbiter to exit. The first call decides the exit code
// returned by Run.
func (s *System) Stop(code int) {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.exitCode.Store(int32(code))
	s.registry.clear()

	s.mu.Lock()
	arbiters := make([]*Arbiter, 0, len(s.arbiters))
	for _, a := range s.arbiters {
		arbiters = append(arbiters, a)
	}
	s.mu.Unlock()

	for _, a := range arbiters {
		a.Stop()
	}
}

// Shutdown stops the system and waits until every arbiter has exited or
// ctx is done.
func (s *System) Shutdown(ctx context.Context) error {
	s.Stop(0)
	if err := s.wait(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Stopping reports whether Stop has been called.
func (s *System) Stopping() bool {
	return s.stopped.Load()
}

// ExitCode returns the code passed to the first Stop call.
func (s *System) ExitCode() int {
	return int(s.exitCode.Load())
}

// Done is closed when Run returns.
func (s *System) Done() <-chan struct{} {
	return s.done
}

func (s *System) wait(ctx context.Context) error {
	s.mu.Lock()
	arbiters := make([]*Arbiter, 0, len(s.arbiters))
	for _, a := range s.arbiters {
		arbiters = append(arbiters, a)
	}
	s.mu.Unlock()

	for _, a := range arbiters {
		select {
		case <-a.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
