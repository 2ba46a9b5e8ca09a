package core

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Arbiter is a cooperative single-goroutine executor. It polls the contexts
// attached to it, fires their timers and runs closures submitted with
// Execute. Exactly one piece of actor logic runs at a time per arbiter, and
// it runs until it returns: there is no preemption between handlers.
type Arbiter struct {
	name       string
	sys        *System
	logger     *slog.Logger
	lockThread bool

	mu       sync.Mutex
	ready    []*Context
	execs    []func()
	contexts map[*Context]struct{}
	stopped  bool

	// owned by the arbiter goroutine
	timers  timers
	pending map[*supervisor]struct{}

	running  atomic.Bool
	wakeCh   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newArbiter(sys *System, name string, lockThread bool) *Arbiter {
	return &Arbiter{
		name:       name,
		sys:        sys,
		logger:     sys.logger.With("arbiter", name),
		lockThread: lockThread,
		contexts:   make(map[*Context]struct{}),
		pending:    make(map[*supervisor]struct{}),
		wakeCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Name returns the arbiter name.
func (a *Arbiter) Name() string {
	return a.name
}

// System returns the system the arbiter belongs to.
func (a *Arbiter) System() *System {
	return a.sys
}

// Execute runs fn on the arbiter goroutine.
func (a *Arbiter) Execute(fn func()) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrArbiterStopped
	}
	a.execs = append(a.execs, fn)
	a.mu.Unlock()

	a.signal()
	return nil
}

// Stop asks the arbiter to exit its loop. Contexts still attached are
// stopped without running their stopping hooks, and supervisors do not
// restart them.
func (a *Arbiter) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()
		close(a.stopCh)
	})
}

// Done is closed when the arbiter loop has exited and every context it
// hosted has stopped.
func (a *Arbiter) Done() <-chan struct{} {
	return a.doneCh
}

// Len returns the number of contexts attached to the arbiter.
func (a *Arbiter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.contexts)
}

func (a *Arbiter) attach(c *Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrArbiterStopped
	}
	a.contexts[c] = struct{}{}
	a.mu.Unlock()

	a.sys.metrics.contextStarted(c.r.name)
	c.wake()
	return nil
}

func (a *Arbiter) detach(c *Context) {
	a.mu.Lock()
	_, ok := a.contexts[c]
	delete(a.contexts, c)
	a.mu.Unlock()

	if ok {
		a.sys.metrics.contextStopped(c.r.name)
	}
}

func (a *Arbiter) schedule(c *Context) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.ready = append(a.ready, c)
	a.mu.Unlock()

	a.signal()
}

func (a *Arbiter) signal() {
	select {
	case a.wakeCh <- struct{}{}:
	default:
	}
}

// after registers a timer. It must be called on the arbiter goroutine.
func (a *Arbiter) after(d time.Duration, fn func()) *timer {
	return a.timers.add(d, fn)
}

func (a *Arbiter) take() ([]*Context, []func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ready, execs := a.ready, a.execs
	a.ready, a.execs = nil, nil
	return ready, execs
}

// run drives the arbiter until Stop. It returns false if the loop was
// already running.
func (a *Arbiter) run() bool {
	if !a.running.CompareAndSwap(false, true) {
		return false
	}
	if a.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer close(a.doneCh)
	defer a.teardown()

	a.logger.Debug("arbiter started")

	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()

	for {
		select {
		case <-a.stopCh:
			return true
		default:
		}

		for _, t := range a.timers.due(time.Now()) {
			a.invoke(t.fn)
		}

		ready, execs := a.take()
		for _, fn := range execs {
			a.invoke(fn)
		}
		for _, c := range ready {
			c.poll()
		}
		if len(ready) > 0 || len(execs) > 0 {
			continue
		}

		var fire <-chan time.Time
		if at, ok := a.timers.next(); ok {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(time.Until(at))
			fire = idle.C
		}

		select {
		case <-a.wakeCh:
		case <-fire:
		case <-a.stopCh:
			return true
		}
	}
}

func (a *Arbiter) invoke(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			a.logger.Error("arbiter task panicked",
				"panic", v,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

func (a *Arbiter) teardown() {
	a.mu.Lock()
	a.stopped = true
	contexts := make([]*Context, 0, len(a.contexts))
	for c := range a.contexts {
		contexts = append(contexts, c)
	}
	a.ready, a.execs = nil, nil
	a.mu.Unlock()

	for _, c := range contexts {
		c.shutdown()
	}
	for s := range a.pending {
		delete(a.pending, s)
		s.retire()
	}
	a.timers.reset()

	a.sys.forget(a)
	a.logger.Debug("arbiter stopped", "contexts", len(contexts))
}
