package core

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

type exitReason int

const (
	exitStopped exitReason = iota
	exitRestart
	exitFault
	exitShutdown
)

func (r exitReason) String() string {
	switch r {
	case exitStopped:
		return "stopped"
	case exitRestart:
		return "restart"
	case exitFault:
		return "fault"
	case exitShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// item is a timer, stream subscription or background computation owned by
// a context. Items with keepAlive hold off an autonomous stop and keep a
// Stopping context from finishing.
type item struct {
	cancel    func()
	onCancel  func()
	pauses    bool
	keepAlive bool
}

// Context drives one actor instance: it owns the instance, dequeues its
// mailbox and runs its lifecycle. Apart from Address, ID, Name and State,
// Context methods must only be called from the actor's own handlers and
// hooks, which all run on the owning arbiter.
type Context struct {
	id         string
	sup        *supervisor
	arb        *Arbiter
	r          *route
	slot       *slot
	logger     *slog.Logger
	throughput int
	restarted  bool
	createdAt  time.Time

	state     atomic.Int32
	scheduled atomic.Bool
	processed atomic.Uint64

	// owned by the arbiter goroutine
	actor            Actor
	handlers         *Handlers
	stopRequested    bool
	explicit         bool
	restartRequested bool
	items            map[Token]*item
	nextToken        Token
	paused           int
	notified         []any
	current          *envelope

	mu     sync.Mutex
	events []func()

	base   context.Context
	cancel context.CancelFunc
}

func newContext(s *supervisor, restarted bool) *Context {
	id := uuid.NewString()
	base, cancel := context.WithCancel(context.Background())
	throughput := s.opts.Throughput
	if throughput <= 0 {
		throughput = s.arb.sys.cfg.Throughput
	}
	return &Context{
		id:         id,
		sup:        s,
		arb:        s.arb,
		r:          s.r,
		slot:       s.slot,
		logger:     s.arb.logger.With("actor", s.r.name, "id", id),
		throughput: throughput,
		restarted:  restarted,
		createdAt:  time.Now(),
		items:      make(map[Token]*item),
		base:       base,
		cancel:     cancel,
	}
}

// ID returns the identifier of this context. A restarted actor gets a new
// context ID while its address ID stays the same.
func (c *Context) ID() string {
	return c.id
}

// Name returns the actor name.
func (c *Context) Name() string {
	return c.r.name
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	return State(c.state.Load())
}

// Arbiter returns the arbiter driving this context.
func (c *Context) Arbiter() *Arbiter {
	return c.arb
}

// System returns the owning actor system.
func (c *Context) System() *System {
	return c.arb.sys
}

// Logger returns a logger annotated with the actor name and context ID.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Context returns a context.Context that is cancelled when this context
// stops.
func (c *Context) Context() context.Context {
	return c.base
}

// Address returns a new handle to this actor. It counts as a live address
// until released.
func (c *Context) Address() *Address {
	return newAddress(c.r)
}

// Restarted reports whether this instance replaced a previous one.
func (c *Context) Restarted() bool {
	return c.restarted
}

// Stop requests a graceful stop. The stopping hook is consulted with
// explicit set to true.
func (c *Context) Stop() {
	c.stopRequested = true
	c.explicit = true
	c.wake()
}

// Notify queues msg for this actor, bypassing the mailbox and its capacity.
func (c *Context) Notify(msg any) {
	c.notified = append(c.notified, msg)
	c.wake()
}

// NotifyLater delivers msg to this actor after d.
func (c *Context) NotifyLater(msg any, d time.Duration) Token {
	return c.RunLater(d, func(c *Context) {
		c.Notify(msg)
	})
}

// RunLater runs fn on this actor after d.
func (c *Context) RunLater(d time.Duration, fn func(c *Context)) Token {
	it := &item{keepAlive: true}
	tok := c.track(it)
	t := c.arb.after(d, func() {
		c.post(func() {
			if c.items[tok] != it {
				return
			}
			delete(c.items, tok)
			fn(c)
		})
	})
	it.cancel = t.stop
	return tok
}

// RunInterval runs fn every d until the token is cancelled or the actor
// stops. Intervals do not keep an otherwise idle actor alive.
func (c *Context) RunInterval(d time.Duration, fn func(c *Context)) Token {
	it := &item{}
	tok := c.track(it)
	var arm func()
	arm = func() {
		t := c.arb.after(d, func() {
			c.post(func() {
				if c.items[tok] != it {
					return
				}
				fn(c)
				if c.items[tok] == it {
					arm()
				}
			})
		})
		it.cancel = t.stop
	}
	arm()
	return tok
}

// Cancel stops a timer, stream subscription or computation. It returns false
// if the token is unknown or already finished.
func (c *Context) Cancel(tok Token) bool {
	it, ok := c.items[tok]
	if !ok {
		return false
	}
	c.drop(tok, it)
	if it.onCancel != nil {
		it.onCancel()
	}
	c.wake()
	return true
}

func (c *Context) track(it *item) Token {
	c.nextToken++
	c.items[c.nextToken] = it
	if it.pauses {
		c.paused++
	}
	return c.nextToken
}

func (c *Context) drop(tok Token, it *item) {
	delete(c.items, tok)
	if it.pauses {
		c.paused--
	}
	if it.cancel != nil {
		it.cancel()
	}
}

func (c *Context) keepAlive() bool {
	for _, it := range c.items {
		if it.keepAlive {
			return true
		}
	}
	return false
}

// post queues fn to run on the arbiter during this context's next poll.
// It is safe to call from any goroutine.
func (c *Context) post(fn func()) {
	c.mu.Lock()
	if c.State() == StateStopped {
		c.mu.Unlock()
		return
	}
	c.events = append(c.events, fn)
	c.mu.Unlock()

	c.wake()
}

func (c *Context) popEvent() func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) == 0 {
		return nil
	}
	fn := c.events[0]
	c.events[0] = nil
	c.events = c.events[1:]
	return fn
}

func (c *Context) hasEvents() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events) > 0
}

func (c *Context) wake() {
	if c.State() == StateStopped {
		return
	}
	if c.scheduled.CompareAndSwap(false, true) {
		c.arb.schedule(c)
	}
}

// poll runs one scheduling pass. At most throughput units of work are
// done before the context yields to the other contexts of its arbiter.
func (c *Context) poll() {
	c.scheduled.Store(false)
	if c.State() == StateStopped {
		return
	}

	defer func() {
		if v := recover(); v != nil {
			c.fail(&PanicError{Value: v, Stack: debug.Stack()})
		}
	}()

	if c.State() == StateCreated {
		if err := c.start(); err != nil {
			c.fail(err)
			return
		}
	}

	for n := 0; n < c.throughput; n++ {
		if c.State() == StateStopped {
			return
		}
		if !c.step() {
			c.evaluate()
			return
		}
	}
	c.wake()
}

func (c *Context) start() error {
	actor := c.sup.factory(c)
	if actor == nil {
		return errors.Wrapf(ErrNilActor, "actor %s", c.r.name)
	}
	c.actor = actor
	c.handlers = newHandlers()
	actor.Register(c.handlers)
	c.state.Store(int32(StateRunning))

	if c.restarted {
		if h, ok := actor.(RestartingHook); ok {
			h.Restarting(c)
		}
	}
	if h, ok := actor.(StartedHook); ok {
		h.Started(c)
	}
	c.logger.Debug("actor started", "restarted", c.restarted)
	return nil
}

// step performs one unit of work: a control signal, then a pending stop
// request, then an event (timer, stream item, finished computation), then
// a notification, then a mailbox envelope.
func (c *Context) step() bool {
	running := c.State() == StateRunning
	if running {
		if sig, ok := c.r.mb.popSignal(c.slot.index); ok {
			c.handleSignal(sig)
			return true
		}
		if c.stopRequested {
			c.stopRequested = false
			c.beginStop()
			return true
		}
	}

	if fn := c.popEvent(); fn != nil {
		fn()
		return true
	}
	if !running || c.State() != StateRunning {
		return false
	}

	if len(c.notified) > 0 {
		msg := c.notified[0]
		c.notified[0] = nil
		c.notified = c.notified[1:]
		c.dispatch(newEnvelope(msg, false))
		return true
	}
	if c.paused == 0 {
		if env, ok := c.r.mb.pop(); ok {
			c.dispatch(env)
			return true
		}
	}
	return false
}

func (c *Context) handleSignal(sig signal) {
	switch sig {
	case signalStop:
		c.explicit = true
		c.beginStop()
	case signalRestart:
		if !c.sup.supervised {
			c.logger.Debug("restart ignored for unsupervised actor")
			return
		}
		c.explicit = true
		c.restartRequested = true
		c.beginStop()
	}
}

func (c *Context) dispatch(env *envelope) {
	entry, ok := c.handlers.lookup(env.kind)
	if !ok {
		c.logger.Debug("unhandled message", "type", env.kind)
		env.resolve(nil, errors.Wrapf(ErrUnhandledMessage, "%v", env.kind))
		return
	}

	c.processed.Inc()
	c.arb.sys.metrics.dispatched(c.r.name)

	c.current = env
	if entry.sync != nil {
		v, err := entry.sync(c, env.msg)
		c.current = nil
		env.resolve(v, err)
		return
	}

	run := entry.async(c, env.msg)
	c.current = nil
	c.spawnTask(false, run, env.resolve, env.cancel)
}

// evaluate is called when a pass runs out of work.
func (c *Context) evaluate() {
	switch c.State() {
	case StateRunning:
		if c.r.addrs.Load() > 0 || c.r.mb.len() > 0 || len(c.notified) > 0 {
			return
		}
		if c.keepAlive() || c.hasEvents() {
			return
		}
		c.explicit = false
		c.beginStop()
	case StateStopping:
		if !c.keepAlive() {
			c.consultStopping()
		}
	}
}

func (c *Context) beginStop() {
	c.state.Store(int32(StateStopping))
	c.consultStopping()
}

// consultStopping asks the stopping hook whether to proceed. A context told
// to continue stays in Stopping while it has pending work and is asked
// again once that work is done; with nothing pending it resumes running.
func (c *Context) consultStopping() {
	if h, ok := c.actor.(StoppingHook); ok && h.Stopping(c, c.explicit) == StopContinue {
		if c.keepAlive() {
			return
		}
		c.state.Store(int32(StateRunning))
		c.explicit = false
		c.restartRequested = false
		return
	}

	reason := exitStopped
	if c.restartRequested {
		reason = exitRestart
	}
	c.terminate(reason, nil)
}

func (c *Context) fail(err error) {
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}

	attrs := []any{"error", err}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, "stack", string(pe.Stack))
	}
	c.logger.Error("actor fault", attrs...)
	c.arb.sys.metrics.fault(c.r.name)

	c.terminate(exitFault, err)
}

// shutdown terminates the context as part of arbiter teardown.
func (c *Context) shutdown() {
	c.terminate(exitShutdown, nil)
}

func (c *Context) terminate(reason exitReason, fault error) {
	if c.State() == StateStopped {
		return
	}

	items := c.items
	c.items = make(map[Token]*item)
	for _, it := range items {
		if it.cancel != nil {
			it.cancel()
		}
		if it.onCancel != nil {
			it.onCancel()
		}
	}
	c.paused = 0
	c.notified = nil
	c.cancel()

	if reason != exitFault && reason != exitShutdown {
		if h, ok := c.actor.(StoppedHook); ok {
			c.safely("stopped", func() { h.Stopped(c) })
		}
	}

	c.mu.Lock()
	c.state.Store(int32(StateStopped))
	c.events = nil
	c.mu.Unlock()

	c.arb.detach(c)
	c.logger.Debug("actor stopped", "reason", reason)
	c.sup.terminated(c, reason, fault)
}

func (c *Context) safely(hook string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("hook panicked",
				"hook", hook,
				"panic", v,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
