package core

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const maxRestartHistory = 64

// supervisor owns one consumer slot of a route. It creates the context for
// the slot and decides what happens when that context terminates. Every
// context has one; unsupervised actors simply never restart.
type supervisor struct {
	arb         *Arbiter
	r           *route
	slot        *slot
	factory     Factory
	opts        ActorOptions
	supervised  bool
	ownsArbiter bool

	// owned by the arbiter goroutine
	history []time.Time

	retired atomic.Bool
}

func (s *supervisor) policy() RestartPolicy {
	if !s.supervised {
		return NeverRestart{}
	}
	if s.opts.RestartPolicy != nil {
		return s.opts.RestartPolicy
	}
	return s.arb.sys.RestartPolicy()
}

func (s *supervisor) spawn(restarted bool) error {
	c := newContext(s, restarted)
	s.slot.ctx.Store(c)
	return s.arb.attach(c)
}

func (s *supervisor) terminated(c *Context, reason exitReason, fault error) {
	switch reason {
	case exitFault:
		if !isRestartable(fault) {
			s.retire()
			return
		}
		restart, delay := s.policy().Decide(fault, s.history)
		if !restart {
			if s.supervised {
				c.logger.Warn("restart policy gave up", "restarts", len(s.history))
			}
			s.retire()
			return
		}
		if delay <= 0 {
			s.restart()
			return
		}
		c.logger.Info("actor restart scheduled", "delay", delay)
		s.arb.pending[s] = struct{}{}
		s.arb.after(delay, func() {
			if _, ok := s.arb.pending[s]; !ok {
				return
			}
			delete(s.arb.pending, s)
			s.restart()
		})
	case exitRestart:
		s.restart()
	default:
		s.retire()
	}
}

func (s *supervisor) restart() {
	s.history = append(s.history, time.Now())
	if n := len(s.history); n > maxRestartHistory {
		s.history = s.history[n-maxRestartHistory:]
	}
	s.r.restarts.Inc()
	s.arb.sys.metrics.restarted(s.r.name)
	s.arb.logger.Info("actor restarting", "actor", s.r.name, "slot", s.slot.index)

	if err := s.spawn(true); err != nil {
		s.arb.logger.Warn("actor restart failed", "actor", s.r.name, "error", err)
		s.retire()
	}
}

func (s *supervisor) retire() {
	if !s.retired.CompareAndSwap(false, true) {
		return
	}
	s.r.retire()
	if s.ownsArbiter {
		s.arb.Stop()
	}
}

// Start runs an unsupervised actor on arb and returns its first address.
// A fault stops the actor for good and cancels its pending requests.
func Start(arb *Arbiter, factory Factory, opts ActorOptions) (*Address, error) {
	return start(arb, factory, opts, false)
}

// StartSupervised runs an actor on arb under a supervisor. When a handler
// or hook panics, the supervisor consults the restart policy and builds a
// replacement instance with factory. Addresses and queued messages carry
// over to the replacement.
func StartSupervised(arb *Arbiter, factory Factory, opts ActorOptions) (*Address, error) {
	return start(arb, factory, opts, true)
}

func start(arb *Arbiter, factory Factory, opts ActorOptions, supervised bool) (*Address, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	r := newRoute(arb.sys, opts.Name, arb.sys.capacity(opts), 1)
	s := &supervisor{
		arb:        arb,
		r:          r,
		slot:       r.slots[0],
		factory:    factory,
		opts:       opts,
		supervised: supervised,
	}

	addr := newAddress(r)
	if err := s.spawn(false); err != nil {
		addr.Release()
		s.retire()
		return nil, errors.Wrapf(err, "start %s", r.name)
	}
	return addr, nil
}
