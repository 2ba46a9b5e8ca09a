package core

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// slot is the indirection cell an address resolves through. A supervisor
// swaps the context stored here when it replaces a faulted actor, so
// existing addresses keep working without being re-acquired.
type slot struct {
	index int
	ctx   atomic.Pointer[Context]
}

// route is what every Address of one logical actor shares: the mailbox,
// the live address count and one slot per consumer. A plain actor has one
// slot; a dedicated-thread pool has one per worker.
type route struct {
	id   string
	name string
	sys  *System
	mb   *mailbox

	slots     []*slot
	addrs     atomic.Int64
	consumers atomic.Int32
	restarts  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func newRoute(sys *System, name string, capacity, consumers int) *route {
	id := uuid.NewString()
	if name == "" {
		name = "actor-" + id[:8]
	}
	r := &route{
		id:    id,
		name:  name,
		sys:   sys,
		slots: make([]*slot, consumers),
		done:  make(chan struct{}),
	}
	for i := range r.slots {
		r.slots[i] = &slot{index: i}
	}
	r.consumers.Store(int32(consumers))
	r.mb = newMailbox(capacity, r.wake)
	return r
}

// wake schedules every consumer currently attached to the route.
func (r *route) wake() {
	for _, s := range r.slots {
		if c := s.ctx.Load(); c != nil {
			c.wake()
		}
	}
}

// retire is called once per consumer that will not be replaced. The last
// one closes the mailbox and cancels whatever is still queued.
func (r *route) retire() {
	if r.consumers.Dec() > 0 {
		return
	}
	r.closeOnce.Do(func() {
		for _, env := range r.mb.close() {
			env.cancel()
		}
		close(r.done)
	})
}

func (r *route) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// broadcast pushes one control signal to each consumer slot.
func (r *route) broadcast(sig signal) error {
	for _, s := range r.slots {
		if err := r.mb.pushSignal(sig, s.index); err != nil {
			return err
		}
	}
	return nil
}
