package core

import (
	"context"
	"sync"
)

// controlSignal is a queued control message. slot addresses one consumer of
// a shared mailbox; anySlot may be taken by whichever consumer polls first.
type controlSignal struct {
	sig  signal
	slot int
}

const anySlot = -1

// mailbox is a bounded multi-producer FIFO of envelopes plus an unbounded
// control sub-queue. Consumers are the contexts attached to the owning route.
type mailbox struct {
	mu       sync.Mutex
	buf      []*envelope
	head     int
	size     int
	control  []controlSignal
	closed   bool
	closedCh chan struct{}

	// notFull is an edge-triggered token handed to one producer waiting
	// for capacity.
	notFull chan struct{}

	// notify wakes the consumers after an enqueue.
	notify func()
}

func newMailbox(capacity int, notify func()) *mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &mailbox{
		buf:      make([]*envelope, capacity),
		closedCh: make(chan struct{}),
		notFull:  make(chan struct{}, 1),
		notify:   notify,
	}
}

func (m *mailbox) capacity() int {
	return len(m.buf)
}

// tryPush enqueues env or fails with ErrMailboxFull or ErrMailboxClosed.
func (m *mailbox) tryPush(env *envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	if m.size == len(m.buf) {
		m.mu.Unlock()
		return ErrMailboxFull
	}
	m.buf[(m.head+m.size)%len(m.buf)] = env
	m.size++
	spare := m.size < len(m.buf)
	m.mu.Unlock()

	if spare {
		m.signalNotFull()
	}
	m.notify()
	return nil
}

// push enqueues env, waiting for capacity until ctx is done.
func (m *mailbox) push(ctx context.Context, env *envelope) error {
	for {
		err := m.tryPush(env)
		if err != ErrMailboxFull {
			return err
		}
		select {
		case <-m.notFull:
		case <-m.closedCh:
			return ErrMailboxClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pushSignal appends a control signal. Signals ignore the capacity bound.
func (m *mailbox) pushSignal(sig signal, slot int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	m.control = append(m.control, controlSignal{sig: sig, slot: slot})
	m.mu.Unlock()

	m.notify()
	return nil
}

// popSignal takes the oldest signal addressed to slot or to any slot.
func (m *mailbox) popSignal(slot int) (signal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, cs := range m.control {
		if cs.slot == slot || cs.slot == anySlot {
			m.control = append(m.control[:i], m.control[i+1:]...)
			return cs.sig, true
		}
	}
	return 0, false
}

func (m *mailbox) pop() (*envelope, bool) {
	m.mu.Lock()
	if m.size == 0 {
		m.mu.Unlock()
		return nil, false
	}
	env := m.buf[m.head]
	m.buf[m.head] = nil
	m.head = (m.head + 1) % len(m.buf)
	m.size--
	m.mu.Unlock()

	m.signalNotFull()
	return env, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// close rejects further pushes and returns the envelopes that were never
// dequeued so the caller can cancel them.
func (m *mailbox) close() []*envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closedCh)

	drained := make([]*envelope, 0, m.size)
	for m.size > 0 {
		drained = append(drained, m.buf[m.head])
		m.buf[m.head] = nil
		m.head = (m.head + 1) % len(m.buf)
		m.size--
	}
	m.control = nil
	return drained
}

func (m *mailbox) signalNotFull() {
	select {
	case m.notFull <- struct{}{}:
	default:
	}
}
