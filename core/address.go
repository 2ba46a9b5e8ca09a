package core

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// Address is a handle used to send messages to an actor. Every handle counts
// towards the actor's live-address count until Release is called; an actor
// whose count drops to zero with an empty mailbox stops on its own.
//
// An Address is safe for concurrent use. Handles obtained from Clone are
// independent: releasing one does not affect the others.
type Address struct {
	r        *route
	released atomic.Bool
}

func newAddress(r *route) *Address {
	r.addrs.Inc()
	return &Address{r: r}
}

// ID returns the identifier shared by all handles of the actor.
func (a *Address) ID() string {
	return a.r.id
}

// Name returns the actor name.
func (a *Address) Name() string {
	return a.r.name
}

// Clone returns a new handle to the same actor.
func (a *Address) Clone() *Address {
	return newAddress(a.r)
}

// Release drops this handle. It is idempotent.
func (a *Address) Release() {
	if !a.released.CompareAndSwap(false, true) {
		return
	}
	if a.r.addrs.Dec() == 0 {
		a.r.wake()
	}
}

// Connected reports whether the actor can still receive messages.
func (a *Address) Connected() bool {
	return !a.r.closed()
}

// Done is closed once every consumer of the actor has reached the stopped
// state and will not be replaced.
func (a *Address) Done() <-chan struct{} {
	return a.r.done
}

// Send enqueues msg, waiting for mailbox capacity until ctx is done.
// It returns once the message is queued, not once it is handled.
func (a *Address) Send(ctx context.Context, msg any) error {
	if a.released.Load() {
		return ErrAddressReleased
	}
	return a.r.mb.push(ctx, newEnvelope(msg, false))
}

// TrySend enqueues msg without waiting. It fails with ErrMailboxFull or
// ErrMailboxClosed.
func (a *Address) TrySend(msg any) error {
	if a.released.Load() {
		return ErrAddressReleased
	}
	err := a.r.mb.tryPush(newEnvelope(msg, false))
	if err != nil {
		a.r.sys.metrics.rejected(a.r.name)
	}
	return err
}

// DoSend enqueues msg if there is room and silently drops it otherwise.
func (a *Address) DoSend(msg any) {
	if err := a.TrySend(msg); err != nil {
		a.r.sys.logger.Debug("message dropped",
			"actor", a.r.name,
			"id", a.r.id,
			"error", err,
		)
	}
}

// Stop asks every consumer of the actor to stop. The request is a control
// signal and is handled before any queued message.
func (a *Address) Stop() error {
	return a.r.broadcast(signalStop)
}

// Restart asks a supervised actor to replace itself gracefully. Unsupervised
// actors ignore the signal.
func (a *Address) Restart() error {
	return a.r.broadcast(signalRestart)
}

// Stats returns a snapshot of the actor's runtime statistics. For a pool,
// counters are summed over the workers and State reports the first worker.
func (a *Address) Stats() Stats {
	st := Stats{
		ID:         a.r.id,
		Name:       a.r.name,
		State:      StateStopped,
		MailboxLen: a.r.mb.len(),
		Addresses:  a.r.addrs.Load(),
		Restarts:   a.r.restarts.Load(),
	}
	for i, s := range a.r.slots {
		c := s.ctx.Load()
		if c == nil {
			continue
		}
		if i == 0 {
			st.State = c.State()
			st.CreatedAt = c.createdAt
		}
		st.MessagesProcessed += c.processed.Load()
	}
	return st
}

// Call sends msg and waits for the handler's response. It resolves to
// ErrCancelled when the actor stops before the message is dispatched, and
// to ctx.Err() when the caller gives up first; in the latter case a handler
// that already started still runs and its result is discarded.
func Call[R any](ctx context.Context, a *Address, msg Message[R]) (R, error) {
	var zero R
	if a.released.Load() {
		return zero, ErrAddressReleased
	}

	env := newEnvelope(msg, true)
	if err := a.r.mb.push(ctx, env); err != nil {
		return zero, err
	}

	select {
	case res := <-env.reply:
		return unpack[R](res)
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-a.r.done:
		select {
		case res := <-env.reply:
			return unpack[R](res)
		default:
			return zero, ErrCancelled
		}
	}
}

// CallTimeout is Call bounded by a timeout.
func CallTimeout[R any](a *Address, msg Message[R], timeout time.Duration) (R, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Call[R](ctx, a, msg)
}

func unpack[R any](res result) (R, error) {
	v, _ := res.value.(R)
	return v, res.err
}

// Recipient is an address narrowed to a single message type. It lets code
// that only knows about M talk to any actor handling it.
type Recipient[M Message[R], R any] struct {
	addr *Address
}

// RecipientOf wraps a clone of addr.
func RecipientOf[M Message[R], R any](addr *Address) *Recipient[M, R] {
	return &Recipient[M, R]{addr: addr.Clone()}
}

// Send is Address.Send for M.
func (r *Recipient[M, R]) Send(ctx context.Context, msg M) error {
	return r.addr.Send(ctx, msg)
}

// TrySend is Address.TrySend for M.
func (r *Recipient[M, R]) TrySend(msg M) error {
	return r.addr.TrySend(msg)
}

// DoSend is Address.DoSend for M.
func (r *Recipient[M, R]) DoSend(msg M) {
	r.addr.DoSend(msg)
}

// Call is core.Call for M.
func (r *Recipient[M, R]) Call(ctx context.Context, msg M) (R, error) {
	return Call[R](ctx, r.addr, msg)
}

// Connected reports whether the underlying actor is reachable.
func (r *Recipient[M, R]) Connected() bool {
	return r.addr.Connected()
}

// Clone returns an independent recipient for the same actor.
func (r *Recipient[M, R]) Clone() *Recipient[M, R] {
	return &Recipient[M, R]{addr: r.addr.Clone()}
}

// Release drops the recipient's handle.
func (r *Recipient[M, R]) Release() {
	r.addr.Release()
}
