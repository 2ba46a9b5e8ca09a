package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestLifecycleOnLastRelease(t *testing.T) {
	sys := newTestSystem(t)
	log := &events{}
	addr, err := Start(sys.Arbiter(), counterFactory(log), ActorOptions{})
	require.NoError(t, err)

	n, err := Call[int](callCtx(t), addr, Inc{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	addr.Release()
	waitDone(t, addr)

	assert.Equal(t, []string{"started", "stopping(false)", "stopped"}, log.snapshot())
}

func TestStopSignalBeatsQueuedMessages(t *testing.T) {
	sys := newTestSystem(t)
	log := &events{}
	handled := atomic.NewInt64(0)
	addr, err := Start(sys.Arbiter(), func(*Context) Actor {
		return &counter{log: log, handled: handled}
	}, ActorOptions{MailboxCapacity: 8})
	require.NoError(t, err)
	defer addr.Release()

	block := newBlock()
	require.NoError(t, addr.TrySend(block))
	<-block.entered

	for i := 0; i < 4; i++ {
		require.NoError(t, addr.TrySend(Inc{}))
	}
	pending := make(chan error, 1)
	go func() {
		_, err := Call[int](context.Background(), addr, Inc{})
		pending <- err
	}()
	require.Eventually(t, func() bool {
		return addr.Stats().MailboxLen == 5
	}, waitFor, time.Millisecond)

	require.NoError(t, addr.Stop())
	close(block.release)
	waitDone(t, addr)

	assert.Equal(t, int64(0), handled.Load())
	assert.ErrorIs(t, <-pending, ErrCancelled)
	assert.Equal(t, []string{"started", "stopping(true)", "stopped"}, log.snapshot())
}

func TestStoppingContinueResumes(t *testing.T) {
	sys := newTestSystem(t)
	log := &events{}
	refusals := atomic.NewInt64(1)
	addr, err := Start(sys.Arbiter(), func(*Context) Actor {
		return &counter{log: log, stopAns: func(bool) StopAction {
			if refusals.Dec() >= 0 {
				return StopContinue
			}
			return StopProceed
		}}
	}, ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	require.NoError(t, addr.Stop())
	require.Eventually(t, func() bool {
		return log.count("stopping(true)") == 1
	}, waitFor, time.Millisecond)

	n, err := Call[int](callCtx(t), addr, Inc{})
	require.NoError(t, err, "a refused stop leaves the actor running")
	assert.Equal(t, 1, n)

	require.NoError(t, addr.Stop())
	waitDone(t, addr)
	assert.Equal(t, []string{"started", "stopping(true)", "stopping(true)", "stopped"}, log.snapshot())
}

// draining refuses to stop while a background computation is running.
type draining struct {
	log     *events
	release chan struct{}
}

func (a *draining) Register(*Handlers) {}

func (a *draining) Started(c *Context) {
	Spawn(c, func(ctx context.Context) (string, error) {
		select {
		case <-a.release:
			return "flushed", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}, func(_ *Context, v string, err error) {
		a.log.add("task %s %v", v, err)
	})
}

func (a *draining) Stopping(_ *Context, explicit bool) StopAction {
	a.log.add("stopping(%v)", explicit)
	if a.log.count("task flushed <nil>") == 0 {
		return StopContinue
	}
	return StopProceed
}

func (a *draining) Stopped(*Context) {
	a.log.add("stopped")
}

func TestStoppingContinueWaitsForComputations(t *testing.T) {
	sys := newTestSystem(t)
	log := &events{}
	release := make(chan struct{})
	addr, err := Start(sys.Arbiter(), func(*Context) Actor {
		return &draining{log: log, release: release}
	}, ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	require.NoError(t, addr.Stop())
	require.Eventually(t, func() bool {
		return addr.Stats().State == StateStopping
	}, waitFor, time.Millisecond)

	close(release)
	waitDone(t, addr)

	assert.Equal(t, []string{
		"stopping(true)",
		"task flushed <nil>",
		"stopping(true)",
		"stopped",
	}, log.snapshot())
}

type Tick struct {
	Returns[struct{}]
	N int
}

type Ticks struct {
	Returns[[]int]
}

type Schedule struct {
	Returns[Token]
	N     int
	Delay time.Duration
}

type CancelTimer struct {
	Returns[bool]
	Token Token
}

type Every struct {
	Returns[Token]
	Period time.Duration
}

type Echo struct {
	Returns[struct{}]
	N int
}

// ticker exercises notifications and timers.
type ticker struct {
	ticks []int
}

func (a *ticker) Register(h *Handlers) {
	Handle(h, func(_ *Context, m Tick) (struct{}, error) {
		a.ticks = append(a.ticks, m.N)
		return struct{}{}, nil
	})
	Handle(h, func(_ *Context, _ Ticks) ([]int, error) {
		return append([]int(nil), a.ticks...), nil
	})
	Handle(h, func(c *Context, m Schedule) (Token, error) {
		return c.NotifyLater(Tick{N: m.N}, m.Delay), nil
	})
	Handle(h, func(c *Context, m CancelTimer) (bool, error) {
		return c.Cancel(m.Token), nil
	})
	Handle(h, func(c *Context, m Every) (Token, error) {
		n := 100
		return c.RunInterval(m.Period, func(c *Context) {
			n++
			a.ticks = append(a.ticks, n)
		}), nil
	})
	Handle(h, func(c *Context, m Echo) (struct{}, error) {
		c.Notify(Tick{N: m.N})
		c.Notify(Tick{N: m.N + 1})
		return struct{}{}, nil
	})
}

func startTicker(t *testing.T) *Address {
	t.Helper()
	sys := newTestSystem(t)
	addr, err := Start(sys.Arbiter(), func(*Context) Actor { return &ticker{} }, ActorOptions{})
	require.NoError(t, err)
	t.Cleanup(addr.Release)
	return addr
}

func ticks(t *testing.T, addr *Address) []int {
	t.Helper()
	v, err := Call[[]int](callCtx(t), addr, Ticks{})
	require.NoError(t, err)
	return v
}

func TestNotify(t *testing.T) {
	addr := startTicker(t)

	_, err := Call[struct{}](callCtx(t), addr, Echo{N: 1})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, ticks(t, addr))
}

func TestNotifyLaterAndCancel(t *testing.T) {
	addr := startTicker(t)

	_, err := Call[Token](callCtx(t), addr, Schedule{N: 1, Delay: 20 * time.Millisecond})
	require.NoError(t, err)
	late, err := Call[Token](callCtx(t), addr, Schedule{N: 2, Delay: 40 * time.Millisecond})
	require.NoError(t, err)
	_, err = Call[Token](callCtx(t), addr, Schedule{N: 3, Delay: time.Millisecond})
	require.NoError(t, err)

	cancelled, err := Call[bool](callCtx(t), addr, CancelTimer{Token: late})
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.Eventually(t, func() bool {
		return len(ticks(t, addr)) == 2
	}, waitFor, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []int{3, 1}, ticks(t, addr))

	again, err := Call[bool](callCtx(t), addr, CancelTimer{Token: late})
	require.NoError(t, err)
	assert.False(t, again)
}

func TestRunInterval(t *testing.T) {
	addr := startTicker(t)

	tok, err := Call[Token](callCtx(t), addr, Every{Period: 5 * time.Millisecond})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(ticks(t, addr)) >= 3
	}, waitFor, 5*time.Millisecond)

	ok, err := Call[bool](callCtx(t), addr, CancelTimer{Token: tok})
	require.NoError(t, err)
	require.True(t, ok)

	stopped := ticks(t, addr)
	time.Sleep(30 * time.Millisecond)
	got := ticks(t, addr)
	assert.Equal(t, stopped, got)
	for i, v := range got {
		assert.Equal(t, 101+i, v)
	}
}

func TestIntervalDoesNotKeepActorAlive(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := Start(sys.Arbiter(), func(*Context) Actor { return &ticker{} }, ActorOptions{})
	require.NoError(t, err)

	_, err = Call[Token](callCtx(t), addr, Every{Period: time.Millisecond})
	require.NoError(t, err)

	addr.Release()
	waitDone(t, addr)
}

type Load struct {
	Returns[struct{}]
}

// loader pauses its mailbox while a computation runs.
type loader struct {
	gate  chan struct{}
	value string
	count int
}

func (a *loader) Register(h *Handlers) {
	Handle(h, func(c *Context, _ Load) (struct{}, error) {
		Wait(c, func(ctx context.Context) (string, error) {
			<-a.gate
			return "loaded", nil
		}, func(_ *Context, v string, _ error) {
			a.value = v
		})
		return struct{}{}, nil
	})
	Handle(h, func(_ *Context, _ Inc) (int, error) {
		a.count++
		return a.count, nil
	})
	Handle(h, func(_ *Context, _ Get) (int, error) {
		if a.value == "" {
			return -1, nil
		}
		return a.count, nil
	})
}

func TestWaitPausesMailbox(t *testing.T) {
	sys := newTestSystem(t)
	gate := make(chan struct{})
	addr, err := Start(sys.Arbiter(), func(*Context) Actor { return &loader{gate: gate} }, ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	_, err = Call[struct{}](callCtx(t), addr, Load{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = Call[int](ctx, addr, Inc{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	n, err := Call[int](callCtx(t), addr, Get{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the queued Inc ran after the computation resumed the context")
}

type Fetch struct {
	Returns[string]
	Key string
}

type fetcher struct {
	gate chan struct{}
}

func (a *fetcher) Register(h *Handlers) {
	HandleAsync(h, func(_ *Context, m Fetch) func(ctx context.Context) (string, error) {
		key := m.Key
		return func(ctx context.Context) (string, error) {
			select {
			case <-a.gate:
				return "value:" + key, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	})
	Handle(h, func(_ *Context, m Double) (int, error) {
		return m.X * 2, nil
	})
}

func TestHandleAsync(t *testing.T) {
	sys := newTestSystem(t)
	gate := make(chan struct{})
	addr, err := Start(sys.Arbiter(), func(*Context) Actor { return &fetcher{gate: gate} }, ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	got := make(chan string, 1)
	go func() {
		v, err := Call[string](context.Background(), addr, Fetch{Key: "a"})
		assert.NoError(t, err)
		got <- v
	}()

	// the actor keeps serving while the fetch is in flight
	n, err := Call[int](callCtx(t), addr, Double{X: 4})
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	close(gate)
	select {
	case v := <-got:
		assert.Equal(t, "value:a", v)
	case <-time.After(waitFor):
		t.Fatal("async response not delivered")
	}
}

func TestHandleAsyncCancelledOnStop(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := Start(sys.Arbiter(), func(*Context) Actor { return &fetcher{gate: make(chan struct{})} }, ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	done := make(chan error, 1)
	go func() {
		_, err := Call[string](context.Background(), addr, Fetch{Key: "a"})
		done <- err
	}()
	require.Eventually(t, func() bool {
		return addr.Stats().MessagesProcessed == 1
	}, waitFor, time.Millisecond)

	require.NoError(t, addr.Stop())
	assert.ErrorIs(t, <-done, ErrCancelled)
	waitDone(t, addr)
}

func TestUnsupervisedFault(t *testing.T) {
	sys := newTestSystem(t)
	log := &events{}
	addr, err := Start(sys.Arbiter(), counterFactory(log), ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	_, err = Call[struct{}](callCtx(t), addr, Boom{})
	assert.ErrorIs(t, err, ErrCancelled)
	waitDone(t, addr)

	assert.ErrorIs(t, addr.TrySend(Inc{}), ErrMailboxClosed)
	assert.Equal(t, []string{"started"}, log.snapshot(), "a faulted actor skips its stop hooks")
}

func TestNilActorFactory(t *testing.T) {
	sys := newTestSystem(t)

	_, err := Start(sys.Arbiter(), nil, ActorOptions{})
	assert.ErrorIs(t, err, ErrNilFactory)

	addr, err := StartSupervised(sys.Arbiter(), func(*Context) Actor { return nil }, ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()
	waitDone(t, addr)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
