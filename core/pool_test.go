package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type Work struct {
	Returns[int]
	Duration time.Duration
}

type Whoami struct {
	Returns[int64]
}

type gauge struct {
	active  atomic.Int64
	highest atomic.Int64
}

func (g *gauge) enter() {
	n := g.active.Inc()
	for {
		top := g.highest.Load()
		if n <= top || g.highest.CompareAndSwap(top, n) {
			return
		}
	}
}

// blocker handles Work by sleeping on its worker thread.
type blocker struct {
	id    int64
	g     *gauge
	count int
}

func (a *blocker) Register(h *Handlers) {
	Handle(h, func(_ *Context, m Work) (int, error) {
		a.g.enter()
		defer a.g.active.Dec()
		time.Sleep(m.Duration)
		a.count++
		return a.count, nil
	})
	Handle(h, func(_ *Context, _ Whoami) (int64, error) {
		return a.id, nil
	})
	Handle(h, func(_ *Context, _ Boom) (struct{}, error) {
		panic("worker fault")
	})
}

func blockerFactory(g *gauge, built *atomic.Int64) Factory {
	return func(*Context) Actor {
		return &blocker{id: built.Inc(), g: g}
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	sys := newTestSystem(t)
	g := &gauge{}
	built := atomic.NewInt64(0)

	const workers, jobs = 3, 9
	addr, err := StartPool(sys, workers, blockerFactory(g, built), ActorOptions{Name: "blocking"})
	require.NoError(t, err)
	defer addr.Release()

	var wg sync.WaitGroup
	completed := atomic.NewInt64(0)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Call[int](context.Background(), addr, Work{Duration: 40 * time.Millisecond})
			if assert.NoError(t, err) {
				completed.Inc()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(jobs), completed.Load())
	assert.LessOrEqual(t, g.highest.Load(), int64(workers))
	assert.GreaterOrEqual(t, g.highest.Load(), int64(2))
	assert.Equal(t, int64(workers), built.Load())
	assert.Equal(t, uint64(jobs), addr.Stats().MessagesProcessed)
}

func TestPoolWorkerFaultIsIsolated(t *testing.T) {
	sys := newTestSystem(t)
	built := atomic.NewInt64(0)
	addr, err := StartPool(sys, 2, blockerFactory(&gauge{}, built), ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	require.Eventually(t, func() bool { return built.Load() == 2 }, waitFor, time.Millisecond)

	_, err = Call[struct{}](callCtx(t), addr, Boom{})
	assert.ErrorIs(t, err, ErrCancelled)
	require.Eventually(t, func() bool { return built.Load() == 3 }, waitFor, time.Millisecond)

	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		id, err := Call[int64](callCtx(t), addr, Whoami{})
		require.NoError(t, err)
		seen[id] = true
	}
	for id := range seen {
		assert.Contains(t, []int64{1, 2, 3}, id)
	}
	assert.Equal(t, int64(1), addr.Stats().Restarts)
}

func TestPoolStop(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := StartPool(sys, 3, blockerFactory(&gauge{}, atomic.NewInt64(0)), ActorOptions{Name: "stoppable"})
	require.NoError(t, err)
	defer addr.Release()

	require.Eventually(t, func() bool { return len(sys.Arbiters()) == 4 }, waitFor, time.Millisecond)

	require.NoError(t, addr.Stop())
	waitDone(t, addr)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"main"}, sys.Arbiters())
	}, waitFor, time.Millisecond)
}

func TestPoolStopsWhenReleased(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := StartPool(sys, 2, blockerFactory(&gauge{}, atomic.NewInt64(0)), ActorOptions{})
	require.NoError(t, err)

	_, err = Call[int](callCtx(t), addr, Work{})
	require.NoError(t, err)

	addr.Release()
	waitDone(t, addr)
}

func TestPoolInvalidArguments(t *testing.T) {
	sys := newTestSystem(t)

	_, err := StartPool(sys, 0, blockerFactory(&gauge{}, atomic.NewInt64(0)), ActorOptions{})
	assert.ErrorIs(t, err, ErrInvalidWorkers)

	_, err = StartPool(sys, 2, nil, ActorOptions{})
	assert.ErrorIs(t, err, ErrNilFactory)
}

func TestPoolSpawnFailure(t *testing.T) {
	sys, err := NewSystem(SystemConfig{Logger: quietLogger()})
	require.NoError(t, err)
	sys.Stop(0)

	_, err = StartPool(sys, 2, blockerFactory(&gauge{}, atomic.NewInt64(0)), ActorOptions{})
	assert.ErrorIs(t, err, ErrSpawnFailure)
}
