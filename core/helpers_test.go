package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const waitFor = 2 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSystem(t *testing.T) *System {
	t.Helper()

	sys, err := NewSystem(SystemConfig{Name: t.Name(), Logger: quietLogger()})
	require.NoError(t, err)
	sys.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sys.Shutdown(ctx))
	})
	return sys
}

func waitDone(t *testing.T, addr *Address) {
	t.Helper()
	select {
	case <-addr.Done():
	case <-time.After(waitFor):
		t.Fatal("actor did not stop in time")
	}
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

// events is a concurrency-safe journal used to observe actor hooks.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, fmt.Sprintf(format, args...))
}

func (e *events) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func (e *events) count(name string) int {
	n := 0
	for _, s := range e.snapshot() {
		if s == name {
			n++
		}
	}
	return n
}

type Inc struct {
	Returns[int]
	By int
}

type Get struct {
	Returns[int]
}

type Boom struct {
	Returns[struct{}]
}

// Block parks the arbiter until release is closed.
type Block struct {
	Returns[struct{}]
	entered chan struct{}
	release chan struct{}
}

func newBlock() Block {
	return Block{entered: make(chan struct{}), release: make(chan struct{})}
}

// counter is the fixture actor used across tests.
type counter struct {
	n       int
	log     *events
	handled *atomic.Int64
	stopAns func(explicit bool) StopAction
}

func (a *counter) Register(h *Handlers) {
	Handle(h, func(_ *Context, m Inc) (int, error) {
		by := m.By
		if by == 0 {
			by = 1
		}
		a.n += by
		if a.handled != nil {
			a.handled.Inc()
		}
		return a.n, nil
	})
	Handle(h, func(_ *Context, _ Get) (int, error) {
		return a.n, nil
	})
	Handle(h, func(_ *Context, _ Boom) (struct{}, error) {
		panic("boom")
	})
	Handle(h, func(_ *Context, m Block) (struct{}, error) {
		close(m.entered)
		<-m.release
		return struct{}{}, nil
	})
}

func (a *counter) Started(*Context) {
	if a.log != nil {
		a.log.add("started")
	}
}

func (a *counter) Restarting(*Context) {
	if a.log != nil {
		a.log.add("restarting")
	}
}

func (a *counter) Stopping(_ *Context, explicit bool) StopAction {
	if a.log != nil {
		a.log.add("stopping(%v)", explicit)
	}
	if a.stopAns != nil {
		return a.stopAns(explicit)
	}
	return StopProceed
}

func (a *counter) Stopped(*Context) {
	if a.log != nil {
		a.log.add("stopped")
	}
}

func counterFactory(log *events) Factory {
	return func(*Context) Actor {
		return &counter{log: log}
	}
}
