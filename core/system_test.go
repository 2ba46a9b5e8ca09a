package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsExitCode(t *testing.T) {
	sys, err := NewSystem(SystemConfig{Logger: quietLogger()})
	require.NoError(t, err)

	addr, err := Start(sys.Arbiter(), counterFactory(nil), ActorOptions{})
	require.NoError(t, err)

	code := make(chan int, 1)
	go func() { code <- sys.Run() }()

	n, err := Call[int](callCtx(t), addr, Inc{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, sys.Stopping())
	sys.Stop(3)
	sys.Stop(5)
	assert.True(t, sys.Stopping())
	assert.Equal(t, 3, sys.ExitCode())

	select {
	case c := <-code:
		assert.Equal(t, 3, c)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	<-sys.Done()
	waitDone(t, addr)
	assert.ErrorIs(t, addr.TrySend(Inc{}), ErrMailboxClosed)
}

func TestShutdownStopsActors(t *testing.T) {
	sys, err := NewSystem(SystemConfig{Logger: quietLogger()})
	require.NoError(t, err)
	sys.Start()

	log := &events{}
	addr, err := StartSupervised(sys.Arbiter(), counterFactory(log), ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()

	_, err = Call[int](callCtx(t), addr, Inc{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, sys.Shutdown(ctx))

	waitDone(t, addr)
	assert.Equal(t, []string{"started"}, log.snapshot(),
		"shutdown drops the context without stopping hooks or a restart")
}

func TestNewArbiter(t *testing.T) {
	sys := newTestSystem(t)

	io, err := sys.NewArbiter("io")
	require.NoError(t, err)
	assert.Equal(t, "io", io.Name())
	assert.Same(t, sys, io.System())

	_, err = sys.NewArbiter("io")
	assert.ErrorIs(t, err, ErrNameTaken)

	anon, err := sys.NewArbiter("")
	require.NoError(t, err)
	assert.Equal(t, "arbiter-1", anon.Name())
	assert.Equal(t, []string{"arbiter-1", "io", "main"}, sys.Arbiters())

	addr, err := Start(io, counterFactory(nil), ActorOptions{})
	require.NoError(t, err)
	defer addr.Release()
	n, err := Call[int](callCtx(t), addr, Inc{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, io.Len())

	ran := make(chan struct{})
	require.NoError(t, io.Execute(func() { close(ran) }))
	<-ran

	io.Stop()
	<-io.Done()
	waitDone(t, addr)
	assert.ErrorIs(t, io.Execute(func() {}), ErrArbiterStopped)

	_, err = Start(io, counterFactory(nil), ActorOptions{})
	assert.ErrorIs(t, err, ErrArbiterStopped)
	assert.Equal(t, []string{"arbiter-1", "main"}, sys.Arbiters())
}

func TestExecuteSurvivesPanic(t *testing.T) {
	sys := newTestSystem(t)

	require.NoError(t, sys.Arbiter().Execute(func() { panic("bad task") }))
	ran := make(chan struct{})
	require.NoError(t, sys.Arbiter().Execute(func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(waitFor):
		t.Fatal("arbiter stopped after a panicking task")
	}
}

func TestArbiterIsCooperative(t *testing.T) {
	sys := newTestSystem(t)
	first, err := Start(sys.Arbiter(), counterFactory(nil), ActorOptions{})
	require.NoError(t, err)
	defer first.Release()
	second, err := Start(sys.Arbiter(), counterFactory(nil), ActorOptions{})
	require.NoError(t, err)
	defer second.Release()

	block := newBlock()
	require.NoError(t, first.TrySend(block))
	<-block.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = Call[int](ctx, second, Get{})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "actors sharing an arbiter never run in parallel")

	close(block.release)
	_, err = Call[int](callCtx(t), second, Get{})
	require.NoError(t, err)
}

func TestSystemStoppedRejectsArbiters(t *testing.T) {
	sys, err := NewSystem(SystemConfig{Logger: quietLogger()})
	require.NoError(t, err)
	sys.Stop(0)

	_, err = sys.NewArbiter("late")
	assert.ErrorIs(t, err, ErrSystemStopped)
}

func TestIndependentSystems(t *testing.T) {
	a := newTestSystem(t)
	b, err := NewSystem(SystemConfig{Name: "other", Logger: quietLogger()})
	require.NoError(t, err)
	b.Start()

	addrA, err := Start(a.Arbiter(), counterFactory(nil), ActorOptions{})
	require.NoError(t, err)
	defer addrA.Release()
	addrB, err := Start(b.Arbiter(), counterFactory(nil), ActorOptions{})
	require.NoError(t, err)
	defer addrB.Release()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	waitDone(t, addrB)

	n, err := Call[int](callCtx(t), addrA, Inc{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "other", b.Name())
}

func TestSystemDefaults(t *testing.T) {
	sys, err := NewSystem(SystemConfig{})
	require.NoError(t, err)

	assert.Equal(t, "stagehand", sys.Name())
	assert.Equal(t, DefaultMailboxCapacity, sys.capacity(ActorOptions{}))
	assert.Equal(t, 4, sys.capacity(ActorOptions{MailboxCapacity: 4}))
	assert.Equal(t, AlwaysRestart{}, sys.RestartPolicy())
	assert.NotNil(t, sys.Logger())
	assert.NotNil(t, sys.Registry())
	sys.Stop(0)
}
