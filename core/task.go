package core

import (
	"context"
	"runtime/debug"
)

// Wait runs fn off the arbiter and delivers its outcome to then on the
// arbiter. The mailbox is not dequeued until the computation finishes or is
// cancelled; timers, stream items and control signals are still handled.
func Wait[T any](c *Context, fn func(ctx context.Context) (T, error), then func(c *Context, v T, err error)) Token {
	return c.spawnTask(true, erase(fn), resume(c, then), nil)
}

// Spawn is Wait without pausing the mailbox.
func Spawn[T any](c *Context, fn func(ctx context.Context) (T, error), then func(c *Context, v T, err error)) Token {
	return c.spawnTask(false, erase(fn), resume(c, then), nil)
}

func erase[T any](fn func(ctx context.Context) (T, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

func resume[T any](c *Context, then func(c *Context, v T, err error)) func(any, error) {
	return func(v any, err error) {
		if then == nil {
			return
		}
		t, _ := v.(T)
		then(c, t, err)
	}
}

// spawnTask starts run on its own goroutine and tracks it as pending work.
// done runs on the arbiter when run returns; onCancel runs instead if the
// task is cancelled or the context stops first.
func (c *Context) spawnTask(pause bool, run func(ctx context.Context) (any, error), done func(any, error), onCancel func()) Token {
	ctx, cancel := context.WithCancel(c.base)
	it := &item{cancel: cancel, onCancel: onCancel, pauses: pause, keepAlive: true}
	tok := c.track(it)

	go func() {
		v, fault, err := runTask(ctx, run)
		c.post(func() {
			if c.items[tok] != it {
				return
			}
			if fault != nil {
				// The item stays tracked so terminate cancels it with the rest.
				c.fail(fault)
				return
			}
			c.drop(tok, it)
			done(v, err)
		})
	}()
	return tok
}

// runTask reports a panic in run as a fault of the owning context rather
// than as the computation's result.
func runTask(ctx context.Context, run func(ctx context.Context) (any, error)) (v any, fault *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			fault = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	v, err = run(ctx)
	return v, nil, err
}
