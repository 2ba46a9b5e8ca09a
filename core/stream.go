package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Stream is an external source of items. Next returns io.EOF once the
// source is exhausted.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
}

// StreamFunc adapts a function to Stream.
type StreamFunc[T any] func(ctx context.Context) (T, error)

// Next implements Stream.
func (f StreamFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// StreamHandler receives the items of a subscribed stream on the actor's
// arbiter.
type StreamHandler[T any] interface {
	HandleItem(c *Context, item T)

	// Finished is called exactly once, when the stream is exhausted or an
	// error hook returned ErrorStop.
	Finished(c *Context)

	Error(c *Context, err error) ErrorAction
}

// AddStream subscribes the context to s. Items are delivered one at a time
// in stream order and do not count against mailbox capacity. The next item
// is not requested until the previous one was handled.
func AddStream[T any](c *Context, s Stream[T], h StreamHandler[T]) Token {
	ctx, cancel := context.WithCancel(c.base)
	it := &item{cancel: cancel, keepAlive: true}
	tok := c.track(it)

	finish := func() {
		if c.items[tok] != it {
			return
		}
		c.drop(tok, it)
		h.Finished(c)
	}

	go func() {
		ack := make(chan bool, 1)
		for {
			v, err := s.Next(ctx)
			if ctx.Err() != nil {
				return
			}

			switch {
			case errors.Is(err, io.EOF):
				c.post(finish)
				return
			case err != nil:
				c.post(func() {
					if c.items[tok] != it {
						return
					}
					if h.Error(c, err) == ErrorStop {
						finish()
						ack <- false
						return
					}
					ack <- true
				})
			default:
				c.post(func() {
					if c.items[tok] != it {
						return
					}
					h.HandleItem(c, v)
					ack <- true
				})
			}

			select {
			case more := <-ack:
				if !more {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return tok
}

// FromChannel turns a channel into a stream that ends when ch is closed.
func FromChannel[T any](ch <-chan T) Stream[T] {
	return StreamFunc[T](func(ctx context.Context) (T, error) {
		select {
		case v, ok := <-ch:
			if !ok {
				var zero T
				return zero, io.EOF
			}
			return v, nil
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	})
}

// FromSlice returns a stream over a copy of items.
func FromSlice[T any](items []T) Stream[T] {
	rest := append([]T(nil), items...)
	return StreamFunc[T](func(context.Context) (T, error) {
		if len(rest) == 0 {
			var zero T
			return zero, io.EOF
		}
		v := rest[0]
		rest = rest[1:]
		return v, nil
	})
}
