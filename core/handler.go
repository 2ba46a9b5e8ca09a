package core

import (
	"context"
	"reflect"
)

type syncHandler func(c *Context, msg any) (any, error)

type asyncHandler func(c *Context, msg any) func(ctx context.Context) (any, error)

type handlerEntry struct {
	sync  syncHandler
	async asyncHandler
}

// Handlers is the per-instance dispatch table, keyed by message type.
type Handlers struct {
	entries map[reflect.Type]handlerEntry
}

func newHandlers() *Handlers {
	return &Handlers{entries: make(map[reflect.Type]handlerEntry)}
}

// Handle registers fn as the handler for messages of type M.
// A later registration for the same type replaces the earlier one.
func Handle[M Message[R], R any](h *Handlers, fn func(c *Context, msg M) (R, error)) {
	h.entries[reflect.TypeOf((*M)(nil)).Elem()] = handlerEntry{
		sync: func(c *Context, msg any) (any, error) {
			return fn(c, msg.(M))
		},
	}
}

// HandleAsync registers a handler whose response is produced by a
// computation running off the arbiter. The handler body itself runs on the
// arbiter and may read actor state; the returned function must not touch it.
// The computation is tracked as in-flight work of the context and is
// cancelled when the context stops.
func HandleAsync[M Message[R], R any](h *Handlers, fn func(c *Context, msg M) func(ctx context.Context) (R, error)) {
	h.entries[reflect.TypeOf((*M)(nil)).Elem()] = handlerEntry{
		async: func(c *Context, msg any) func(ctx context.Context) (any, error) {
			run := fn(c, msg.(M))
			return func(ctx context.Context) (any, error) {
				return run(ctx)
			}
		},
	}
}

func (h *Handlers) lookup(t reflect.Type) (handlerEntry, bool) {
	e, ok := h.entries[t]
	return e, ok
}
