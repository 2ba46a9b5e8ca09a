// Package core implements an in-process actor runtime.
//
// An actor is an isolated unit of mutable state driven by a Context. Other
// code talks to it only through an Address, by sending typed messages that
// are queued in a bounded mailbox:
//
//	type Inc struct {
//		core.Returns[int]
//	}
//
//	type Counter struct{ n int }
//
//	func (a *Counter) Register(h *core.Handlers) {
//		core.Handle(h, func(c *core.Context, _ Inc) (int, error) {
//			a.n++
//			return a.n, nil
//		})
//	}
//
//	addr, _ := core.Start(sys.Arbiter(), func(*core.Context) core.Actor { return &Counter{} }, core.ActorOptions{})
//	n, err := core.Call[int](ctx, addr, Inc{})
//
// Contexts are polled by an Arbiter, a cooperative executor running on one
// goroutine. Handlers of one actor never run concurrently, so actor state
// needs no locking. Handlers that block belong in a dedicated-thread pool
// started with StartPool.
//
// StartSupervised wraps the actor in a supervisor: when a handler panics the
// instance is rebuilt by its factory according to a RestartPolicy, and every
// existing Address keeps working.
package core
