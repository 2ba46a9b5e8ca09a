package core

// Actor is an isolated unit of mutable state. Its fields are only touched by
// the arbiter currently polling its Context, so no locking is needed inside
// handlers.
type Actor interface {
	// Register declares the message types this instance handles.
	// It is called once per instance, right after the factory returns.
	Register(h *Handlers)
}

// Factory builds a fresh actor instance. It runs when the context is created
// and again on every restart.
type Factory func(c *Context) Actor

// StartedHook is implemented by actors that need to run code before the
// first message is dispatched.
type StartedHook interface {
	Started(c *Context)
}

// StoppingHook is consulted when the context begins to stop. explicit is
// true when the stop was requested rather than caused by every address
// being released.
type StoppingHook interface {
	Stopping(c *Context, explicit bool) StopAction
}

// StoppedHook runs once when the context reaches the terminal state after a
// graceful stop. It is not called when the actor faulted.
type StoppedHook interface {
	Stopped(c *Context)
}

// RestartingHook is called on a supervised replacement instance before its
// Started hook.
type RestartingHook interface {
	Restarting(c *Context)
}

// Message is implemented by values that can be used with Call. R is the type
// the handler returns. Message types satisfy it by embedding Returns[R].
type Message[R any] interface {
	response() R
}

// Returns declares the response type of a message:
//
//	type Inc struct {
//		core.Returns[int]
//		By int
//	}
type Returns[R any] struct{}

func (Returns[R]) response() R {
	var zero R
	return zero
}
