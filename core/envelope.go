package core

import (
	"reflect"
)

type result struct {
	value any
	err   error
}

// envelope pairs a message with its optional reply channel. The handler is
// resolved from the consuming context's table at dispatch time, so an
// envelope queued before a restart reaches the replacement instance.
type envelope struct {
	msg   any
	kind  reflect.Type
	reply chan result
}

func newEnvelope(msg any, withReply bool) *envelope {
	env := &envelope{msg: msg, kind: reflect.TypeOf(msg)}
	if withReply {
		env.reply = make(chan result, 1)
	}
	return env
}

// resolve delivers the handler outcome. The reply channel has room for one
// value, so an abandoned caller never blocks the dispatching arbiter.
func (e *envelope) resolve(v any, err error) {
	if e.reply == nil {
		return
	}
	select {
	case e.reply <- result{value: v, err: err}:
	default:
	}
}

func (e *envelope) cancel() {
	e.resolve(nil, ErrCancelled)
}

// signal is a control message. Signals bypass the capacity check and are
// always dequeued before regular envelopes.
type signal int

const (
	signalStop signal = iota + 1
	signalRestart
)

func (s signal) String() string {
	switch s {
	case signalStop:
		return "stop"
	case signalRestart:
		return "restart"
	default:
		return "unknown"
	}
}
