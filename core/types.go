package core

import (
	"time"
)

// State is the lifecycle state of a Context.
type State int32

const (
	// StateCreated means the actor was built but has not been scheduled yet.
	StateCreated State = iota

	// StateRunning means the actor is dispatching messages.
	StateRunning

	// StateStopping means a stop was requested and the stopping hook has run.
	StateStopping

	// StateStopped is terminal.
	StateStopped
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopAction is returned by the stopping hook.
type StopAction int

const (
	// StopProceed lets the context reach the stopped state.
	StopProceed StopAction = iota

	// StopContinue keeps the context alive until its in-flight work drains,
	// after which the stopping hook is consulted again.
	StopContinue
)

// ErrorAction is returned by a stream error hook.
type ErrorAction int

const (
	// ErrorContinue keeps polling the stream.
	ErrorContinue ErrorAction = iota

	// ErrorStop ends the subscription; Finished is still invoked once.
	ErrorStop
)

// Token identifies a timer, stream subscription or background computation
// owned by a Context. It is used with Context.Cancel.
type Token uint64

// ActorOptions contains configuration options for starting an actor.
// Zero fields fall back to the system defaults.
type ActorOptions struct {
	// Name is a human-readable name used in logs and stats
	Name string

	// MailboxCapacity bounds the regular message queue
	MailboxCapacity int

	// Throughput caps how many envelopes one scheduling pass dispatches
	Throughput int

	// RestartPolicy applies to supervised actors and pool workers.
	// Nil means the system default policy.
	RestartPolicy RestartPolicy
}

// Stats contains runtime statistics for a Context.
type Stats struct {
	// ID of the context
	ID string

	// Name of the actor
	Name string

	// Current state
	State State

	// Total messages dispatched by this context
	MessagesProcessed uint64

	// Regular envelopes currently queued in the mailbox
	MailboxLen int

	// Live address handles
	Addresses int64

	// Number of times the actor behind this address was replaced
	Restarts int64

	// Time when the context was created
	CreatedAt time.Time
}
