package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Delivery errors surfaced by Address operations.
var (
	ErrMailboxFull      = errors.New("mailbox is full")
	ErrMailboxClosed    = errors.New("mailbox is closed")
	ErrCancelled        = errors.New("request cancelled")
	ErrUnhandledMessage = errors.New("no handler registered for message type")
	ErrAddressReleased  = errors.New("address handle already released")
)

// Runtime errors.
var (
	ErrSpawnFailure   = errors.New("failed to spawn worker")
	ErrArbiterStopped = errors.New("arbiter is stopped")
	ErrSystemStopped  = errors.New("actor system is stopped")
	ErrNilFactory     = errors.New("actor factory is nil")
	ErrNilActor       = errors.New("actor factory returned nil")
	ErrNameTaken      = errors.New("name already registered")
	ErrInvalidWorkers = errors.New("invalid worker count")
)

// PanicError is the fault recorded when a handler or hook panics.
// Restart policies receive it as the failure reason.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("actor panicked: %v", e.Value)
}
