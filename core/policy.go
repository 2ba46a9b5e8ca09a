package core

import (
	"time"

	"github.com/pkg/errors"
)

// RestartPolicy decides what a supervisor does after its actor faults.
// history holds the times of earlier restarts performed by the same
// supervisor, oldest first. Implementations must be safe for concurrent use;
// one policy value is commonly shared by many supervisors.
type RestartPolicy interface {
	Decide(fault error, history []time.Time) (restart bool, delay time.Duration)
}

// RestartPolicyFunc adapts a function to RestartPolicy.
type RestartPolicyFunc func(fault error, history []time.Time) (bool, time.Duration)

// Decide implements RestartPolicy.
func (f RestartPolicyFunc) Decide(fault error, history []time.Time) (bool, time.Duration) {
	return f(fault, history)
}

// AlwaysRestart replaces the actor immediately after every fault.
type AlwaysRestart struct{}

// Decide implements RestartPolicy.
func (AlwaysRestart) Decide(error, []time.Time) (bool, time.Duration) {
	return true, 0
}

// NeverRestart leaves a faulted actor stopped.
type NeverRestart struct{}

// Decide implements RestartPolicy.
func (NeverRestart) Decide(error, []time.Time) (bool, time.Duration) {
	return false, 0
}

// WindowPolicy restarts immediately unless MaxRestarts restarts already
// happened within the Within window, in which case the actor stays stopped.
type WindowPolicy struct {
	MaxRestarts int
	Within      time.Duration
}

// Decide implements RestartPolicy.
func (p WindowPolicy) Decide(_ error, history []time.Time) (bool, time.Duration) {
	if p.MaxRestarts <= 0 {
		return true, 0
	}
	return recentRestarts(history, p.Within) < p.MaxRestarts, 0
}

// BackoffPolicy restarts after an exponentially growing delay. The exponent
// is the number of restarts within the Within window (all of them when
// Within is zero). MaxRestarts, when positive, caps the restarts in that
// window.
type BackoffPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxRestarts int
	Within      time.Duration
}

// Decide implements RestartPolicy.
func (p BackoffPolicy) Decide(_ error, history []time.Time) (bool, time.Duration) {
	n := recentRestarts(history, p.Within)
	if p.MaxRestarts > 0 && n >= p.MaxRestarts {
		return false, 0
	}
	return true, p.delay(n)
}

func (p BackoffPolicy) delay(attempt int) time.Duration {
	d := p.Initial
	if d <= 0 {
		return 0
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

func recentRestarts(history []time.Time, within time.Duration) int {
	if within <= 0 {
		return len(history)
	}
	cutoff := time.Now().Add(-within)
	n := 0
	for _, t := range history {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// isRestartable reports whether a fault may be handed to the restart policy
// at all. A factory that produces no actor will not do better next time.
func isRestartable(fault error) bool {
	return !errors.Is(fault, ErrNilActor)
}
