// Package restart turns a stream of admitted change notifications into
// debounced restart decisions. The machine never reads the clock; callers
// pass the time of each input so behaviour is reproducible in tests.
package restart

import (
	"fmt"
	"time"
)

type State int

const (
	Idle State = iota
	Pending
	Due
)

func (state State) String() string {
	switch state {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Due:
		return "due"
	default:
		return fmt.Sprintf("state(%d)", int(state))
	}
}

// Status is the live state plus, while pending, the time of the latest change.
type Status struct {
	State State
	since time.Time
}

func (status Status) Since() (time.Time, bool) {
	if status.State != Pending {
		return time.Time{}, false
	}
	return status.since, true
}

func (status Status) String() string {
	if status.State == Pending {
		return fmt.Sprintf("pending(%s)", status.since.Format(time.RFC3339Nano))
	}
	return status.State.String()
}

// Machine is a quiet-period debouncer. It is not safe for concurrent use; the
// control loop owns it.
type Machine struct {
	interval time.Duration
	status   Status
}

// New returns a machine in the Due state so the command runs once on startup.
func New(interval time.Duration) *Machine {
	if interval < 0 {
		interval = 0
	}
	return &Machine{interval: interval, status: Status{State: Due}}
}

func (machine *Machine) Interval() time.Duration {
	return machine.interval
}

func (machine *Machine) Status() Status {
	return machine.status
}

func (machine *Machine) State() State {
	return machine.status.State
}

// Observe records an admitted change. Every change restarts the quiet period,
// whatever the current state.
func (machine *Machine) Observe(now time.Time) {
	machine.status = Status{State: Pending, since: now}
}

// Tick advances a pending machine to Due once the quiet period has elapsed.
// It reports whether a transition happened.
func (machine *Machine) Tick(now time.Time) bool {
	if machine.status.State != Pending {
		return false
	}
	if now.Sub(machine.status.since) < machine.interval {
		return false
	}
	machine.status = Status{State: Due}
	return true
}

// Consume acknowledges a Due decision once the supervisor has acted on it, or
// has chosen to drop it.
func (machine *Machine) Consume() bool {
	if machine.status.State != Due {
		return false
	}
	machine.status = Status{State: Idle}
	return true
}

// Deadline returns when a pending machine becomes due.
func (machine *Machine) Deadline() (time.Time, bool) {
	since, ok := machine.status.Since()
	if !ok {
		return time.Time{}, false
	}
	return since.Add(machine.interval), true
}
