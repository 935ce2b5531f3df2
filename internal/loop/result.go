package loop

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

const (
	ExitFatal      = 1
	ExitTerminated = 2
)

// ErrEventSourceClosed means the filesystem watcher stopped delivering events.
var ErrEventSourceClosed = errors.New("file watcher closed unexpectedly")

type Reason int

const (
	ReasonFatal Reason = iota
	ReasonTerminated
	ReasonChildSignaled
)

func (reason Reason) String() string {
	switch reason {
	case ReasonFatal:
		return "fatal"
	case ReasonTerminated:
		return "terminated"
	case ReasonChildSignaled:
		return "child-signaled"
	default:
		return fmt.Sprintf("reason(%d)", int(reason))
	}
}

// Result explains why Run returned.
type Result struct {
	Reason Reason
	// Signal is the termination request that stopped the loop, if any.
	Signal os.Signal
	// ChildSignal is the signal that ended the child for ReasonChildSignaled.
	ChildSignal syscall.Signal
}

// ExitCode maps the result onto the process exit status: 2 for a requested
// shutdown, 128+N when the child was killed by signal N, and 1 otherwise.
func (result Result) ExitCode() int {
	switch result.Reason {
	case ReasonTerminated:
		return ExitTerminated
	case ReasonChildSignaled:
		return 128 + int(result.ChildSignal)
	default:
		return ExitFatal
	}
}
