package supervisor

import (
	"fmt"
	"syscall"

	"wexec/internal/process"
)

// ExitInfo describes how a child ended.
type ExitInfo struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

func exitInfoFrom(exit process.Exit) ExitInfo {
	return ExitInfo{Code: exit.Code, Signaled: exit.Signaled, Signal: exit.Signal}
}

// KilledBySignal reports the termination signal (HUP, INT, QUIT or TERM) that
// ended the child, either as a signalled wait status or relayed as exit code
// 128+N the way shells and runtimes that trap the signal do. Crash signals
// such as SIGSEGV or SIGABRT are not reported; see Crashed.
func (info ExitInfo) KilledBySignal() (syscall.Signal, bool) {
	if info.Signaled {
		if isTerminationSignal(info.Signal) {
			return info.Signal, true
		}
		return 0, false
	}
	if info.Code <= 128 {
		return 0, false
	}
	relayed := syscall.Signal(info.Code - 128)
	if isTerminationSignal(relayed) {
		return relayed, true
	}
	return 0, false
}

// Crashed reports a signalled exit that KilledBySignal does not claim.
func (info ExitInfo) Crashed() (syscall.Signal, bool) {
	if !info.Signaled || isTerminationSignal(info.Signal) {
		return 0, false
	}
	return info.Signal, true
}

func (info ExitInfo) String() string {
	if info.Signaled {
		return "killed by " + SignalName(info.Signal)
	}
	return fmt.Sprintf("exit status %d", info.Code)
}
