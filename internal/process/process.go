// Package process wraps the OS primitives used to supervise a child process
// group: group creation, group signalling, liveness probes, and wait-status
// decoding.
package process

import (
	"errors"
	"syscall"
)

// Exit is a decoded wait status. Signaled is set when the process was ended
// by a signal rather than calling exit.
type Exit struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// IsGone reports whether err means the target process no longer exists.
func IsGone(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, errProcessDone)
}
