//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

var errProcessDone = os.ErrProcessDone

// Configure is a no-op: Windows has no POSIX process groups.
func Configure(cmd *exec.Cmd) {}

func GroupID(pid int) int {
	return 0
}

// SignalGroup can only kill the process itself on Windows; the signal is
// ignored.
func SignalGroup(pid, pgid int, sig syscall.Signal) error {
	_ = pgid
	_ = sig
	if pid <= 0 {
		return syscall.ESRCH
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}

// GroupAlive always reports false; liveness comes from waiting on the leader.
func GroupAlive(pid, pgid int) bool {
	return false
}

func DecodeExit(state *os.ProcessState) Exit {
	if state == nil {
		return Exit{Code: -1}
	}
	return Exit{Code: state.ExitCode()}
}
