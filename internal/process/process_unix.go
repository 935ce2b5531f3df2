//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

var errProcessDone = os.ErrProcessDone

// Configure makes cmd lead a new process group so signals reach every
// descendant it forks.
func Configure(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func GroupID(pid int) int {
	if pid <= 0 {
		return 0
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return 0
	}
	return pgid
}

// SignalGroup delivers sig to the whole group, or to pid alone when the group
// is unknown.
func SignalGroup(pid, pgid int, sig syscall.Signal) error {
	target := pid
	if pgid > 0 {
		target = -pgid
	}
	if target == 0 {
		return syscall.ESRCH
	}
	return syscall.Kill(target, sig)
}

// GroupAlive probes the group with signal 0. A group member we may not signal
// still counts as alive.
func GroupAlive(pid, pgid int) bool {
	target := pid
	if pgid > 0 {
		target = -pgid
	}
	if target == 0 {
		return false
	}
	err := syscall.Kill(target, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func DecodeExit(state *os.ProcessState) Exit {
	if state == nil {
		return Exit{Code: -1}
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return Exit{Code: state.ExitCode()}
	}
	if status.Signaled() {
		return Exit{Code: -1, Signaled: true, Signal: status.Signal()}
	}
	return Exit{Code: status.ExitStatus()}
}
