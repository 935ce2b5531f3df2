package supervisor

import (
	"fmt"
	"strings"
	"syscall"
)

// Policy decides what a due restart does while the previous child is running.
type Policy int

const (
	// PolicyRestart stops the running child and waits for it before spawning.
	PolicyRestart Policy = iota
	// PolicyQueue defers the restart until the running child has exited.
	PolicyQueue
	// PolicyDoNothing drops the restart.
	PolicyDoNothing
)

func (policy Policy) String() string {
	switch policy {
	case PolicyRestart:
		return "signal"
	case PolicyQueue:
		return "queue"
	case PolicyDoNothing:
		return "do-nothing"
	default:
		return fmt.Sprintf("policy(%d)", int(policy))
	}
}

func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "signal", "restart":
		return PolicyRestart, nil
	case "queue":
		return PolicyQueue, nil
	case "do-nothing", "do_nothing", "donothing":
		return PolicyDoNothing, nil
	default:
		return PolicyRestart, fmt.Errorf("unknown busy policy %q (expected do-nothing, queue, or signal)", value)
	}
}

var signalNames = []struct {
	name   string
	signal syscall.Signal
}{
	{name: "SIGHUP", signal: syscall.SIGHUP},
	{name: "SIGINT", signal: syscall.SIGINT},
	{name: "SIGQUIT", signal: syscall.SIGQUIT},
	{name: "SIGTERM", signal: syscall.SIGTERM},
}

// ParseSignal accepts the graceful stop signals by name, with or without the
// SIG prefix and in any case.
func ParseSignal(value string) (syscall.Signal, error) {
	name := strings.ToUpper(strings.TrimSpace(value))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	for _, entry := range signalNames {
		if entry.name == name {
			return entry.signal, nil
		}
	}
	return 0, fmt.Errorf("unsupported signal %q (expected SIGHUP, SIGINT, SIGQUIT, or SIGTERM)", value)
}

func SignalName(signal syscall.Signal) string {
	for _, entry := range signalNames {
		if entry.signal == signal {
			return entry.name
		}
	}
	if signal == syscall.SIGKILL {
		return "SIGKILL"
	}
	return fmt.Sprintf("signal %d (%s)", int(signal), signal)
}

// isTerminationSignal reports whether signal is one of the stop signals a
// user or service manager sends, as opposed to a crash.
func isTerminationSignal(signal syscall.Signal) bool {
	for _, entry := range signalNames {
		if entry.signal == signal {
			return true
		}
	}
	return false
}
