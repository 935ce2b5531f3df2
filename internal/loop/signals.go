package loop

import (
	"os"
	"os/signal"
	"syscall"
)

var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM}

// NotifyTermination subscribes to the signals that request shutdown. The
// returned stop function unsubscribes.
func NotifyTermination() (<-chan os.Signal, func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, terminationSignals...)
	return signals, func() {
		signal.Stop(signals)
	}
}
