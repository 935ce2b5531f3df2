// Package loop is the single control loop of wexec. It multiplexes filesystem
// events, watcher errors, termination signals and child exits into one
// ordered message stream, and is the only owner of the restart machine and
// the supervisor.
package loop

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"wexec/internal/filter"
	"wexec/internal/logging"
	"wexec/internal/restart"
	"wexec/internal/supervisor"
	"wexec/internal/watcher"

	"golang.org/x/sync/errgroup"
)

type Filter interface {
	Admit(path string) bool
}

type explainer interface {
	Explain(path string) (bool, filter.Rule)
}

// Supervisor is the part of *supervisor.Supervisor the loop drives.
type Supervisor interface {
	HandleRestartDue(proceed func() bool) (supervisor.Decision, error)
	Terminate(signal syscall.Signal) (supervisor.Termination, error)
	Exited() (<-chan struct{}, uint64)
	Reap(generation uint64) (supervisor.ExitInfo, bool)
	QueueBackoff() time.Duration
	Signal() syscall.Signal
}

type Options struct {
	Filter     Filter
	Supervisor Supervisor
	Events     <-chan watcher.Event
	Errors     <-chan error
	Signals    <-chan os.Signal
	Debounce   time.Duration
	Logger     *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Loop struct {
	filter     Filter
	supervisor Supervisor
	events     <-chan watcher.Event
	errors     <-chan error
	signals    <-chan os.Signal
	machine    *restart.Machine
	logger     *logging.Logger
	now        func() time.Time
	// shutdownStarted is set by the signal forwarder before the terminate
	// message is delivered, so a restart already in progress can see it.
	shutdownStarted atomic.Bool
}

type messageKind int

const (
	messageChange messageKind = iota
	messageSourceError
	messageSourceClosed
	messageTerminate
	messageChildExited
)

type message struct {
	kind       messageKind
	path       string
	err        error
	signal     os.Signal
	generation uint64
}

func New(options Options) (*Loop, error) {
	if options.Filter == nil {
		return nil, errors.New("filter is required")
	}
	if options.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}
	if options.Events == nil {
		return nil, errors.New("event source is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Loop{
		filter:     options.Filter,
		supervisor: options.Supervisor,
		events:     options.Events,
		errors:     options.Errors,
		signals:    options.Signals,
		machine:    restart.New(options.Debounce),
		logger:     logger,
		now:        now,
	}, nil
}

// Run drives the loop until a termination request, a child killed by a
// signal, a fatal error, or ctx cancellation. The command runs once
// immediately. On every exit path the child group is stopped first.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	defer func() {
		cancel()
		_ = group.Wait()
	}()

	messages := make(chan message)
	l.startForwarders(groupCtx, group, messages)

	proceed := func() bool {
		return !l.shutdownStarted.Load() && runCtx.Err() == nil
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		deferred := false
		if l.machine.State() == restart.Due && proceed() {
			decision, err := l.supervisor.HandleRestartDue(proceed)
			if err != nil {
				l.stopChild()
				return Result{Reason: ReasonFatal}, err
			}
			switch decision {
			case supervisor.DecisionSpawned:
				l.machine.Consume()
				l.watchChild(groupCtx, group, messages)
			case supervisor.DecisionSkipped:
				l.machine.Consume()
			case supervisor.DecisionDeferred:
				deferred = true
			case supervisor.DecisionCancelled:
				// the terminate message is already on its way
			}
		}

		var timerC <-chan time.Time
		if deferred {
			timer.Reset(l.supervisor.QueueBackoff())
			timerC = timer.C
		} else if deadline, ok := l.machine.Deadline(); ok {
			wait := deadline.Sub(l.now())
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
			timerC = timer.C
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			return l.terminate(nil, "context canceled"), nil
		case <-timerC:
			l.machine.Tick(l.now())
		case msg := <-messages:
			switch msg.kind {
			case messageChange:
				l.handleChange(msg.path)
			case messageSourceError:
				l.logger.Warn("file watcher error", map[string]string{"error": msg.err.Error()})
			case messageSourceClosed:
				l.stopChild()
				return Result{Reason: ReasonFatal}, ErrEventSourceClosed
			case messageTerminate:
				return l.terminate(msg.signal, "signal received"), nil
			case messageChildExited:
				if result, done := l.handleChildExit(msg.generation); done {
					return result, nil
				}
			}
		}
	}
}

func (l *Loop) handleChange(path string) {
	admitted := false
	fields := map[string]string{"path": path}
	if explain, ok := l.filter.(explainer); ok {
		var rule filter.Rule
		admitted, rule = explain.Explain(path)
		fields["rule"] = string(rule)
	} else {
		admitted = l.filter.Admit(path)
	}
	if !admitted {
		l.logger.Debug("change ignored", fields)
		return
	}
	l.logger.Debug("change detected", fields)
	l.machine.Observe(l.now())
}

func (l *Loop) handleChildExit(generation uint64) (Result, bool) {
	info, ok := l.supervisor.Reap(generation)
	if !ok {
		return Result{}, false
	}
	if signal, killed := info.KilledBySignal(); killed {
		l.logger.Warn("command killed by signal", map[string]string{
			"signal": supervisor.SignalName(signal),
		})
		l.stopChild()
		return Result{Reason: ReasonChildSignaled, ChildSignal: signal}, true
	}
	if signal, crashed := info.Crashed(); crashed {
		l.logger.Warn("command crashed; waiting for changes", map[string]string{
			"signal": supervisor.SignalName(signal),
		})
		return Result{}, false
	}
	level := l.logger.Info
	if info.Code != 0 {
		level = l.logger.Warn
	}
	level("command exited", map[string]string{"code": strconv.Itoa(info.Code)})
	return Result{}, false
}

func (l *Loop) terminate(signal os.Signal, reason string) Result {
	fields := map[string]string{"reason": reason}
	if signal != nil {
		fields["signal"] = signal.String()
	}
	l.logger.Info("shutting down", fields)
	l.stopChild()
	return Result{Reason: ReasonTerminated, Signal: signal}
}

// stopChild retires whatever is left of the child group. Failures are logged;
// the process is exiting anyway.
func (l *Loop) stopChild() {
	outcome, err := l.supervisor.Terminate(l.supervisor.Signal())
	if err != nil {
		l.logger.Error("failed to stop command", map[string]string{"error": err.Error()})
		return
	}
	if outcome != supervisor.TerminationNotRunning {
		l.logger.Debug("command stopped", map[string]string{"outcome": outcome.String()})
	}
}
