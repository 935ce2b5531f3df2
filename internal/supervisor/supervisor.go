// Package supervisor owns the single child process group: it applies the busy
// policy to due restarts, spawns the command as a group leader, and stops the
// group with a graceful signal that escalates to SIGKILL.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wexec/internal/logging"
	"wexec/internal/process"

	"mvdan.cc/sh/v3/syntax"
)

const (
	DefaultGracePeriod  = 3 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultQueueBackoff = 50 * time.Millisecond

	clearSequence = "\x1b[2J\x1b[3J\x1b[H"
)

// Decision is the outcome of HandleRestartDue.
type Decision int

const (
	DecisionSpawned Decision = iota
	DecisionSkipped
	DecisionDeferred
	// DecisionCancelled means the previous child was stopped but the spawn
	// was called off because shutdown had started.
	DecisionCancelled
)

func (decision Decision) String() string {
	switch decision {
	case DecisionSpawned:
		return "spawned"
	case DecisionSkipped:
		return "skipped"
	case DecisionDeferred:
		return "deferred"
	case DecisionCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("decision(%d)", int(decision))
	}
}

// Termination distinguishes a group that left after the graceful signal from
// one that had to be killed.
type Termination int

const (
	TerminationNotRunning Termination = iota
	TerminationExited
	TerminationKilled
)

func (termination Termination) String() string {
	switch termination {
	case TerminationNotRunning:
		return "not-running"
	case TerminationExited:
		return "exited"
	case TerminationKilled:
		return "killed"
	default:
		return fmt.Sprintf("termination(%d)", int(termination))
	}
}

// SpawnError is returned when the command cannot be started. It is never
// retried.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", QuoteCommand(e.Command), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

type Options struct {
	Command      []string
	Policy       Policy
	Signal       syscall.Signal
	GracePeriod  time.Duration
	PollInterval time.Duration
	QueueBackoff time.Duration
	Clear        bool
	Dir          string
	Env          []string
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       *logging.Logger
}

type child struct {
	cmd        *exec.Cmd
	pid        int
	pgid       int
	generation uint64
	done       chan struct{}
	reaped     bool
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *child) groupGone() bool {
	return c.exited() && !process.GroupAlive(c.pid, c.pgid)
}

// Supervisor is not safe for concurrent use. The control loop owns it; only
// the channel returned by Exited may be read elsewhere.
type Supervisor struct {
	command      []string
	policy       Policy
	signal       syscall.Signal
	gracePeriod  time.Duration
	pollInterval time.Duration
	queueBackoff time.Duration
	clear        bool
	dir          string
	env          []string
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	logger       *logging.Logger

	current    *child
	generation uint64
}

func New(options Options) (*Supervisor, error) {
	if len(options.Command) == 0 || strings.TrimSpace(options.Command[0]) == "" {
		return nil, errors.New("command is required")
	}
	supervisor := &Supervisor{
		command:      append([]string(nil), options.Command...),
		policy:       options.Policy,
		signal:       options.Signal,
		gracePeriod:  options.GracePeriod,
		pollInterval: options.PollInterval,
		queueBackoff: options.QueueBackoff,
		clear:        options.Clear,
		dir:          options.Dir,
		env:          options.Env,
		stdin:        options.Stdin,
		stdout:       options.Stdout,
		stderr:       options.Stderr,
		logger:       options.Logger,
	}
	if supervisor.signal == 0 {
		supervisor.signal = syscall.SIGTERM
	}
	if supervisor.gracePeriod <= 0 {
		supervisor.gracePeriod = DefaultGracePeriod
	}
	if supervisor.pollInterval <= 0 {
		supervisor.pollInterval = DefaultPollInterval
	}
	if supervisor.queueBackoff <= 0 {
		supervisor.queueBackoff = DefaultQueueBackoff
	}
	if supervisor.stdin == nil {
		supervisor.stdin = os.Stdin
	}
	if supervisor.stdout == nil {
		supervisor.stdout = os.Stdout
	}
	if supervisor.stderr == nil {
		supervisor.stderr = os.Stderr
	}
	if supervisor.logger == nil {
		supervisor.logger = logging.Discard()
	}
	return supervisor, nil
}

func (s *Supervisor) Policy() Policy {
	return s.policy
}

func (s *Supervisor) Signal() syscall.Signal {
	return s.signal
}

func (s *Supervisor) QueueBackoff() time.Duration {
	return s.queueBackoff
}

// Alive reports whether the current child's leader is still running.
func (s *Supervisor) Alive() bool {
	return s.current != nil && !s.current.exited()
}

// PID returns the leader pid of the current child, or 0.
func (s *Supervisor) PID() int {
	if s.current == nil {
		return 0
	}
	return s.current.pid
}

// HandleRestartDue applies the busy policy to a due restart. Any leftover
// group from a previous child is retired before a new one is spawned, so at
// most one group is ever supervised. proceed is consulted after the old group
// is gone and right before spawning; a nil proceed always spawns.
func (s *Supervisor) HandleRestartDue(proceed func() bool) (Decision, error) {
	if s.Alive() {
		switch s.policy {
		case PolicyDoNothing:
			s.logger.Debug("command still running, dropping restart", map[string]string{
				"pid": strconv.Itoa(s.current.pid),
			})
			return DecisionSkipped, nil
		case PolicyQueue:
			s.logger.Debug("command still running, restart queued", map[string]string{
				"pid":     strconv.Itoa(s.current.pid),
				"backoff": s.queueBackoff.String(),
			})
			return DecisionDeferred, nil
		}
	}
	if s.current != nil {
		if _, err := s.Terminate(s.signal); err != nil {
			return DecisionSkipped, err
		}
	}
	if proceed != nil && !proceed() {
		s.logger.Debug("restart cancelled by shutdown", nil)
		return DecisionCancelled, nil
	}
	if err := s.spawn(); err != nil {
		return DecisionSkipped, err
	}
	return DecisionSpawned, nil
}

func (s *Supervisor) spawn() error {
	if s.clear {
		_, _ = io.WriteString(s.stdout, clearSequence)
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = s.dir
	cmd.Env = s.env
	cmd.Stdin = s.stdin
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	process.Configure(cmd)
	if err := cmd.Start(); err != nil {
		return &SpawnError{Command: s.command, Err: err}
	}

	s.generation++
	pid := cmd.Process.Pid
	pgid := process.GroupID(pid)
	if pgid == 0 {
		pgid = pid
	}
	c := &child{
		cmd:        cmd,
		pid:        pid,
		pgid:       pgid,
		generation: s.generation,
		done:       make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(c.done)
	}()
	s.current = c

	s.logger.Info("command started", map[string]string{
		"pid":     strconv.Itoa(pid),
		"command": QuoteCommand(s.command),
	})
	return nil
}

// Exited returns the current child's exit channel and generation. The channel
// is nil when there is no unreaped child.
func (s *Supervisor) Exited() (<-chan struct{}, uint64) {
	if s.current == nil || s.current.reaped {
		return nil, 0
	}
	return s.current.done, s.current.generation
}

// Reap collects the exit of the child with the given generation. It returns
// false for a stale generation, a child still running, or one already reaped.
// A leader whose group still has members stays current so the next restart
// or shutdown can stop the rest of the group.
func (s *Supervisor) Reap(generation uint64) (ExitInfo, bool) {
	c := s.current
	if c == nil || c.generation != generation || c.reaped || !c.exited() {
		return ExitInfo{}, false
	}
	c.reaped = true
	info := exitInfoFrom(process.DecodeExit(c.cmd.ProcessState))
	if c.groupGone() {
		s.current = nil
	} else {
		s.logger.Debug("command exited but its process group is still running", map[string]string{
			"pgid": strconv.Itoa(c.pgid),
		})
	}
	return info, true
}

// Terminate sends signal to the child's group and waits for the group to
// empty. After the grace period the group is killed with SIGKILL and the
// leader is waited for without a bound.
func (s *Supervisor) Terminate(signal syscall.Signal) (Termination, error) {
	c := s.current
	if c == nil {
		return TerminationNotRunning, nil
	}
	if c.groupGone() {
		s.retire(c)
		return TerminationNotRunning, nil
	}

	fields := map[string]string{
		"pid":    strconv.Itoa(c.pid),
		"signal": SignalName(signal),
	}
	s.logger.Debug("stopping command", fields)
	err := process.SignalGroup(c.pid, c.pgid, signal)
	if err != nil && !process.IsGone(err) {
		fields["error"] = err.Error()
		s.logger.Warn("failed to signal process group", fields)
	} else if s.waitGroup(c, s.gracePeriod) {
		s.retire(c)
		return TerminationExited, nil
	} else {
		s.logger.Warn(fmt.Sprintf("command did not exit within %s of %s, sending SIGKILL", s.gracePeriod, SignalName(signal)), map[string]string{
			"pid": strconv.Itoa(c.pid),
		})
	}

	if err := process.SignalGroup(c.pid, c.pgid, syscall.SIGKILL); err != nil && !process.IsGone(err) {
		if !s.waitGroup(c, s.gracePeriod) {
			return TerminationKilled, fmt.Errorf("kill process group %d: %w", c.pgid, err)
		}
	}
	<-c.done
	s.retire(c)
	return TerminationKilled, nil
}

// waitGroup polls until the leader has been reaped and no group member
// remains, or the timeout passes.
func (s *Supervisor) waitGroup(c *child, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	done := c.done
	for {
		if c.groupGone() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-done:
			done = nil
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) retire(c *child) {
	if s.current == c {
		s.current = nil
	}
}

// QuoteCommand renders argv the way a user would type it into a shell.
func QuoteCommand(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, arg := range argv {
		quoted, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			quoted = strconv.Quote(arg)
		}
		parts = append(parts, quoted)
	}
	return strings.Join(parts, " ")
}
