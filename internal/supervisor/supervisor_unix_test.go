//go:build !windows

package supervisor

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestSupervisor(t *testing.T, options Options) *Supervisor {
	t.Helper()
	if options.PollInterval == 0 {
		options.PollInterval = 10 * time.Millisecond
	}
	if options.GracePeriod == 0 {
		options.GracePeriod = time.Second
	}
	if options.Stdout == nil {
		options.Stdout = &lockedBuffer{}
	}
	if options.Stderr == nil {
		options.Stderr = &lockedBuffer{}
	}
	supervisor, err := New(options)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	t.Cleanup(func() {
		_, _ = supervisor.Terminate(syscall.SIGKILL)
	})
	return supervisor
}

func processGone(pid int) bool {
	err := syscall.Kill(pid, 0)
	return errors.Is(err, syscall.ESRCH)
}

func mustSpawn(t *testing.T, supervisor *Supervisor) int {
	t.Helper()
	decision, err := supervisor.HandleRestartDue(nil)
	if err != nil {
		t.Fatalf("handle restart due: %v", err)
	}
	if decision != DecisionSpawned {
		t.Fatalf("expected spawned, got %s", decision)
	}
	return supervisor.PID()
}

func TestNewRequiresCommand(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for empty command")
	}
	if _, err := New(Options{Command: []string{" "}}); err == nil {
		t.Fatalf("expected error for blank program")
	}
}

func TestRestartPolicyStopsOldChildFirst(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command: []string{"sleep", "10"},
		Policy:  PolicyRestart,
	})

	first := mustSpawn(t, supervisor)
	second := mustSpawn(t, supervisor)
	if first == second {
		t.Fatalf("expected a new child, got the same pid %d", first)
	}
	if !processGone(first) {
		t.Fatalf("expected first child %d to be fully exited before the second spawned", first)
	}
	if !supervisor.Alive() {
		t.Fatalf("expected second child to be running")
	}
}

func TestDoNothingPolicyDropsRestart(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command: []string{"sleep", "10"},
		Policy:  PolicyDoNothing,
	})

	pid := mustSpawn(t, supervisor)
	decision, err := supervisor.HandleRestartDue(nil)
	if err != nil {
		t.Fatalf("handle restart due: %v", err)
	}
	if decision != DecisionSkipped {
		t.Fatalf("expected skipped, got %s", decision)
	}
	if supervisor.PID() != pid {
		t.Fatalf("expected child %d to keep running, got %d", pid, supervisor.PID())
	}
}

func TestQueuePolicyDefersUntilExit(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command:      []string{"sleep", "0.2"},
		Policy:       PolicyQueue,
		QueueBackoff: 20 * time.Millisecond,
	})

	first := mustSpawn(t, supervisor)
	decision, err := supervisor.HandleRestartDue(nil)
	if err != nil {
		t.Fatalf("handle restart due: %v", err)
	}
	if decision != DecisionDeferred {
		t.Fatalf("expected deferred, got %s", decision)
	}
	if supervisor.QueueBackoff() != 20*time.Millisecond {
		t.Fatalf("expected configured backoff, got %s", supervisor.QueueBackoff())
	}

	done, generation := supervisor.Exited()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected first child to exit")
	}
	info, ok := supervisor.Reap(generation)
	if !ok || info.Code != 0 {
		t.Fatalf("expected clean reap, got %+v (ok=%v)", info, ok)
	}

	second := mustSpawn(t, supervisor)
	if second == first {
		t.Fatalf("expected new child after queued restart")
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command:     []string{"sh", "-c", `trap "" TERM; sleep 10`},
		GracePeriod: 200 * time.Millisecond,
	})
	mustSpawn(t, supervisor)
	time.Sleep(100 * time.Millisecond)

	started := time.Now()
	outcome, err := supervisor.Terminate(syscall.SIGTERM)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if outcome != TerminationKilled {
		t.Fatalf("expected killed, got %s", outcome)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("expected escalation shortly after grace period, took %s", elapsed)
	}
	if supervisor.Alive() {
		t.Fatalf("expected no live child after kill")
	}
}

func TestTerminateGracefulExit(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command: []string{"sh", "-c", "sleep 10 & sleep 10 & wait"},
	})
	pid := mustSpawn(t, supervisor)
	time.Sleep(50 * time.Millisecond)

	outcome, err := supervisor.Terminate(syscall.SIGTERM)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if outcome != TerminationExited {
		t.Fatalf("expected exited, got %s", outcome)
	}
	if err := syscall.Kill(-pid, 0); !errors.Is(err, syscall.ESRCH) {
		t.Fatalf("expected whole group to be gone, got %v", err)
	}
}

func TestTerminateWithoutChild(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{Command: []string{"true"}})
	outcome, err := supervisor.Terminate(syscall.SIGTERM)
	if err != nil || outcome != TerminationNotRunning {
		t.Fatalf("expected not-running, got %s (%v)", outcome, err)
	}

	mustSpawn(t, supervisor)
	done, _ := supervisor.Exited()
	<-done
	outcome, err = supervisor.Terminate(syscall.SIGTERM)
	if err != nil || outcome != TerminationNotRunning {
		t.Fatalf("expected already-exited child to report not-running, got %s (%v)", outcome, err)
	}
}

func TestSpawnFailureIsSpawnError(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{Command: []string{"wexec-test-missing-binary"}})
	_, err := supervisor.HandleRestartDue(nil)
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if supervisor.Alive() {
		t.Fatalf("expected no child after spawn failure")
	}
}

func TestReapReportsExitOnce(t *testing.T) {
	cases := []struct {
		name   string
		script string
		code   int
		killed bool
	}{
		{name: "voluntary", script: "exit 3", code: 3},
		{name: "relayed signal", script: "exit 130", code: 130, killed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			supervisor := newTestSupervisor(t, Options{Command: []string{"sh", "-c", tc.script}})
			mustSpawn(t, supervisor)

			done, generation := supervisor.Exited()
			<-done
			if _, ok := supervisor.Reap(generation + 1); ok {
				t.Fatalf("expected stale generation to be ignored")
			}
			info, ok := supervisor.Reap(generation)
			if !ok {
				t.Fatalf("expected reap to succeed")
			}
			if info.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, info.Code)
			}
			if _, killed := info.KilledBySignal(); killed != tc.killed {
				t.Fatalf("expected killed=%v, got %v", tc.killed, killed)
			}
			if _, ok := supervisor.Reap(generation); ok {
				t.Fatalf("expected second reap to fail")
			}
			if done, _ := supervisor.Exited(); done != nil {
				t.Fatalf("expected no exit channel after reap")
			}
		})
	}
}

func TestClearScreenBeforeSpawn(t *testing.T) {
	stdout := &lockedBuffer{}
	supervisor := newTestSupervisor(t, Options{
		Command: []string{"echo", "ran"},
		Clear:   true,
		Stdout:  stdout,
	})
	mustSpawn(t, supervisor)
	done, _ := supervisor.Exited()
	<-done

	output := stdout.String()
	if !strings.HasPrefix(output, clearSequence) {
		t.Fatalf("expected clear sequence first, got %q", output)
	}
	if !strings.Contains(output, "ran\n") {
		t.Fatalf("expected command output, got %q", output)
	}
}

func TestRestartCancelledAfterStopDoesNotSpawn(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command: []string{"sleep", "10"},
		Policy:  PolicyRestart,
	})

	pid := mustSpawn(t, supervisor)
	consulted := 0
	decision, err := supervisor.HandleRestartDue(func() bool {
		consulted++
		if !processGone(pid) {
			t.Errorf("expected old child %d to be gone before the spawn check", pid)
		}
		return false
	})
	if err != nil {
		t.Fatalf("handle restart due: %v", err)
	}
	if decision != DecisionCancelled {
		t.Fatalf("expected cancelled, got %s", decision)
	}
	if consulted != 1 {
		t.Fatalf("expected proceed to be consulted once, got %d", consulted)
	}
	if supervisor.Alive() || supervisor.PID() != 0 {
		t.Fatalf("expected no child after a cancelled restart, got pid %d", supervisor.PID())
	}
}

func TestCrashIsNotKilledBySignal(t *testing.T) {
	supervisor := newTestSupervisor(t, Options{
		Command: []string{"sh", "-c", "kill -SEGV $$"},
	})
	mustSpawn(t, supervisor)
	done, generation := supervisor.Exited()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("child did not exit")
	}
	info, ok := supervisor.Reap(generation)
	if !ok {
		t.Fatalf("expected exit to be reaped")
	}
	if _, killed := info.KilledBySignal(); killed {
		t.Fatalf("expected a segfault not to count as a termination, got %s", info)
	}
	if signal, crashed := info.Crashed(); !crashed || signal != syscall.SIGSEGV {
		t.Fatalf("expected SIGSEGV crash, got %v %v", signal, crashed)
	}
}
