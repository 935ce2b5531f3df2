package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"wexec/internal/loop"
)

func testDeps(t *testing.T, dir string) (deps, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return deps{
		Stdout:    stdout,
		Stderr:    stderr,
		Getwd:     func() (string, error) { return dir, nil },
		LookupEnv: func(string) (string, bool) { return "", false },
		Signals:   make(chan os.Signal),
		Context:   context.Background(),
	}, stdout, stderr
}

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		dash    int
		paths   []string
		command []string
	}{
		{name: "no dash", args: []string{"go", "test"}, dash: -1, command: []string{"go", "test"}},
		{name: "paths and command", args: []string{"src", "lib", "make"}, dash: 2, paths: []string{"src", "lib"}, command: []string{"make"}},
		{name: "dash first", args: []string{"make", "all"}, dash: 0, paths: []string{}, command: []string{"make", "all"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			paths, command := splitArgs(tc.args, tc.dash)
			if strings.Join(paths, " ") != strings.Join(tc.paths, " ") {
				t.Fatalf("expected paths %v, got %v", tc.paths, paths)
			}
			if strings.Join(command, " ") != strings.Join(tc.command, " ") {
				t.Fatalf("expected command %v, got %v", tc.command, command)
			}
		})
	}
}

func TestRunWithoutCommandFails(t *testing.T) {
	d, _, stderr := testDeps(t, t.TempDir())
	code := run([]string{}, d)
	if code != loop.ExitFatal {
		t.Fatalf("expected exit %d, got %d", loop.ExitFatal, code)
	}
	if !strings.HasPrefix(stderr.String(), "wexec: no command given") {
		t.Fatalf("expected no command message, got %q", stderr.String())
	}
	if strings.Count(stderr.String(), "\n") != 1 {
		t.Fatalf("expected a single line error, got %q", stderr.String())
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		message string
	}{
		{name: "bad policy", args: []string{"--on-busy-update", "later", "--", "true"}, message: "on-busy-update"},
		{name: "bad signal", args: []string{"--signal", "SIGKILL", "--", "true"}, message: "signal"},
		{name: "bad glob", args: []string{"-i", "src/[", "--", "true"}, message: "invalid ignore glob"},
		{name: "missing path", args: []string{"does-not-exist", "--", "true"}, message: "does-not-exist"},
		{name: "unknown flag", args: []string{"--frobnicate", "--", "true"}, message: "unknown flag"},
		{name: "missing config", args: []string{"--config", "nope.toml", "--", "true"}, message: "config file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, stdout, stderr := testDeps(t, t.TempDir())
			code := run(tc.args, d)
			if code != loop.ExitFatal {
				t.Fatalf("expected exit %d, got %d", loop.ExitFatal, code)
			}
			if !strings.Contains(stderr.String(), tc.message) {
				t.Fatalf("expected %q in stderr, got %q", tc.message, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Fatalf("expected nothing on stdout, got %q", stdout.String())
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	d, stdout, _ := testDeps(t, t.TempDir())
	if code := run([]string{"--version"}, d); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "wexec version ") {
		t.Fatalf("expected version output, got %q", stdout.String())
	}
}

func TestRunEnvironmentErrors(t *testing.T) {
	d, _, stderr := testDeps(t, t.TempDir())
	d.LookupEnv = func(name string) (string, bool) {
		if name == "WEXEC_DEBOUNCE" {
			return "fast", true
		}
		return "", false
	}
	if code := run([]string{"--", "true"}, d); code != loop.ExitFatal {
		t.Fatalf("expected exit %d, got %d", loop.ExitFatal, code)
	}
	if !strings.Contains(stderr.String(), "WEXEC_DEBOUNCE") {
		t.Fatalf("expected variable name in error, got %q", stderr.String())
	}
}

func TestRunTerminatesOnSignal(t *testing.T) {
	dir := t.TempDir()
	d, _, _ := testDeps(t, dir)
	signals := make(chan os.Signal, 1)
	d.Signals = signals

	done := make(chan int, 1)
	go func() {
		done <- run([]string{"--no-global-ignore", "--", "sleep", "10"}, d)
	}()
	time.Sleep(200 * time.Millisecond)
	signals <- os.Interrupt

	select {
	case code := <-done:
		if code != loop.ExitTerminated {
			t.Fatalf("expected exit %d, got %d", loop.ExitTerminated, code)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after signal")
	}
}
