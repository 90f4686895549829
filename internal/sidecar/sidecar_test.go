package sidecar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLaunchMissingBinary(t *testing.T) {
	l := NewLauncher(testLogger())
	_, err := Launch(t, l, LaunchSpec{Binary: "/nonexistent/hearth-server"})
	if err == nil {
		t.Fatal("Launch() succeeded with missing binary")
	}
}

// Launch wraps l.Launch with a shared default spec for tests.
func Launch(t *testing.T, l *Launcher, spec LaunchSpec) (Child, error) {
	t.Helper()
	if spec.Host == "" {
		spec.Host = "127.0.0.1"
	}
	if spec.LogDir == "" {
		spec.LogDir = t.TempDir()
	}
	if spec.DataDir == "" {
		spec.DataDir = t.TempDir()
	}
	return l.Launch(spec)
}

func TestLaunchIsolatedEnvironment(t *testing.T) {
	// A shell script that dumps its environment and exits lets us verify
	// nothing ambient leaks into the child.
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-server")
	out := filepath.Join(dir, "env.out")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nenv > "+out+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell available")
	}

	t.Setenv("AMBIENT_SECRET", "should-not-leak")

	l := NewLauncher(testLogger())
	child, err := Launch(t, l, LaunchSpec{
		Binary:       script,
		Port:         8123,
		LogLevel:     "debug",
		AuthDisabled: true,
	})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	waitExit(t, child)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("child env dump missing: %v", err)
	}
	env := string(data)

	for _, want := range []string{
		"HEARTH_SERVER_HOST=127.0.0.1",
		"HEARTH_SERVER_PORT=8123",
		"HEARTH_SERVER_LOG_LEVEL=debug",
		"HEARTH_SERVER_AUTH_DISABLED=1",
	} {
		if !strings.Contains(env, want) {
			t.Errorf("child env missing %q", want)
		}
	}
	if strings.Contains(env, "AMBIENT_SECRET") {
		t.Error("ambient environment leaked into the child")
	}
}

func TestChildExitCode(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-server")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := NewLauncher(testLogger())
	child, err := Launch(t, l, LaunchSpec{Binary: script})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	waitExit(t, child)

	code, exited := child.ExitCode()
	if !exited {
		t.Fatal("ExitCode() reports not exited after process end")
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if child.Alive() {
		t.Error("Alive() = true after exit")
	}
}

func TestKillStopsChild(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-server")
	// The background sleep is a grandchild inheriting the log pipe. If
	// Kill misses it, Wait blocks on the open pipe and the child never
	// reads as exited.
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 30 &\nsleep 30\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := NewLauncher(testLogger())
	child, err := Launch(t, l, LaunchSpec{Binary: script})
	if err != nil {
		t.Fatal(err)
	}
	if !child.Alive() {
		t.Fatal("child not alive right after launch")
	}

	if err := child.Kill(); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	waitExit(t, child)

	// A second kill on a dead child is a no-op.
	if err := child.Kill(); err != nil {
		t.Errorf("Kill() on dead child: %v", err)
	}
}

func TestExitCodeFromError(t *testing.T) {
	if got := exitCodeFromError(nil); got != 0 {
		t.Errorf("nil error -> %d, want 0", got)
	}
	if got := exitCodeFromError(errors.New("plain")); got != 1 {
		t.Errorf("plain error -> %d, want 1", got)
	}
}

func TestClientShutdownAck(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if gotPath != "POST /admin/shutdown" {
		t.Errorf("request = %q, want POST /admin/shutdown", gotPath)
	}
}

func TestClientCheckpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	if err := c.Checkpoint(context.Background()); err == nil {
		t.Error("Checkpoint() succeeded on 503")
	}
}

func TestClientAlive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	c := NewClient(srv.URL, testLogger())
	if !c.Alive(context.Background()) {
		t.Error("Alive() = false for responding server")
	}

	srv.Close()
	if c.Alive(context.Background()) {
		t.Error("Alive() = true for closed server")
	}
}

func waitExit(t *testing.T, child Child) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for child.Alive() {
		select {
		case <-deadline:
			t.Fatal("child did not exit in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

