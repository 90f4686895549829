// Package sidecar owns the boundary to the supervised hearth-server
// process: spawning it with an isolated environment, signalling it, and
// talking to its admin HTTP surface.
package sidecar

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Child is the narrow capability surface the supervisor sees. Platform
// handles never leak past this interface, so supervisor logic stays
// testable with a fake.
type Child interface {
	// PID returns the operating system process id.
	PID() int
	// Alive reports whether the process has not been reaped yet.
	Alive() bool
	// Signal requests a graceful stop (SIGTERM on POSIX, a console
	// control event on Windows).
	Signal() error
	// Kill terminates the process unconditionally.
	Kill() error
	// ExitCode returns the exit code once the process has been reaped.
	ExitCode() (int, bool)
}

// LaunchSpec describes one server incarnation.
type LaunchSpec struct {
	Binary       string
	Host         string
	Port         int
	LogLevel     string
	AuthDisabled bool
	DataDir      string
	LogDir       string
}

// Launcher spawns hearth-server processes.
type Launcher struct {
	logger *slog.Logger
}

// NewLauncher creates a launcher.
func NewLauncher(logger *slog.Logger) *Launcher {
	return &Launcher{logger: logger}
}

// Launch starts the server described by spec. The child gets an explicitly
// constructed environment: host, port, log level, data directory, and the
// local-mode auth switch. Nothing ambient leaks through except PATH, which
// the server needs to locate its own helpers. Stdout and stderr go to a
// rotating log file in the log directory.
func (l *Launcher) Launch(spec LaunchSpec) (Child, error) {
	if spec.Binary == "" {
		return nil, errors.New("no server binary configured")
	}
	if _, err := os.Stat(spec.Binary); err != nil {
		return nil, fmt.Errorf("server binary %s: %w", spec.Binary, err)
	}

	cmd := exec.Command(spec.Binary)
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HEARTH_SERVER_HOST=" + spec.Host,
		"HEARTH_SERVER_PORT=" + strconv.Itoa(spec.Port),
		"HEARTH_SERVER_LOG_LEVEL=" + spec.LogLevel,
		"HEARTH_SERVER_DATA_DIR=" + spec.DataDir,
	}
	if spec.AuthDisabled {
		cmd.Env = append(cmd.Env, "HEARTH_SERVER_AUTH_DISABLED=1")
	}
	cmd.SysProcAttr = procAttr()

	serverLog := &lumberjack.Logger{
		Filename:   filepath.Join(spec.LogDir, "hearth-server.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	cmd.Stdout = serverLog
	cmd.Stderr = serverLog

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Binary, err)
	}
	l.logger.Info("Server process started", "pid", cmd.Process.Pid, "port", spec.Port, "binary", spec.Binary)

	c := &execChild{cmd: cmd, logger: l.logger, done: make(chan struct{})}
	go c.reap()
	return c, nil
}

// execChild backs Child with a real exec.Cmd.
type execChild struct {
	cmd    *exec.Cmd
	logger *slog.Logger
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
	exited   bool
}

// reap waits for the process so it never lingers as a zombie, and records
// the exit code.
func (c *execChild) reap() {
	err := c.cmd.Wait()
	code := exitCodeFromError(err)

	c.mu.Lock()
	c.exitCode = code
	c.exited = true
	c.mu.Unlock()
	close(c.done)

	c.logger.Info("Server process exited", "pid", c.cmd.Process.Pid, "exit_code", code)
}

func (c *execChild) PID() int {
	return c.cmd.Process.Pid
}

func (c *execChild) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *execChild) Signal() error {
	if !c.Alive() {
		return nil
	}
	return requestStop(c.cmd.Process.Pid)
}

func (c *execChild) Kill() error {
	if !c.Alive() {
		return nil
	}
	if err := forceKill(c.cmd.Process.Pid); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (c *execChild) ExitCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.exited
}

// exitCodeFromError extracts an exit code from a Wait error: 0 for nil,
// the process code for ExitError, 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
