// Package supervisor owns the hearth-server lifecycle: single-instance
// locking, port allocation, spawning, readiness, crash recovery with
// exponential backoff, and staged graceful shutdown.
//
// Concurrency model: Start and Stop run on the caller's goroutine. While
// running, a health loop probes the server and a command loop consumes a
// single command channel; the command loop is the only code path that
// performs restarts, so respawns are serialized by construction.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hearthdesk/hearth/internal/events"
	"github.com/hearthdesk/hearth/internal/health"
	"github.com/hearthdesk/hearth/internal/lockfile"
	"github.com/hearthdesk/hearth/internal/netprobe"
	"github.com/hearthdesk/hearth/internal/sidecar"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultPreferredPort    = 8000
	DefaultPortRangeLow     = 8000
	DefaultPortRangeHigh    = 8100
	DefaultProbeInterval    = 2 * time.Second
	DefaultFailureThreshold = 3
	DefaultMaxRestarts      = 5
	DefaultInitialBackoff   = 100 * time.Millisecond
	DefaultMaxBackoff       = 30 * time.Second
	DefaultStartupTimeout   = 30 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	// Binary is the path to the hearth-server executable.
	Binary string
	// WorkDir holds the lock file and server data directory.
	WorkDir string
	// LogDir receives the rotated server log.
	LogDir string
	// Host the server binds to. Empty means 127.0.0.1.
	Host string
	// LogLevel forwarded to the server process.
	LogLevel string
	// AuthDisabled runs the server in trusted local mode.
	AuthDisabled bool

	PreferredPort    int
	PortRangeLow     int
	PortRangeHigh    int
	ProbeInterval    time.Duration
	FailureThreshold int
	MaxRestarts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	StartupTimeout   time.Duration
	ShutdownTimeout  time.Duration

	Bus    *events.Bus
	Logger *slog.Logger

	// Launch overrides process spawning, for tests. Nil means a real
	// sidecar.Launcher.
	Launch func(sidecar.LaunchSpec) (sidecar.Child, error)
	// FindPort overrides port probing, for tests. Nil means
	// netprobe.FindAvailable.
	FindPort func(preferred, lo, hi int) (int, error)
}

type commandKind int

const (
	commandRestart commandKind = iota
	commandAbandon
)

type command struct {
	kind    commandKind
	attempt int
	reason  string
}

// Supervisor manages one hearth-server process at a time.
type Supervisor struct {
	opts     Options
	logger   *slog.Logger
	bus      *events.Bus
	launch   func(sidecar.LaunchSpec) (sidecar.Child, error)
	findPort func(preferred, lo, hi int) (int, error)

	stateMu sync.RWMutex
	state   State

	// childMu guards the current incarnation: process handle, prober,
	// admin client, and bound port. The command loop swaps all four
	// together on a successful respawn.
	childMu sync.Mutex
	child   sidecar.Child
	prober  *health.Prober
	admin   *sidecar.Client
	port    int

	lockMu sync.Mutex
	lock   *lockfile.Guard

	counterMu   sync.Mutex
	restarts    int
	lastHealthy time.Time

	shutdown atomic.Bool
	active   atomic.Bool

	// lifeMu orders the per-run channel swap in Start against the
	// close in Stop, so a Stop racing a fresh Start never closes a
	// stale or nil channel.
	lifeMu     sync.Mutex
	stopCh     chan struct{}
	stopCtx    context.Context
	stopCancel context.CancelFunc
	commands   chan command
	loops      sync.WaitGroup
}

// New creates a supervisor. It does not start anything.
func New(opts Options) *Supervisor {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.PreferredPort == 0 {
		opts.PreferredPort = DefaultPreferredPort
	}
	if opts.PortRangeLow == 0 {
		opts.PortRangeLow = DefaultPortRangeLow
	}
	if opts.PortRangeHigh == 0 {
		opts.PortRangeHigh = DefaultPortRangeHigh
	}
	if opts.ProbeInterval == 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.MaxRestarts == 0 {
		opts.MaxRestarts = DefaultMaxRestarts
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = events.New()
	}

	s := &Supervisor{
		opts:     opts,
		logger:   opts.Logger,
		bus:      opts.Bus,
		launch:   opts.Launch,
		findPort: opts.FindPort,
		state:    State{Phase: PhaseStopped},
	}
	if s.launch == nil {
		launcher := sidecar.NewLauncher(opts.Logger)
		s.launch = launcher.Launch
	}
	if s.findPort == nil {
		s.findPort = netprobe.FindAvailable
	}
	return s
}

// State returns the current lifecycle snapshot.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Health returns the latest observed server health.
func (s *Supervisor) Health() health.Status {
	s.childMu.Lock()
	p := s.prober
	s.childMu.Unlock()
	if p == nil {
		return health.Status{Kind: health.KindStopped, CheckedAt: time.Now()}
	}
	return p.Snapshot()
}

// Port returns the bound server port, or zero when not running.
func (s *Supervisor) Port() int {
	s.childMu.Lock()
	defer s.childMu.Unlock()
	return s.port
}

// BaseURL returns the server's base URL, or empty when not running.
func (s *Supervisor) BaseURL() string {
	s.childMu.Lock()
	defer s.childMu.Unlock()
	if s.port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", s.opts.Host, s.port)
}

// Start brings the server from Stopped or Failed to Running. On any
// startup failure it cleans up whatever it acquired, publishes Failed,
// and returns a coded error.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.active.CompareAndSwap(false, true) {
		return newError(CodeAlreadyRunning, "supervisor is already active", "Stop the server before starting it again.", false, nil)
	}

	s.lifeMu.Lock()
	s.shutdown.Store(false)
	s.stopCh = make(chan struct{})
	s.stopCtx, s.stopCancel = context.WithCancel(context.Background())
	s.commands = make(chan command, 1)
	s.lifeMu.Unlock()
	s.resetRestartCounter()

	s.setState(State{Phase: PhaseStarting})

	if err := os.MkdirAll(s.opts.WorkDir, 0o755); err != nil {
		return s.failStartup(newError(CodeWorkDir, "cannot create work directory", "Check permissions on "+s.opts.WorkDir+".", false, err))
	}
	if err := os.MkdirAll(s.opts.LogDir, 0o755); err != nil {
		return s.failStartup(newError(CodeWorkDir, "cannot create log directory", "Check permissions on "+s.opts.LogDir+".", false, err))
	}

	port, err := s.findPort(s.opts.PreferredPort, s.opts.PortRangeLow, s.opts.PortRangeHigh)
	if err != nil {
		return s.failStartup(newError(CodeNoAvailablePort, "no free port in range", "Close other applications using local ports and retry.", true, err))
	}

	guard, err := lockfile.Acquire(s.opts.WorkDir, port, s.logger)
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyRunning) {
			return s.failStartup(newError(CodeAlreadyRunning, "another instance is already running", "Quit the other instance first.", false, err))
		}
		return s.failStartup(newError(CodeLockFile, "cannot acquire instance lock", "Check permissions on "+s.opts.WorkDir+".", true, err))
	}
	s.lockMu.Lock()
	s.lock = guard
	s.lockMu.Unlock()

	spawnCtx, cancelSpawn := context.WithCancel(ctx)
	defer cancelSpawn()
	unlink := context.AfterFunc(s.stopCtx, cancelSpawn)
	defer unlink()

	child, prober, err := s.spawn(spawnCtx, port)
	if err != nil {
		s.releaseLock()
		return s.failStartup(err)
	}

	s.childMu.Lock()
	if s.shutdown.Load() {
		// Stop ran while the server was coming up and has already
		// taken its snapshot; adopting now would leave an orphan.
		s.childMu.Unlock()
		_ = child.Kill()
		s.releaseLock()
		s.setState(State{Phase: PhaseStopped})
		s.active.Store(false)
		return newError(CodeNotRunning, "startup aborted by shutdown", "Start the server again once the shutdown has finished.", true, nil)
	}
	s.child = child
	s.prober = prober
	s.admin = sidecar.NewClient(prober.BaseURL(), s.logger)
	s.port = port
	s.childMu.Unlock()

	s.setState(State{Phase: PhaseRunning, Port: port})
	childUp.Set(1)

	s.loops.Add(2)
	go s.healthLoop()
	go s.commandLoop()
	return nil
}

// spawn launches one server incarnation on port and waits for readiness.
// The caller owns lock release on failure; spawn kills its own child.
func (s *Supervisor) spawn(ctx context.Context, port int) (sidecar.Child, *health.Prober, error) {
	spec := sidecar.LaunchSpec{
		Binary:       s.opts.Binary,
		Host:         s.opts.Host,
		Port:         port,
		LogLevel:     s.opts.LogLevel,
		AuthDisabled: s.opts.AuthDisabled,
		DataDir:      s.opts.WorkDir,
		LogDir:       s.opts.LogDir,
	}
	child, err := s.launch(spec)
	if err != nil {
		return nil, nil, newError(CodeSpawnFailed, "cannot launch hearth-server", "Verify the server binary at "+s.opts.Binary+".", false, err)
	}

	prober := health.NewProber(fmt.Sprintf("http://%s:%d", s.opts.Host, port), health.Options{
		FailureThreshold: s.opts.FailureThreshold,
		OnChange:         s.publishHealth,
		Logger:           s.logger,
	})

	if err := prober.WaitReady(ctx, s.opts.StartupTimeout); err != nil {
		// Capture the exit code before the kill so a self-inflicted exit
		// is not mistaken for a crash.
		code, exited := child.ExitCode()
		_ = child.Kill()
		if exited {
			return nil, nil, newError(CodeCrashed, fmt.Sprintf("server exited with code %d during startup", code), "Check the server log for startup errors.", true, err)
		}
		if errors.Is(err, health.ErrStartupTimeout) {
			return nil, nil, newError(CodeStartupTimeout, "server did not become ready in time", "Check the server log; slow disks can delay startup.", true, err)
		}
		return nil, nil, newError(CodeHealthCheckFailed, "server readiness checks kept failing", "Check the server log for startup errors.", true, err)
	}
	return child, prober, nil
}

// healthLoop probes the running server every ProbeInterval. Once the
// consecutive-failure count reaches the threshold it enqueues a restart,
// or an abandon once the restart budget is spent.
func (s *Supervisor) healthLoop() {
	defer s.loops.Done()
	ticker := time.NewTicker(s.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
		if s.shutdown.Load() {
			return
		}

		s.childMu.Lock()
		child, prober := s.child, s.prober
		s.childMu.Unlock()
		if prober == nil {
			continue
		}

		status := prober.Check(context.Background())
		if status.Healthy() {
			healthChecksTotal.WithLabelValues("healthy").Inc()
			s.resetRestartCounter()
			continue
		}
		healthChecksTotal.WithLabelValues("unhealthy").Inc()

		// A reaped child means crashed rather than merely unreachable.
		// The failure counter still drives recovery either way.
		if child != nil && !child.Alive() {
			if code, ok := child.ExitCode(); ok {
				prober.SetStatus(health.Status{Kind: health.KindCrashed, ExitCode: code, ConsecutiveFailures: status.ConsecutiveFailures})
			}
		}

		if status.ConsecutiveFailures < s.opts.FailureThreshold {
			continue
		}

		s.counterMu.Lock()
		attempt := s.restarts + 1
		over := attempt > s.opts.MaxRestarts
		s.counterMu.Unlock()

		if over {
			select {
			case s.commands <- command{kind: commandAbandon, attempt: attempt - 1}:
			case <-s.stopCh:
			}
			return
		}
		// Non-blocking: if a restart is already queued or in flight,
		// this probe cycle changes nothing.
		select {
		case s.commands <- command{kind: commandRestart, attempt: attempt, reason: restartReason(status)}:
			s.counterMu.Lock()
			s.restarts = attempt
			s.counterMu.Unlock()
		default:
		}
	}
}

func restartReason(status health.Status) string {
	if status.Kind == health.KindCrashed {
		return "crash"
	}
	return "health_check"
}

// commandLoop is the sole consumer of the command channel and the only
// code path that respawns the server while the supervisor is active.
func (s *Supervisor) commandLoop() {
	defer s.loops.Done()
	for {
		var cmd command
		select {
		case <-s.stopCh:
			return
		case cmd = <-s.commands:
		}
		if s.shutdown.Load() {
			return
		}

		switch cmd.kind {
		case commandRestart:
			s.handleRestart(cmd)
		case commandAbandon:
			s.handleAbandon(cmd)
			return
		}
	}
}

func (s *Supervisor) handleRestart(cmd command) {
	s.childMu.Lock()
	curProber, curChild := s.prober, s.child
	s.childMu.Unlock()
	if curProber != nil && curChild != nil && curChild.Alive() && curProber.Snapshot().Healthy() {
		// A fresher incarnation recovered while this command sat in the
		// queue. Nothing to do.
		return
	}

	delay := backoffDelay(cmd.attempt, s.opts.InitialBackoff, s.opts.MaxBackoff)
	s.logger.Warn("restarting server",
		"attempt", cmd.attempt,
		"max", s.opts.MaxRestarts,
		"backoff", delay,
		"reason", cmd.reason)

	s.setState(State{Phase: PhaseRestarting, Attempt: cmd.attempt})
	childUp.Set(0)
	restartsTotal.WithLabelValues(cmd.reason).Inc()
	s.bus.Publish(events.RestartScheduledEvent{
		Attempt:   cmd.attempt,
		BackoffMs: delay.Milliseconds(),
		Reason:    cmd.reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	s.childMu.Lock()
	old := s.child
	s.childMu.Unlock()
	if old != nil && old.Alive() {
		_ = old.Kill()
	}

	select {
	case <-time.After(delay):
	case <-s.stopCh:
		return
	}

	port, err := s.findPort(s.opts.PreferredPort, s.opts.PortRangeLow, s.opts.PortRangeHigh)
	if err != nil {
		// Leave the failure to the health loop; its next cycles will
		// enqueue the following attempt.
		s.logger.Error("restart failed: no port available", "attempt", cmd.attempt, "error", err)
		return
	}

	child, prober, err := s.spawn(s.stopCtx, port)
	if err != nil {
		s.logger.Error("restart failed", "attempt", cmd.attempt, "error", err)
		return
	}

	s.childMu.Lock()
	if s.shutdown.Load() {
		// Stop snapshotted the previous incarnation while this respawn
		// was in flight. The fresh child is ours to reap.
		s.childMu.Unlock()
		_ = child.Kill()
		return
	}
	s.child = child
	s.prober = prober
	s.admin = sidecar.NewClient(prober.BaseURL(), s.logger)
	s.port = port
	s.childMu.Unlock()

	s.setState(State{Phase: PhaseRunning, Port: port, Attempt: cmd.attempt})
	childUp.Set(1)
	s.logger.Info("server restarted", "attempt", cmd.attempt, "port", port)
}

// handleAbandon parks the supervisor in Failed. The dead child and the
// lock are cleaned up so a later Start begins from scratch.
func (s *Supervisor) handleAbandon(cmd command) {
	s.logger.Error("restart budget exhausted, giving up", "restarts", cmd.attempt)

	s.childMu.Lock()
	child := s.child
	s.child = nil
	s.admin = nil
	s.port = 0
	prober := s.prober
	s.childMu.Unlock()
	if child != nil && child.Alive() {
		_ = child.Kill()
	}
	if prober != nil {
		prober.SetStatus(health.Status{Kind: health.KindStopped})
	}
	s.releaseLock()

	childUp.Set(0)
	err := newError(CodeRestartBudget,
		fmt.Sprintf("server crashed %d times in a row", cmd.attempt),
		"Check the server log, then start the server manually.", false, nil)
	s.setState(State{Phase: PhaseFailed, Err: err.Error()})
	s.active.Store(false)
}

// Stop runs the staged shutdown sequence. It always leaves the supervisor
// in Stopped, even when every polite stage fails and the process has to be
// killed.
func (s *Supervisor) Stop(ctx context.Context) error {
	if !s.active.Load() {
		cur := s.State()
		if cur.Phase == PhaseFailed {
			// Failed already released everything; just settle the state.
			s.setState(State{Phase: PhaseStopped})
		}
		return nil
	}
	s.lifeMu.Lock()
	if !s.shutdown.CompareAndSwap(false, true) {
		s.lifeMu.Unlock()
		return nil
	}
	if s.stopCancel != nil {
		s.stopCancel()
	}
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.lifeMu.Unlock()

	s.setState(State{Phase: PhaseShuttingDown})
	childUp.Set(0)

	s.childMu.Lock()
	child, prober, admin := s.child, s.prober, s.admin
	s.child = nil
	s.prober = nil
	s.admin = nil
	s.port = 0
	s.childMu.Unlock()

	if prober != nil {
		prober.SetStatus(health.Status{Kind: health.KindShuttingDown})
	}

	if child != nil {
		s.stopChild(ctx, child, admin)
	}

	s.loops.Wait()
	s.releaseLock()

	if prober != nil {
		prober.SetStatus(health.Status{Kind: health.KindStopped})
	}
	s.setState(State{Phase: PhaseStopped})
	s.active.Store(false)
	return nil
}

// stopChild walks the shutdown stages: checkpoint, admin shutdown, OS
// signal, then a bounded wait before the hard kill. Each stage failing
// only escalates to the next; none of them aborts the sequence.
func (s *Supervisor) stopChild(ctx context.Context, child sidecar.Child, admin *sidecar.Client) {
	if admin != nil {
		if err := admin.Checkpoint(ctx); err != nil {
			s.logger.Warn("checkpoint before shutdown failed", "error", err)
		}
		if err := admin.Shutdown(ctx); err != nil {
			s.logger.Warn("admin shutdown not acknowledged, signalling process", "error", err)
			if err := child.Signal(); err != nil {
				s.logger.Warn("signal failed", "error", err)
			}
		}
	} else if err := child.Signal(); err != nil {
		s.logger.Warn("signal failed", "error", err)
	}

	// Wait until the process is gone or its health endpoint stops
	// answering, whichever comes first.
	deadline := time.Now().Add(s.opts.ShutdownTimeout)
	for time.Now().Before(deadline) {
		if !child.Alive() {
			break
		}
		if admin != nil && !admin.Alive(ctx) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if child.Alive() {
		s.logger.Warn("server did not exit in time, killing", "timeout", s.opts.ShutdownTimeout)
		_ = child.Kill()
	}
}

// Restart performs a full stop followed by a fresh start, resetting the
// restart counter.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	restartsTotal.WithLabelValues("manual").Inc()
	return s.Start(ctx)
}

func (s *Supervisor) failStartup(err error) error {
	s.setState(State{Phase: PhaseFailed, Err: err.Error()})
	childUp.Set(0)
	s.active.Store(false)
	return err
}

func (s *Supervisor) releaseLock() {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lock != nil {
		s.lock.Release()
		s.lock = nil
	}
}

func (s *Supervisor) resetRestartCounter() {
	s.counterMu.Lock()
	s.restarts = 0
	s.lastHealthy = time.Now()
	s.counterMu.Unlock()
}

func (s *Supervisor) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
	setStateGauge(state.Phase)

	s.logger.Info("state changed", "phase", state.Phase, "port", state.Port, "attempt", state.Attempt)
	s.bus.Publish(events.StateChangedEvent{
		Phase:     string(state.Phase),
		Port:      state.Port,
		Attempt:   state.Attempt,
		Error:     state.Err,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Supervisor) publishHealth(status health.Status) {
	s.bus.Publish(events.HealthChangedEvent{
		Kind:                string(status.Kind),
		ConsecutiveFailures: status.ConsecutiveFailures,
		LatencyMs:           status.Latency.Milliseconds(),
		ServerVersion:       status.ServerVersion,
		LastError:           status.LastError,
		Timestamp:           status.CheckedAt.UTC().Format(time.RFC3339),
	})
}
