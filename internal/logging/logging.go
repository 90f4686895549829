// Package logging provides slog-based structured logging with per-module
// levels that can be changed at runtime, optional systemd journal output,
// and a ring buffer that feeds the UI log view.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultRingSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this instead of the concrete type where a fake is useful in tests.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	modules     = make(map[string]*slog.Logger)
	levels      = make(map[string]*slog.LevelVar)
	ring        *RingBuffer
	callback    EntryCallback
)

// Initialize sets up the logging system. Loggers handed out before
// Initialize are recreated so they pick up the configured handler chain.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = config
	initialized = true
	ring = NewRingBuffer(defaultRingSize)

	for module, lv := range levels {
		lv.Set(levelFor(module))
		modules[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}

	global := &slog.LevelVar{}
	global.Set(levelFor(""))
	slog.SetDefault(slog.New(newHandler(cfg.Format, global)))
}

// GetLogger returns a logger for the given module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := modules[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := modules[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(levelFor(module))

	format := "text"
	if initialized {
		format = cfg.Format
	}
	l := slog.New(newHandler(format, lv)).With("module", module)
	modules[module] = l
	levels[module] = lv
	return l
}

// SetModuleLevel changes a module's log level at runtime.
func SetModuleLevel(module, level string) {
	mu.Lock()
	defer mu.Unlock()
	if lv, ok := levels[module]; ok {
		if parsed, ok := parseLevel(level); ok {
			lv.Set(parsed)
		}
	}
}

// Buffer returns the ring buffer holding recent log entries.
func Buffer() *RingBuffer {
	mu.Lock()
	defer mu.Unlock()
	if ring == nil {
		ring = NewRingBuffer(defaultRingSize)
	}
	return ring
}

// SetEntryCallback registers a callback invoked for every new log entry.
// Used to publish log events to SSE subscribers.
func SetEntryCallback(cb EntryCallback) {
	mu.Lock()
	defer mu.Unlock()
	callback = cb
}

// levelFor resolves the effective level for a module (callers hold mu).
func levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if !initialized {
		return level
	}
	if parsed, ok := parseLevel(cfg.Level); ok {
		level = parsed
	}
	if override, exists := cfg.Modules[module]; exists {
		if parsed, ok := parseLevel(override); ok {
			level = parsed
		}
	}
	return level
}

// newHandler builds the handler chain: stdout (text or json), the systemd
// journal when available, and the ring buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := []slog.Handler{stdout}
	if journalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewRingHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return teeHandler(handlers)
}

// teeHandler duplicates every record to each sink. The sinks carry their
// own Leveler, so filtering stays per-sink.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithGroup(name)
	}
	return next
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
