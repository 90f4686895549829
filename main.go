package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthdesk/hearth/cmd"
	"github.com/hearthdesk/hearth/internal/api"
	"github.com/hearthdesk/hearth/internal/config"
	"github.com/hearthdesk/hearth/internal/events"
	"github.com/hearthdesk/hearth/internal/logging"
	"github.com/hearthdesk/hearth/internal/supervisor"
	"github.com/hearthdesk/hearth/internal/updater"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"hearth.toml"`

	// Server settings
	ServerBinary        string `help:"Path to the hearth-server binary" default:"hearth-server" toml:"server.binary" env:"SERVER_BINARY"`
	ServerHost          string `help:"Host the server binds to" default:"127.0.0.1" toml:"server.host" env:"SERVER_HOST"`
	ServerPreferredPort int    `help:"Preferred server port" default:"8000" toml:"server.preferred_port" env:"SERVER_PREFERRED_PORT"`
	ServerPortRangeLow  int    `help:"Low end of the port scan range" default:"8000" toml:"server.port_range_low" env:"SERVER_PORT_RANGE_LOW"`
	ServerPortRangeHigh int    `help:"High end of the port scan range" default:"8100" toml:"server.port_range_high" env:"SERVER_PORT_RANGE_HIGH"`
	ServerLogLevel      string `help:"Log level forwarded to the server" default:"info" toml:"server.log_level" env:"SERVER_LOG_LEVEL"`
	ServerAuthDisabled  bool   `help:"Run the server in trusted local mode" default:"true" toml:"server.auth_disabled" env:"SERVER_AUTH_DISABLED"`
	ServerAutostart     bool   `help:"Start the server on launch" default:"true" toml:"server.autostart" env:"SERVER_AUTOSTART"`

	// Path settings
	WorkDir string `help:"Work directory for the lock file and server data" toml:"paths.work_dir" env:"WORK_DIR"`
	LogDir  string `help:"Directory for rotated server logs" toml:"paths.log_dir" env:"LOG_DIR"`

	// Supervisor settings
	ProbeInterval    string `help:"Health probe interval" default:"2s" toml:"supervisor.probe_interval" env:"PROBE_INTERVAL"`
	FailureThreshold int    `help:"Consecutive probe failures before a restart" default:"3" toml:"supervisor.failure_threshold" env:"FAILURE_THRESHOLD"`
	MaxRestarts      int    `help:"Restart attempts before giving up" default:"5" toml:"supervisor.max_restarts" env:"MAX_RESTARTS"`
	BackoffInitial   string `help:"Initial restart backoff" default:"100ms" toml:"supervisor.backoff_initial" env:"BACKOFF_INITIAL"`
	BackoffMax       string `help:"Maximum restart backoff" default:"30s" toml:"supervisor.backoff_max" env:"BACKOFF_MAX"`
	StartupTimeout   string `help:"Deadline for the server to become ready" default:"30s" toml:"supervisor.startup_timeout" env:"STARTUP_TIMEOUT"`
	ShutdownTimeout  string `help:"Deadline for graceful shutdown before kill" default:"10s" toml:"supervisor.shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// Control API settings
	APIAddr string `help:"Control API listen address" default:"127.0.0.1:7420" toml:"api.addr" env:"API_ADDR"`

	// Update settings
	UpdateRepository string `help:"GitHub repository for self-update" default:"hearthdesk/hearth" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases when updating" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingHealth     string `help:"Health prober logging level" default:"info" toml:"logging.health" env:"LOGGING_HEALTH"`
	LoggingSidecar    string `help:"Server process logging level" default:"info" toml:"logging.sidecar" env:"LOGGING_SIDECAR"`
	LoggingAPI        string `help:"Control API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// durationOr parses s, falling back to def on empty or invalid input.
func durationOr(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

func main() {
	// Declared ahead of the callback so config.Load can see which flags
	// were set on the command line; the callback only runs after Run.
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.Load(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		if opts.WorkDir == "" {
			opts.WorkDir = config.DefaultWorkDir()
		}
		if opts.LogDir == "" {
			opts.LogDir = config.DefaultLogDir(opts.WorkDir)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"health":     opts.LoggingHealth,
				"sidecar":    opts.LoggingSidecar,
				"api":        opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Feed log entries to SSE subscribers.
		logging.SetEntryCallback(func(entry logging.Entry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
				Level:     entry.Level,
				Module:    entry.Module,
				Message:   entry.Message,
			})
		})

		sup := supervisor.New(supervisor.Options{
			Binary:           opts.ServerBinary,
			WorkDir:          opts.WorkDir,
			LogDir:           opts.LogDir,
			Host:             opts.ServerHost,
			LogLevel:         opts.ServerLogLevel,
			AuthDisabled:     opts.ServerAuthDisabled,
			PreferredPort:    opts.ServerPreferredPort,
			PortRangeLow:     opts.ServerPortRangeLow,
			PortRangeHigh:    opts.ServerPortRangeHigh,
			ProbeInterval:    durationOr(opts.ProbeInterval, supervisor.DefaultProbeInterval),
			FailureThreshold: opts.FailureThreshold,
			MaxRestarts:      opts.MaxRestarts,
			InitialBackoff:   durationOr(opts.BackoffInitial, supervisor.DefaultInitialBackoff),
			MaxBackoff:       durationOr(opts.BackoffMax, supervisor.DefaultMaxBackoff),
			StartupTimeout:   durationOr(opts.StartupTimeout, supervisor.DefaultStartupTimeout),
			ShutdownTimeout:  durationOr(opts.ShutdownTimeout, supervisor.DefaultShutdownTimeout),
			Bus:              eventBus,
			Logger:           logging.GetLogger("supervisor"),
		})

		updateService, err := updater.NewService(&updater.Options{
			Repository: opts.UpdateRepository,
			Prerelease: opts.UpdatePrerelease,
		})
		if err != nil {
			logger.Warn("Update service unavailable", "error", err)
		}

		server := api.NewServer(&api.Options{
			Controller:        sup,
			UpdateService:     updateService,
			Bus:               eventBus,
			PrometheusHandler: promhttp.Handler(),
		})

		// Restart the server when the config file changes so new server
		// settings take effect.
		watcher := config.NewWatcher(opts.Config, func(path string) (map[string]any, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			var parsed map[string]any
			if err := toml.Unmarshal(data, &parsed); err != nil {
				return nil, err
			}
			return parsed, nil
		}, logging.GetLogger("config"))
		watcher.OnChange(func(map[string]any) {
			logger.Info("Configuration changed, restarting server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sup.Restart(ctx); err != nil {
				logger.Error("Restart after config change failed", "error", err)
			}
		})

		hooks.OnStart(func() {
			if opts.ServerAutostart {
				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				if startErr := sup.Start(ctx); startErr != nil {
					logger.Error("Failed to start hearth-server", "error", startErr)
				}
				cancel()
			}

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher unavailable", "error", watchErr)
			}

			logger.Info("Starting control API", "addr", opts.APIAddr)
			if startErr := server.Start(opts.APIAddr); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start control API", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping control API", "error", stopErr)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if stopErr := sup.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping hearth-server", "error", stopErr)
			}
		})
	})

	cli.Root().Use = "hearth"
	cli.Root().AddCommand(cmd.CreateVersionCmd())
	cli.Root().AddCommand(cmd.CreateStatusCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}
