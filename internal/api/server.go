// Package api exposes the local control surface of the hearth host
// application: lifecycle actions, state and health queries, log access,
// an SSE event stream, and self-update endpoints. The desktop UI is its
// only intended consumer; it binds to loopback.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/hearthdesk/hearth/internal/api/models"
	"github.com/hearthdesk/hearth/internal/events"
	"github.com/hearthdesk/hearth/internal/health"
	"github.com/hearthdesk/hearth/internal/logging"
	"github.com/hearthdesk/hearth/internal/supervisor"
	"github.com/hearthdesk/hearth/internal/updater"
	"github.com/hearthdesk/hearth/internal/version"
)

// Controller is the slice of the supervisor the API needs. Satisfied by
// *supervisor.Supervisor; faked in tests.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	State() supervisor.State
	Health() health.Status
	BaseURL() string
}

// Options configures the API server.
type Options struct {
	Controller    Controller
	UpdateService updater.Service
	Bus           *events.Bus
	// PrometheusHandler, if set, is mounted at GET /metrics.
	PrometheusHandler http.Handler
}

// Server is the control API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	controller Controller
	updates    updater.Service
	bus        *events.Bus
	logger     *slog.Logger
}

// NewServer creates the control API on a fresh mux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Hearth Control API", version.Get().Version)
	config.Info.Description = "Local lifecycle control for the hearth-server process"
	// Empty servers list keeps OpenAPI paths relative.
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:        api,
		mux:        mux,
		controller: opts.Controller,
		updates:    opts.UpdateService,
		bus:        opts.Bus,
		logger:     logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetMux returns the underlying mux, mainly for tests.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves the control API on addr. Blocks until the server closes.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting control API", "addr", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the API server without waiting for open connections; the
// SSE streams would otherwise hold shutdown indefinitely.
func (s *Server) Stop() error {
	s.logger.Info("Stopping control API")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get host application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerControlRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerUpdateRoutes()
}
