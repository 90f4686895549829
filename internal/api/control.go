package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hearthdesk/hearth/internal/api/models"
	"github.com/hearthdesk/hearth/internal/supervisor"
)

// registerControlRoutes registers the lifecycle endpoints.
func (s *Server) registerControlRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/api/state",
		Summary:     "Lifecycle State",
		Description: "Get the supervisor's current lifecycle snapshot",
		Tags:        []string{"server"},
	}, func(_ context.Context, _ *struct{}) (*models.StateResponse, error) {
		st := s.controller.State()
		return &models.StateResponse{
			Body: models.StateData{
				Phase:   string(st.Phase),
				Port:    st.Port,
				Attempt: st.Attempt,
				Error:   st.Err,
				BaseURL: s.controller.BaseURL(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Server Health",
		Description: "Get the latest observed health of the supervised server",
		Tags:        []string{"server"},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		h := s.controller.Health()
		data := models.HealthData{
			Kind:                string(h.Kind),
			ConsecutiveFailures: h.ConsecutiveFailures,
			LatencyMs:           h.Latency.Milliseconds(),
			ServerVersion:       h.ServerVersion,
			ExitCode:            h.ExitCode,
			LastError:           h.LastError,
		}
		if !h.CheckedAt.IsZero() {
			data.CheckedAt = h.CheckedAt.UTC().Format(time.RFC3339)
		}
		return &models.HealthResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-server",
		Method:      http.MethodPost,
		Path:        "/api/server/start",
		Summary:     "Start Server",
		Description: "Start the supervised server process",
		Tags:        []string{"server"},
		Errors:      []int{409, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.controller.Start(ctx); err != nil {
			return nil, mapSupervisorError(err)
		}
		return s.actionResponse("Server started"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-server",
		Method:      http.MethodPost,
		Path:        "/api/server/stop",
		Summary:     "Stop Server",
		Description: "Gracefully stop the supervised server process",
		Tags:        []string{"server"},
		Errors:      []int{500},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.controller.Stop(ctx); err != nil {
			return nil, mapSupervisorError(err)
		}
		return s.actionResponse("Server stopped"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-server",
		Method:      http.MethodPost,
		Path:        "/api/server/restart",
		Summary:     "Restart Server",
		Description: "Stop and start the supervised server process",
		Tags:        []string{"server"},
		Errors:      []int{409, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.controller.Restart(ctx); err != nil {
			return nil, mapSupervisorError(err)
		}
		return s.actionResponse("Server restarted"), nil
	})
}

func (s *Server) actionResponse(message string) *models.ActionResponse {
	return &models.ActionResponse{
		Body: models.ActionData{
			Message: message,
			Phase:   string(s.controller.State().Phase),
		},
	}
}

// mapSupervisorError converts supervisor errors to Huma HTTP errors,
// surfacing the recovery hint when one exists.
func mapSupervisorError(err error) error {
	var se *supervisor.Error
	if !errors.As(err, &se) {
		return huma.Error500InternalServerError(err.Error())
	}
	msg := se.Message
	if se.Hint != "" {
		msg += " " + se.Hint
	}
	switch se.Code {
	case supervisor.CodeAlreadyRunning:
		return huma.Error409Conflict(msg)
	case supervisor.CodeNotRunning:
		return huma.Error409Conflict(msg)
	default:
		return huma.Error500InternalServerError(msg)
	}
}
