package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hearthdesk/hearth/internal/api/models"
	"github.com/hearthdesk/hearth/internal/updater"
)

// registerUpdateRoutes registers the self-update endpoints.
func (s *Server) registerUpdateRoutes() {
	if s.updates == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodGet,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Check if a newer version is available without downloading",
		Tags:        []string{"update"},
		Errors:      []int{500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		info, err := s.updates.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.UpdateCheckResponse{
			Body: models.UpdateCheckData{
				CurrentVersion:  info.CurrentVersion,
				LatestVersion:   info.LatestVersion,
				ReleaseNotes:    info.ReleaseNotes,
				ReleaseURL:      info.ReleaseURL,
				PublishedAt:     info.PublishedAt,
				UpdateAvailable: info.UpdateAvailable,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and apply the available update. The application must be restarted afterwards.",
		Tags:        []string{"update"},
		Errors:      []int{400, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateApplyResponse, error) {
		if err := s.updates.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		resp := &models.UpdateApplyResponse{}
		resp.Body.Message = "Update applied, restart to finish"
		return resp, nil
	})
}

// mapUpdateError converts updater errors to Huma HTTP errors.
func mapUpdateError(err error) error {
	var ue *updater.Error
	if !errors.As(err, &ue) {
		return huma.Error500InternalServerError(err.Error())
	}
	switch ue.Code {
	case updater.ErrCodeNoUpdate:
		return huma.Error400BadRequest(ue.Message)
	case updater.ErrCodeNotFound:
		return huma.Error404NotFound(ue.Message)
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable(ue.Message)
	default:
		return huma.Error500InternalServerError(ue.Message)
	}
}
