package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/hearthdesk/hearth/internal/api/models"
	"github.com/hearthdesk/hearth/internal/events"
	"github.com/hearthdesk/hearth/internal/logging"
)

// registerLogRoutes registers the log snapshot and log streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Get the most recent log entries from the in-memory buffer",
		Tags:        []string{"logs"},
	}, func(_ context.Context, input *struct {
		Limit int `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Maximum number of entries to return"`
	}) (*models.LogsResponse, error) {
		entries := logging.Buffer().Snapshot()
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		out := make([]models.LogEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, models.LogEntry{
				Timestamp:  e.Timestamp,
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: out, Count: len(out)},
		}, nil
	})

	// Historical entries first, then live tail.
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new entries.",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		for _, entry := range logging.Buffer().Snapshot() {
			event := events.LogEntryEvent{
				Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
				Level:     entry.Level,
				Module:    entry.Module,
				Message:   entry.Message,
			}
			if err := send.Data(event); err != nil {
				return
			}
		}

		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.bus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
