package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/hearthdesk/hearth/internal/events"
)

// registerSSERoutes registers the lifecycle event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of lifecycle, health, and restart events",
		Tags:        []string{"events"},
	}, map[string]any{
		"state-changed":     events.StateChangedEvent{},
		"health-changed":    events.HealthChangedEvent{},
		"restart-scheduled": events.RestartScheduledEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.StateChangedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.HealthChangedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.RestartScheduledEvent](s.bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial snapshot so a fresh subscriber sees the current phase
		// without waiting for the next transition.
		st := s.controller.State()
		if err := send.Data(events.StateChangedEvent{
			Phase:     string(st.Phase),
			Port:      st.Port,
			Attempt:   st.Attempt,
			Error:     st.Err,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

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
