package health

import "time"

// Kind classifies the observed health of the supervised server.
type Kind string

// Health kinds.
const (
	KindHealthy      Kind = "healthy"
	KindStarting     Kind = "starting"
	KindUnhealthy    Kind = "unhealthy"
	KindCrashed      Kind = "crashed"
	KindShuttingDown Kind = "shutting_down"
	KindStopped      Kind = "stopped"
)

// Status is a point-in-time health observation. ConsecutiveFailures is
// reset by any healthy probe and is the sole signal that triggers restart
// requests once it reaches the configured threshold.
type Status struct {
	Kind                Kind          `json:"kind"`
	ConsecutiveFailures int           `json:"consecutive_failures,omitempty"`
	Latency             time.Duration `json:"latency,omitempty"`
	ServerVersion       string        `json:"server_version,omitempty"`
	ExitCode            int           `json:"exit_code,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	CheckedAt           time.Time     `json:"checked_at"`
}

// Healthy reports whether the status kind is healthy.
func (s Status) Healthy() bool {
	return s.Kind == KindHealthy
}
