// Package models holds the request and response bodies of the control API.
package models

import "time"

// StateData describes the supervisor's lifecycle snapshot.
type StateData struct {
	Phase   string `json:"phase" example:"running" doc:"Lifecycle phase: stopped, starting, running, restarting, shutting_down, failed"`
	Port    int    `json:"port,omitempty" example:"8000" doc:"Bound server port while running"`
	Attempt int    `json:"attempt,omitempty" example:"1" doc:"Restart attempt number, when relevant"`
	Error   string `json:"error,omitempty" doc:"Failure description when the phase is failed"`
	BaseURL string `json:"base_url,omitempty" example:"http://127.0.0.1:8000" doc:"Server base URL while running"`
}

// StateResponse is the HTTP response for the state endpoint.
type StateResponse struct {
	Body StateData
}

// HealthData describes the latest observed server health.
type HealthData struct {
	Kind                string `json:"kind" example:"healthy" doc:"Health kind: healthy, starting, unhealthy, crashed, shutting_down, stopped"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty" doc:"Failed probes since the last healthy one"`
	LatencyMs           int64  `json:"latency_ms,omitempty" example:"3" doc:"Round-trip time of the last successful probe"`
	ServerVersion       string `json:"server_version,omitempty" example:"1.2.3" doc:"Version reported by the server"`
	ExitCode            int    `json:"exit_code,omitempty" doc:"Exit code when the server crashed"`
	LastError           string `json:"last_error,omitempty" doc:"Most recent probe error"`
	CheckedAt           string `json:"checked_at,omitempty" doc:"Timestamp of the last probe"`
}

// HealthResponse is the HTTP response for the health endpoint.
type HealthResponse struct {
	Body HealthData
}

// VersionData represents version information
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-01T00:00:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

// VersionResponse is the HTTP response for the version endpoint.
type VersionResponse struct {
	Body VersionData
}

// ActionData acknowledges a lifecycle action.
type ActionData struct {
	Message string `json:"message" example:"Server started" doc:"Status message"`
	Phase   string `json:"phase" example:"running" doc:"Lifecycle phase after the action"`
}

// ActionResponse is the HTTP response for start, stop, and restart.
type ActionResponse struct {
	Body ActionData
}

// LogEntry is one structured log line.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Originating module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// LogsData holds recent log lines from the in-memory buffer.
type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Most recent log entries, oldest first"`
	Count   int        `json:"count" example:"120" doc:"Number of entries returned"`
}

// LogsResponse is the HTTP response for the log snapshot endpoint.
type LogsResponse struct {
	Body LogsData
}

// UpdateCheckData describes an available application update.
type UpdateCheckData struct {
	CurrentVersion  string    `json:"current_version" example:"1.0.0" doc:"Currently running version"`
	LatestVersion   string    `json:"latest_version" example:"1.1.0" doc:"Latest released version"`
	ReleaseNotes    string    `json:"release_notes,omitempty" doc:"Release notes of the latest version"`
	ReleaseURL      string    `json:"release_url,omitempty" doc:"Release page URL"`
	PublishedAt     time.Time `json:"published_at,omitempty" doc:"Release publication time"`
	UpdateAvailable bool      `json:"update_available" doc:"Whether a newer version exists"`
}

// UpdateCheckResponse is the HTTP response for the update check endpoint.
type UpdateCheckResponse struct {
	Body UpdateCheckData
}

// UpdateApplyResponse is the HTTP response for the update apply endpoint.
type UpdateApplyResponse struct {
	Body struct {
		Message string `json:"message" example:"Update applied, restart to finish" doc:"Status message"`
	}
}
