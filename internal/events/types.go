// Package events provides an in-process pub/sub bus for lifecycle, health,
// and log events. The supervisor is the single publisher of lifecycle
// events; the API layer and UI observers subscribe.
package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeHealthChanged
	TypeRestartScheduled
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is broadcast on every lifecycle transition. Events are
// published in the exact order the supervisor applies them.
type StateChangedEvent struct {
	Phase     string `json:"phase" example:"running" doc:"Lifecycle phase: stopped, starting, running, restarting, shutting_down, failed"`
	Port      int    `json:"port,omitempty" example:"8000" doc:"Bound server port when running"`
	Attempt   int    `json:"attempt,omitempty" example:"2" doc:"Restart attempt number when restarting"`
	Error     string `json:"error,omitempty" doc:"Failure description when failed"`
	Timestamp string `json:"timestamp" example:"2026-08-29T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// HealthChangedEvent is broadcast when a health probe changes the observed
// status kind or failure count.
type HealthChangedEvent struct {
	Kind                string `json:"kind" example:"healthy" doc:"Health kind: healthy, starting, unhealthy, crashed, shutting_down, stopped"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty" doc:"Failed probes since the last healthy one"`
	LatencyMs           int64  `json:"latency_ms,omitempty" doc:"Round-trip time of the last successful probe"`
	ServerVersion       string `json:"server_version,omitempty" doc:"Version reported by the server"`
	LastError           string `json:"last_error,omitempty" doc:"Most recent probe error"`
	Timestamp           string `json:"timestamp" doc:"Observation timestamp"`
}

// Type returns the event type identifier for HealthChangedEvent.
func (e HealthChangedEvent) Type() uint32 { return TypeHealthChanged }

// RestartScheduledEvent is broadcast when the health monitor enqueues a
// restart, before the backoff delay begins.
type RestartScheduledEvent struct {
	Attempt   int    `json:"attempt" example:"1" doc:"Restart attempt number"`
	BackoffMs int64  `json:"backoff_ms" example:"100" doc:"Delay before the respawn"`
	Reason    string `json:"reason" example:"health_check" doc:"What triggered the restart"`
	Timestamp string `json:"timestamp" doc:"Scheduling timestamp"`
}

// Type returns the event type identifier for RestartScheduledEvent.
func (e RestartScheduledEvent) Type() uint32 { return TypeRestartScheduled }

// LogEntryEvent carries a structured log line to SSE subscribers.
type LogEntryEvent struct {
	Level     string `json:"level" example:"info" doc:"Log level"`
	Module    string `json:"module" example:"supervisor" doc:"Originating module"`
	Message   string `json:"message" doc:"Log message"`
	Timestamp string `json:"timestamp" doc:"Log timestamp"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
