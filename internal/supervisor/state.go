package supervisor

// Phase is the supervisor's lifecycle phase. Transitions are driven by a
// single writer (Start, Stop, and the command loop) so they are serialized
// by construction.
type Phase string

const (
	PhaseStopped      Phase = "stopped"
	PhaseStarting     Phase = "starting"
	PhaseRunning      Phase = "running"
	PhaseRestarting   Phase = "restarting"
	PhaseShuttingDown Phase = "shutting_down"
	PhaseFailed       Phase = "failed"
)

// State is a snapshot of the supervisor's lifecycle.
type State struct {
	Phase   Phase  `json:"phase"`
	Port    int    `json:"port,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Terminal reports whether the phase requires caller intervention to leave.
func (s State) Terminal() bool {
	return s.Phase == PhaseStopped || s.Phase == PhaseFailed
}
