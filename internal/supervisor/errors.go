package supervisor

import "fmt"

// Error codes, grouped by lifecycle phase.
const (
	CodeWorkDir           = "WORK_DIR"
	CodeSpawnFailed       = "SPAWN_FAILED"
	CodeNoAvailablePort   = "NO_AVAILABLE_PORT"
	CodeStartupTimeout    = "STARTUP_TIMEOUT"
	CodeHealthCheckFailed = "HEALTH_CHECK_FAILED"
	CodeCrashed           = "CRASHED"
	CodeShutdownTimeout   = "SHUTDOWN_TIMEOUT"
	CodeRestartBudget     = "RESTART_BUDGET_EXCEEDED"
	CodeAlreadyRunning    = "ALREADY_RUNNING"
	CodeLockFile          = "LOCK_FILE"
	CodeCheckpointFailed  = "CHECKPOINT_FAILED"
	CodeNotRunning        = "NOT_RUNNING"
)

// Error is a supervisor error with a machine-checkable code, a recovery
// hint for the UI, and a transient flag. Transient tells the caller
// whether retrying Start may help; it has no bearing on the supervisor's
// own crash-recovery retries, which follow the restart budget alone.
type Error struct {
	Code      string
	Message   string
	Hint      string
	Transient bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message, hint string, transient bool, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Hint:      hint,
		Transient: transient,
		Cause:     cause,
	}
}
