package schemas

import "time"

// SessionStatus is the replay session's state-machine state.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "IDLE"
	StatusReplaying SessionStatus = "REPLAYING"
	StatusPaused    SessionStatus = "PAUSED"
	StatusTakeover  SessionStatus = "TAKEOVER"
	StatusComplete  SessionStatus = "COMPLETE"
	StatusError     SessionStatus = "ERROR"
)

// Terminal reports whether the status ends the session's run.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusIdle
}

// FailureKind attributes a step failure to exactly one taxonomy entry so a
// consumer can render distinct remediation affordances.
type FailureKind string

const (
	// FailureElementNotFound: the resolver exhausted every strategy and attempt.
	FailureElementNotFound FailureKind = "ELEMENT_NOT_FOUND"
	// FailureMapping: the element was found but the recorded value could not
	// be applied to it (e.g. no matching select option).
	FailureMapping FailureKind = "MAPPING_FAILURE"
	// FailureActionExecution: an executor failed while manipulating a
	// resolved element. Never auto-retried.
	FailureActionExecution FailureKind = "ACTION_EXECUTION_ERROR"
	// FailureManualCancellation: the operator cancelled the session.
	FailureManualCancellation FailureKind = "MANUAL_CANCELLATION"
	// FailureFatal: an unexpected error that aborts the whole session.
	FailureFatal FailureKind = "FATAL_STEP_EXCEPTION"
	// FailureUnsupportedAction: the step carries a tag this build cannot execute.
	FailureUnsupportedAction FailureKind = "UNSUPPORTED_ACTION"
)

// StepResult records the outcome of one executed (or skipped) step. Results
// are append-only and immutable once written.
type StepResult struct {
	StepIndex    int      `json:"step_index"`
	Action       StepType `json:"action_type"`
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	ErrorKind    FailureKind `json:"error_kind,omitempty"`
	ElementFound bool     `json:"element_found"`
	Skipped      bool     `json:"skipped,omitempty"`
	// UnresolvedVars lists {{placeholders}} whose identifier had no binding.
	// Missing bindings pass through verbatim; this is non-fatal but surfaced.
	UnresolvedVars  []string `json:"unresolved_vars,omitempty"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
}

// ReplayResult is the aggregated outcome handed back when a session reaches a
// terminal state.
type ReplayResult struct {
	SessionID     string        `json:"session_id"`
	Status        SessionStatus `json:"status"`
	Success       bool          `json:"success"`
	StepsExecuted int           `json:"steps_executed"`
	StepResults   []StepResult  `json:"step_results"`
	Errors        []string      `json:"errors,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
}

// Progress is emitted as each step begins.
type Progress struct {
	StepIndex   int    `json:"step_index"`
	TotalSteps  int    `json:"total_steps"`
	Description string `json:"description"`
}

// SessionState is the control-surface snapshot returned by GetState.
type SessionState struct {
	Status      SessionStatus `json:"status"`
	CurrentStep int           `json:"current_step"`
	TotalSteps  int           `json:"total_steps"`
}
