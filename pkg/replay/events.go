package replay

import "github.com/xkilldash9x/replay-cli/api/schemas"

// Listener receives session lifecycle events. Implementations must not block;
// they are invoked synchronously from the step loop.
type Listener interface {
	// OnProgress fires as each step begins.
	OnProgress(p schemas.Progress)
	// OnStateChange fires on every state-machine transition.
	OnStateChange(from, to schemas.SessionStatus)
	// OnTakeover fires when the session suspends for manual completion.
	OnTakeover(stepIndex int, reason string)
	// OnComplete fires once per run with the aggregated result, whatever the
	// terminal state.
	OnComplete(result schemas.ReplayResult)
}

// NopListener is the default Listener.
type NopListener struct{}

func (NopListener) OnProgress(schemas.Progress) {}
func (NopListener) OnStateChange(_, _ schemas.SessionStatus) {}
func (NopListener) OnTakeover(int, string) {}
func (NopListener) OnComplete(schemas.ReplayResult) {}

// Decision is an operator's answer to a replay prompt.
type Decision int

const (
	// DecisionProceed continues automated handling: execute the step, or for
	// a failed resolution record the failure and apply the error policy.
	DecisionProceed Decision = iota
	// DecisionSkip marks the step successful-but-skipped and advances.
	DecisionSkip
	// DecisionTakeover suspends automation so a human completes the step.
	DecisionTakeover
	// DecisionCancel ends the session and returns it to Idle.
	DecisionCancel
)

// DecisionReason says why the session is asking.
type DecisionReason string

const (
	// ReasonPauseRequested: the step is flagged pauseBeforeExecute.
	ReasonPauseRequested DecisionReason = "PAUSE_REQUESTED"
	// ReasonResolveFailed: no locator strategy produced the element.
	ReasonResolveFailed DecisionReason = "RESOLVE_FAILED"
	// ReasonForbiddenAction: the platform forbids automating this action
	// (file selection); a human must perform it.
	ReasonForbiddenAction DecisionReason = "FORBIDDEN_ACTION"
)

// DecisionPrompt carries the context an operator needs to decide.
type DecisionPrompt struct {
	StepIndex int
	Step      schemas.Step
	Reason    DecisionReason
	// Cause is the triggering error for ReasonResolveFailed.
	Cause error
}

// DecisionFunc answers prompts. It is called from the step loop; blocking
// here blocks the session, which is exactly what an interactive prompt wants.
type DecisionFunc func(p DecisionPrompt) Decision

// defaultDecide preserves the recorded policies when no operator is wired:
// resolution failures fall through to the error policy, pause flags proceed,
// and forbidden actions go to takeover as the platform requires.
func defaultDecide(p DecisionPrompt) Decision {
	if p.Reason == ReasonForbiddenAction {
		return DecisionTakeover
	}
	return DecisionProceed
}
