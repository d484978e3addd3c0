package schemas

import (
	"errors"
	"fmt"
	"time"
)

// StepType defines the recorded action a step replays.
type StepType string

const (
	StepClick       StepType = "CLICK"
	StepDoubleClick StepType = "DOUBLE_CLICK"
	StepTypeText    StepType = "TYPE"
	StepSelect      StepType = "SELECT"
	StepDrag        StepType = "DRAG"
	StepKeypress    StepType = "KEYPRESS"
	StepScroll      StepType = "SCROLL"
	StepNavigate    StepType = "NAVIGATE"
	StepTabOpen     StepType = "TAB_OPEN"
	StepTabSwitch   StepType = "TAB_SWITCH"
	StepTabClose    StepType = "TAB_CLOSE"
	// StepFileUpload is recorded but never executed programmatically; the
	// platform forbids automating file selection, so replay always routes it
	// into the manual takeover flow.
	StepFileUpload StepType = "FILE_UPLOAD"
)

// KnownStepType reports whether t is a step type this build understands.
func KnownStepType(t StepType) bool {
	switch t {
	case StepClick, StepDoubleClick, StepTypeText, StepSelect, StepDrag,
		StepKeypress, StepScroll, StepNavigate, StepTabOpen, StepTabSwitch,
		StepTabClose, StepFileUpload:
		return true
	}
	return false
}

// RequiresElement reports whether steps of type t act on a resolved element,
// as opposed to the page or browsing context.
func (t StepType) RequiresElement() bool {
	switch t {
	case StepScroll, StepNavigate, StepTabOpen, StepTabSwitch, StepTabClose:
		return false
	}
	return true
}

// WaitHint tells the wait strategy what page-stability signal to consult
// before a step is resolved and executed.
type WaitHint string

const (
	WaitNone            WaitHint = "NONE"
	WaitNetworkIdle     WaitHint = "NETWORK_IDLE"
	WaitDOMSettled      WaitHint = "DOM_SETTLED"
	WaitElementAppeared WaitHint = "ELEMENT_APPEARED"
	WaitLoadingComplete WaitHint = "LOADING_COMPLETE"
	// WaitDuration sleeps for the step's WaitDurationMs, capped by policy.
	WaitDuration WaitHint = "DURATION"
)

// Step is one recorded action plus the metadata needed to replay it.
type Step struct {
	Type StepType `json:"type"`

	// Locators addresses the step's primary target. Nil for actions that act
	// on the page rather than an element.
	Locators *LocatorSet `json:"locators,omitempty"`

	// TargetLocators addresses the drop target of a two-target action (drag).
	TargetLocators *LocatorSet `json:"target_locators,omitempty"`

	// Value carries the action payload: text to type, option to select, key
	// to press, URL to navigate to. It may embed {{identifier}} placeholders
	// substituted from the session's variable bindings.
	Value string `json:"value,omitempty"`

	Wait           WaitHint `json:"wait,omitempty"`
	WaitDurationMs int      `json:"wait_duration_ms,omitempty"`

	// PauseBeforeExecute asks the orchestrator to offer manual takeover
	// before this step runs.
	PauseBeforeExecute bool `json:"pause_before_execute,omitempty"`
}

// Script is an ordered sequence of steps. It is an immutable input to a
// replay; the orchestrator never mutates it.
type Script struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Steps []Step `json:"steps"`
}

var (
	errEmptyLocatorSet    = errors.New("locator set is empty")
	errUnsortedLocatorSet = errors.New("locator set is not sorted by descending confidence")
)

// UnknownTagError reports an unrecognized enum tag in a decoded script.
// Unknown tags are a hard validation failure, not a silent no-op.
type UnknownTagError struct {
	Tag  string
	Kind string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Tag)
}

// Validate checks structural invariants of the script: known tags, locator
// sets present where required, and locator set invariants.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("script has no steps")
	}
	for i, step := range s.Steps {
		if !KnownStepType(step.Type) {
			return fmt.Errorf("step %d: %w", i, &UnknownTagError{Tag: string(step.Type), Kind: "step type"})
		}
		if step.Type.RequiresElement() {
			if err := step.Locators.Validate(); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		if step.Type == StepDrag {
			if err := step.TargetLocators.Validate(); err != nil {
				return fmt.Errorf("step %d: drag target: %w", i, err)
			}
		}
		if step.Wait != "" {
			switch step.Wait {
			case WaitNone, WaitNetworkIdle, WaitDOMSettled, WaitElementAppeared,
				WaitLoadingComplete, WaitDuration:
			default:
				return fmt.Errorf("step %d: %w", i, &UnknownTagError{Tag: string(step.Wait), Kind: "wait hint"})
			}
		}
	}
	return nil
}

// ReplayOptions tunes a single replay session.
type ReplayOptions struct {
	// StepDelay is the pause inserted between consecutive steps.
	StepDelay time.Duration
	// Timeout is the total element-resolution budget per step.
	Timeout time.Duration
	// StopOnError halts the session on the first recoverable step failure.
	StopOnError bool
	// HighlightElements asks the host to flash resolved elements. The core
	// emits the intent; rendering belongs to an external overlay collaborator.
	HighlightElements bool
	// StartFromStep is the zero-based index replay begins at.
	StartFromStep int
}

// replayOptionsWire is the interchange form. Durations travel as integer
// milliseconds; a raw time.Duration would serialize as nanoseconds.
type replayOptionsWire struct {
	StepDelayMs       int64 `json:"step_delay_ms"`
	TimeoutMs         int64 `json:"timeout_ms"`
	StopOnError       bool  `json:"stop_on_error"`
	HighlightElements bool  `json:"highlight_elements"`
	StartFromStep     int   `json:"start_from_step"`
}

func (o ReplayOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(replayOptionsWire{
		StepDelayMs:       o.StepDelay.Milliseconds(),
		TimeoutMs:         o.Timeout.Milliseconds(),
		StopOnError:       o.StopOnError,
		HighlightElements: o.HighlightElements,
		StartFromStep:     o.StartFromStep,
	})
}

func (o *ReplayOptions) UnmarshalJSON(data []byte) error {
	var w replayOptionsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	o.StepDelay = time.Duration(w.StepDelayMs) * time.Millisecond
	o.Timeout = time.Duration(w.TimeoutMs) * time.Millisecond
	o.StopOnError = w.StopOnError
	o.HighlightElements = w.HighlightElements
	o.StartFromStep = w.StartFromStep
	return nil
}
