// Package replay owns the replay session state machine. It sequences wait
// strategy, element resolution, and action execution over a script, with
// cooperative pause, cancel, and manual-takeover semantics.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/polling"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
	"github.com/xkilldash9x/replay-cli/pkg/resolver"
)

const (
	// suspensionPollInterval paces the pause wait-loop and every other
	// fixed-interval suspension point.
	suspensionPollInterval = 50 * time.Millisecond

	defaultStepTimeout = 10 * time.Second
	defaultStepDelay   = 250 * time.Millisecond
)

// Config wires a session's collaborators. Page and Logger are required.
type Config struct {
	Page capability.Page
	// Probe is the optional page-stability collaborator; without it the wait
	// strategy degrades to fixed sleeps.
	Probe  capability.StabilityProbe
	Logger *zap.Logger
	// Listener receives lifecycle events; defaults to NopListener.
	Listener Listener
	// Decide answers takeover/skip/cancel prompts; defaults to the recorded
	// policies (see defaultDecide).
	Decide DecisionFunc
	// Resolver tunes the retry policy; zero values use the defaults.
	Resolver resolver.Options
	// TypeKeyDelay spaces the per-character input notifications while typing.
	TypeKeyDelay time.Duration
}

// Session drives one script replay at a time. It is the only stateful
// component of the core: the resolver and executors are pure functions of
// their inputs, and all mutation happens under the session's lock.
//
// Steps execute strictly sequentially. Pause and cancel are cooperative,
// observed at suspension points (the per-step loop head, the pause wait-loop,
// and the resolver's poll and backoff loops) — never preemptively, so an
// action already in flight always runs to completion or failure first.
type Session struct {
	id       string
	page     capability.Page
	log      *zap.Logger
	listener Listener
	decide   DecisionFunc
	resolve  *resolver.Resolver
	actions  *actionRunner
	wait     *waitStrategy

	mu              sync.Mutex
	status          schemas.SessionStatus
	script          *schemas.Script
	opts            schemas.ReplayOptions
	bindings        map[string]string
	cursor          int
	results         []schemas.StepResult
	errs            []string
	startTime       time.Time
	paused          bool
	cancelRequested bool
	cancelCh        chan struct{}
	takeoverCh      chan bool
	doneCh          chan struct{}
	result          schemas.ReplayResult
}

// NewSession creates an idle session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Page == nil || cfg.Logger == nil {
		return nil, errors.New("replay: session requires a page and a logger")
	}
	if cfg.Listener == nil {
		cfg.Listener = NopListener{}
	}
	if cfg.Decide == nil {
		cfg.Decide = defaultDecide
	}
	s := &Session{
		id:       uuid.NewString(),
		page:     cfg.Page,
		log:      cfg.Logger.With(zap.String("component", "ReplaySession")),
		listener: cfg.Listener,
		decide:   cfg.Decide,
		status:   schemas.StatusIdle,
		actions:  &actionRunner{page: cfg.Page, logger: cfg.Logger, keyDelay: cfg.TypeKeyDelay},
		wait:     &waitStrategy{probe: cfg.Probe, logger: cfg.Logger},
	}
	// The resolver shares the session's suspension gate so pause and cancel
	// reach inside its poll and backoff loops.
	ropts := cfg.Resolver
	ropts.Gate = sessionGate{s}
	s.resolve = resolver.New(cfg.Page, cfg.Logger, ropts)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start begins replaying script with the given variable bindings. It returns
// immediately; the step loop runs on its own goroutine until a terminal
// state. Starting is only valid when no replay is active; each Start is a
// fresh run with fresh control state, never a resumption of a terminated one.
func (s *Session) Start(ctx context.Context, script *schemas.Script, bindings map[string]string, opts schemas.ReplayOptions) error {
	if err := script.Validate(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultStepTimeout
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = defaultStepDelay
	}
	if opts.StartFromStep < 0 || opts.StartFromStep >= len(script.Steps) {
		opts.StartFromStep = 0
	}

	s.mu.Lock()
	if !s.status.Terminal() {
		defer s.mu.Unlock()
		return fmt.Errorf("replay: session is %s; cancel it before starting again", s.status)
	}
	s.script = script
	s.opts = opts
	s.bindings = make(map[string]string, len(bindings))
	for k, v := range bindings {
		s.bindings[k] = v
	}
	s.cursor = opts.StartFromStep
	s.results = nil
	s.errs = nil
	s.paused = false
	s.cancelRequested = false
	s.cancelCh = make(chan struct{})
	s.takeoverCh = make(chan bool, 1)
	s.doneCh = make(chan struct{})
	s.startTime = time.Now()
	from := s.status
	s.status = schemas.StatusReplaying
	s.mu.Unlock()

	s.listener.OnStateChange(from, schemas.StatusReplaying)
	s.log.Info("replay started",
		zap.String("session", s.id),
		zap.String("script", script.ID),
		zap.Int("steps", len(script.Steps)),
		zap.Int("start_from", opts.StartFromStep))

	go s.run(ctx)
	return nil
}

// Pause requests suspension before the next step or poll tick. It never
// interrupts an action in flight.
func (s *Session) Pause() {
	s.transition(schemas.StatusReplaying, schemas.StatusPaused, func() { s.paused = true })
}

// Resume continues a paused replay.
func (s *Session) Resume() {
	s.transition(schemas.StatusPaused, schemas.StatusReplaying, func() { s.paused = false })
}

// Cancel ends the session from any non-terminal state. Cancellation is
// cooperative: the in-flight step completes or fails first, then the session
// settles to Idle within a bounded delay.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.status.Terminal() || s.cancelRequested {
		s.mu.Unlock()
		return
	}
	s.cancelRequested = true
	s.paused = false
	close(s.cancelCh)
	s.mu.Unlock()
	s.log.Info("cancellation requested", zap.String("session", s.id))
}

// CompleteTakeover signals that the human finished the current step; the step
// is marked successful and the replay resumes.
func (s *Session) CompleteTakeover() { s.signalTakeover(true) }

// CancelTakeover abandons the takeover and ends the session.
func (s *Session) CancelTakeover() { s.signalTakeover(false) }

func (s *Session) signalTakeover(complete bool) {
	s.mu.Lock()
	ch := s.takeoverCh
	active := s.status == schemas.StatusTakeover
	s.mu.Unlock()
	if !active || ch == nil {
		return
	}
	select {
	case ch <- complete:
	default:
	}
}

// GetState reports the control-surface snapshot.
func (s *Session) GetState() schemas.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	if s.script != nil {
		total = len(s.script.Steps)
	}
	return schemas.SessionState{Status: s.status, CurrentStep: s.cursor, TotalSteps: total}
}

// Done is closed when the current run reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

// Result returns the aggregated outcome of the last finished run.
func (s *Session) Result() schemas.ReplayResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// transition applies mutate and flips from→to if the session is in from.
func (s *Session) transition(from, to schemas.SessionStatus, mutate func()) {
	s.mu.Lock()
	if s.status != from {
		s.mu.Unlock()
		return
	}
	mutate()
	s.status = to
	s.mu.Unlock()
	s.listener.OnStateChange(from, to)
	s.log.Info("session state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

// sessionGate adapts the session's suspension check to the resolver.
type sessionGate struct{ s *Session }

func (g sessionGate) Wait(ctx context.Context) error { return g.s.gate(ctx) }

// gate is the shared suspension point: it blocks while paused and fails once
// cancelled, so every poll, backoff, and loop head observes both uniformly.
// ctx must be the run's own context, never a budget-bounded child: the only
// things that may end a suspension as a cancellation are an explicit Cancel
// and the caller's context, not an expiring poll deadline.
func (s *Session) gate(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return wrapError(schemas.FailureManualCancellation, ctx.Err(), "context cancelled")
		}
		s.mu.Lock()
		cancelled := s.cancelRequested
		paused := s.paused
		s.mu.Unlock()
		if cancelled {
			return errCancelled
		}
		if !paused {
			return nil
		}
		_ = polling.Sleep(ctx, suspensionPollInterval)
	}
}

// run executes the step loop and settles the terminal state.
func (s *Session) run(ctx context.Context) {
	var final schemas.SessionStatus
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("step loop panicked", zap.Any("panic", r))
				s.appendError(newError(schemas.FailureFatal, "panic: %v", r).Error())
				final = schemas.StatusError
			}
		}()
		final = s.loop(ctx)
	}()
	s.finish(final)
}

func (s *Session) loop(ctx context.Context) schemas.SessionStatus {
	total := len(s.script.Steps)
	for {
		// Loop head: cancellation and pause are observed here before any
		// work on the next step begins.
		if err := s.gate(ctx); err != nil {
			return schemas.StatusIdle
		}

		s.mu.Lock()
		idx := s.cursor
		s.mu.Unlock()
		if idx >= total {
			return schemas.StatusComplete
		}
		step := s.script.Steps[idx]

		s.listener.OnProgress(schemas.Progress{
			StepIndex:   idx,
			TotalSteps:  total,
			Description: describeStep(step),
		})

		res, err := s.runStep(ctx, idx, step)
		if err != nil {
			if KindOf(err) == schemas.FailureManualCancellation {
				return schemas.StatusIdle
			}
			// Fatal: record it and abort; remaining steps never execute.
			res = schemas.StepResult{
				StepIndex: idx,
				Action:    step.Type,
				Error:     err.Error(),
				ErrorKind: KindOf(err),
			}
			s.appendResult(res)
			s.log.Error("fatal step error", zap.Int("step", idx), zap.Error(err))
			return schemas.StatusError
		}

		s.appendResult(res)
		if !res.Success && s.opts.StopOnError {
			return schemas.StatusError
		}

		s.mu.Lock()
		s.cursor = idx + 1
		s.mu.Unlock()

		// Inter-step delay, itself a suspension point via the next loop head.
		if s.opts.StepDelay > 0 {
			if err := polling.Sleep(ctx, s.opts.StepDelay); err != nil {
				return schemas.StatusIdle
			}
		}
	}
}

// runStep performs one step end to end: wait, pre-execution prompt, resolve,
// inject, act. The returned error is nil for recorded outcomes (including
// recoverable failures); non-nil only for cancellation and fatal conditions.
func (s *Session) runStep(ctx context.Context, idx int, step schemas.Step) (schemas.StepResult, error) {
	started := time.Now()
	res := schemas.StepResult{StepIndex: idx, Action: step.Type}
	finish := func() schemas.StepResult {
		res.ExecutionTimeMs = time.Since(started).Milliseconds()
		return res
	}

	if err := s.wait.before(ctx, step); err != nil {
		if ctx.Err() != nil {
			return res, errCancelled
		}
		// A failed stability signal delays nothing further; resolution has
		// its own polling budget.
		s.log.Warn("wait strategy failed", zap.Int("step", idx), zap.Error(err))
	}

	if step.PauseBeforeExecute {
		switch s.decide(DecisionPrompt{StepIndex: idx, Step: step, Reason: ReasonPauseRequested}) {
		case DecisionTakeover:
			if err := s.enterTakeover(ctx, idx, "step flagged for manual confirmation"); err != nil {
				return res, err
			}
			res.Success = true
			return finish(), nil
		case DecisionSkip:
			res.Success, res.Skipped = true, true
			return finish(), nil
		case DecisionCancel:
			return res, errCancelled
		}
	}

	// File selection is never automated; that is platform policy, not a gap.
	if step.Type == schemas.StepFileUpload {
		switch s.decide(DecisionPrompt{StepIndex: idx, Step: step, Reason: ReasonForbiddenAction}) {
		case DecisionSkip:
			res.Success, res.Skipped = true, true
			return finish(), nil
		case DecisionCancel:
			return res, errCancelled
		default:
			if err := s.enterTakeover(ctx, idx, "file selection requires manual action"); err != nil {
				return res, err
			}
			res.Success = true
			return finish(), nil
		}
	}

	var el, target capability.Element
	if step.Type.RequiresElement() {
		var err error
		el, err = s.resolve.Resolve(ctx, step.Locators, s.opts.Timeout)
		if err == nil && step.Type == schemas.StepDrag {
			target, err = s.resolve.Resolve(ctx, step.TargetLocators, s.opts.Timeout)
		}
		if err != nil {
			return s.handleResolveFailure(ctx, idx, step, err, finish)
		}
		res.ElementFound = true
		if s.opts.HighlightElements {
			if hlErr := s.page.Highlight(ctx, el); hlErr != nil {
				s.log.Debug("highlight failed", zap.Error(hlErr))
			}
		}
	}

	value, missing := Inject(step.Value, s.bindings)
	if len(missing) > 0 {
		// Non-fatal, but never silent: the placeholder passed through verbatim.
		res.UnresolvedVars = missing
		s.log.Warn("unresolved variable placeholders",
			zap.Int("step", idx),
			zap.Strings("identifiers", missing))
	}

	if err := s.actions.run(ctx, step, el, target, value); err != nil {
		kind := schemas.FailureActionExecution
		var re *Error
		if errors.As(err, &re) {
			kind = re.Kind
		}
		res.Error = err.Error()
		res.ErrorKind = kind
		s.log.Warn("step action failed",
			zap.Int("step", idx),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return finish(), nil
	}

	res.Success = true
	return finish(), nil
}

// handleResolveFailure surfaces a resolution failure through the
// skip/takeover/cancel decision; it is never silently dropped.
func (s *Session) handleResolveFailure(ctx context.Context, idx int, step schemas.Step, err error, finish func() schemas.StepResult) (schemas.StepResult, error) {
	res := schemas.StepResult{StepIndex: idx, Action: step.Type}
	wrapRes := func() schemas.StepResult {
		out := finish()
		out.Success, out.Skipped = res.Success, res.Skipped
		out.Error, out.ErrorKind = res.Error, res.ErrorKind
		return out
	}

	if KindOf(err) == schemas.FailureManualCancellation {
		return res, err
	}

	var tagErr *schemas.UnknownTagError
	if errors.As(err, &tagErr) {
		res.Error = err.Error()
		res.ErrorKind = schemas.FailureUnsupportedAction
		return wrapRes(), nil
	}
	if !errors.Is(err, resolver.ErrNotFound) {
		return res, wrapError(schemas.FailureFatal, err, "resolving step %d", idx)
	}

	cause := wrapError(schemas.FailureElementNotFound, err, "locating %s", describeStep(step))
	s.log.Warn("element resolution failed", zap.Int("step", idx), zap.Error(cause))

	switch s.decide(DecisionPrompt{StepIndex: idx, Step: step, Reason: ReasonResolveFailed, Cause: cause}) {
	case DecisionSkip:
		res.Success, res.Skipped = true, true
		return wrapRes(), nil
	case DecisionTakeover:
		if err := s.enterTakeover(ctx, idx, "element not found: "+describeStep(step)); err != nil {
			return res, err
		}
		res.Success = true
		return wrapRes(), nil
	case DecisionCancel:
		return res, errCancelled
	default:
		res.Error = cause.Error()
		res.ErrorKind = schemas.FailureElementNotFound
		return wrapRes(), nil
	}
}

// enterTakeover suspends the loop until the human completes or abandons the
// step. A nil return means completed; the step counts as a success.
func (s *Session) enterTakeover(ctx context.Context, idx int, reason string) error {
	s.mu.Lock()
	from := s.status
	s.status = schemas.StatusTakeover
	ch := s.takeoverCh
	cancelCh := s.cancelCh
	s.mu.Unlock()

	s.listener.OnStateChange(from, schemas.StatusTakeover)
	s.listener.OnTakeover(idx, reason)
	s.log.Info("entering manual takeover", zap.Int("step", idx), zap.String("reason", reason))

	select {
	case complete := <-ch:
		if !complete {
			return errCancelled
		}
		s.mu.Lock()
		s.status = schemas.StatusReplaying
		s.mu.Unlock()
		s.listener.OnStateChange(schemas.StatusTakeover, schemas.StatusReplaying)
		return nil
	case <-cancelCh:
		return errCancelled
	case <-ctx.Done():
		return wrapError(schemas.FailureManualCancellation, ctx.Err(), "context cancelled during takeover")
	}
}

func (s *Session) appendResult(res schemas.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	if !res.Success && res.Error != "" {
		s.errs = append(s.errs, fmt.Sprintf("step %d: %s", res.StepIndex, res.Error))
	}
}

func (s *Session) appendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, msg)
}

// finish settles the terminal state and publishes the aggregated result.
func (s *Session) finish(status schemas.SessionStatus) {
	s.mu.Lock()
	from := s.status
	s.status = status
	result := schemas.ReplayResult{
		SessionID:     s.id,
		Status:        status,
		Success:       status == schemas.StatusComplete && len(s.errs) == 0,
		StepsExecuted: len(s.results),
		StepResults:   append([]schemas.StepResult(nil), s.results...),
		Errors:        append([]string(nil), s.errs...),
		StartTime:     s.startTime,
		EndTime:       time.Now(),
	}
	s.result = result
	done := s.doneCh
	s.mu.Unlock()

	if from != status {
		s.listener.OnStateChange(from, status)
	}
	s.listener.OnComplete(result)
	s.log.Info("replay finished",
		zap.String("session", s.id),
		zap.String("status", string(status)),
		zap.Int("steps_executed", result.StepsExecuted),
		zap.Bool("success", result.Success))
	close(done)
}

// describeStep builds the brief descriptor carried by progress events and
// takeover prompts.
func describeStep(step schemas.Step) string {
	label := "page"
	if step.Locators != nil && step.Locators.HumanLabel != "" {
		label = step.Locators.HumanLabel
	}
	switch step.Type {
	case schemas.StepClick:
		return "click " + label
	case schemas.StepDoubleClick:
		return "double-click " + label
	case schemas.StepTypeText:
		return "type into " + label
	case schemas.StepSelect:
		return fmt.Sprintf("select %q in %s", step.Value, label)
	case schemas.StepDrag:
		targetLabel := "target"
		if step.TargetLocators != nil && step.TargetLocators.HumanLabel != "" {
			targetLabel = step.TargetLocators.HumanLabel
		}
		return fmt.Sprintf("drag %s onto %s", label, targetLabel)
	case schemas.StepKeypress:
		return fmt.Sprintf("press %q on %s", step.Value, label)
	case schemas.StepScroll:
		return "scroll to " + step.Value
	case schemas.StepNavigate:
		return "navigate to " + step.Value
	case schemas.StepTabOpen:
		return "open tab " + step.Value
	case schemas.StepTabSwitch:
		return "switch to tab " + step.Value
	case schemas.StepTabClose:
		return "close tab " + step.Value
	case schemas.StepFileUpload:
		return "file upload via " + label
	default:
		return string(step.Type)
	}
}
