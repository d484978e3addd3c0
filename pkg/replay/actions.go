package replay

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/polling"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// submitKeys trigger the owning form's submit notification after the key
// sequence, matching how browsers treat Enter inside a form field.
var submitKeys = map[string]bool{"Enter": true, "NumpadEnter": true}

// actionRunner dispatches one resolved step to its executor. It is stateless;
// each call is a pure function of its inputs plus the capability interface.
type actionRunner struct {
	page     capability.Page
	logger   *zap.Logger
	keyDelay time.Duration
}

// run performs the recorded effect. el is the resolved primary target (nil
// for page-level actions), target the resolved drop target for drags, and
// value the variable-substituted payload.
func (a *actionRunner) run(ctx context.Context, step schemas.Step, el, target capability.Element, value string) error {
	switch step.Type {
	case schemas.StepClick:
		return a.click(ctx, el, false)
	case schemas.StepDoubleClick:
		return a.click(ctx, el, true)
	case schemas.StepTypeText:
		return a.typeText(ctx, el, value)
	case schemas.StepSelect:
		return a.selectOption(ctx, el, value)
	case schemas.StepDrag:
		return a.drag(ctx, el, target)
	case schemas.StepKeypress:
		return a.keypress(ctx, el, value)
	case schemas.StepScroll:
		return a.scroll(ctx, value)
	case schemas.StepNavigate:
		return a.page.Navigate(ctx, value)
	case schemas.StepTabOpen:
		return a.page.OpenTab(ctx, value)
	case schemas.StepTabSwitch:
		return a.tabIndexOp(ctx, value, a.page.SwitchTab)
	case schemas.StepTabClose:
		return a.tabIndexOp(ctx, value, a.page.CloseTab)
	case schemas.StepFileUpload:
		// The session routes file selection into takeover before reaching
		// here; this branch only fires if that policy is bypassed.
		return newError(schemas.FailureUnsupportedAction, "file selection cannot be automated")
	default:
		return newError(schemas.FailureUnsupportedAction, "unknown step type %q", step.Type)
	}
}

// click scrolls the element into view and replays a down/up/click sequence at
// its visual center; double clicks repeat the sequence and finish with dblclick.
func (a *actionRunner) click(ctx context.Context, el capability.Element, double bool) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		return err
	}
	box, err := el.Box(ctx)
	if err != nil {
		return err
	}
	cx := box.X + box.Width/2
	cy := box.Y + box.Height/2

	sequence := []string{"mousedown", "mouseup", "click"}
	if double {
		sequence = append(sequence, "mousedown", "mouseup", "click", "dblclick")
	}
	for _, evType := range sequence {
		if err := el.Dispatch(ctx, capability.Event{Type: evType, ClientX: cx, ClientY: cy}); err != nil {
			return err
		}
	}
	return nil
}

// typeText focuses the field, clears it, then appends characters one at a
// time with an input notification after each, so incremental-input page logic
// (masks, autocomplete) sees the same stream it saw at recording time.
func (a *actionRunner) typeText(ctx context.Context, el capability.Element, value string) error {
	if err := el.Focus(ctx); err != nil {
		return err
	}
	if err := el.SetValue(ctx, ""); err != nil {
		return err
	}
	runes := []rune(value)
	for i := range runes {
		if err := el.SetValue(ctx, string(runes[:i+1])); err != nil {
			return err
		}
		if err := el.Dispatch(ctx, capability.Event{Type: "input"}); err != nil {
			return err
		}
		if a.keyDelay > 0 {
			if err := polling.Sleep(ctx, a.keyDelay); err != nil {
				return err
			}
		}
	}
	if err := el.Dispatch(ctx, capability.Event{Type: "change"}); err != nil {
		return err
	}
	return el.Dispatch(ctx, capability.Event{Type: "blur"})
}

// selectOption matches the recorded value against the element's options:
// exact value, exact visible text (case-insensitive), text substring, then
// value substring; first match wins. No match is a mapping failure, which is
// a different remediation than "element not found".
func (a *actionRunner) selectOption(ctx context.Context, el capability.Element, value string) error {
	opts, err := el.Options(ctx)
	if err != nil {
		return err
	}
	match, ok := matchOption(opts, value)
	if !ok {
		return newError(schemas.FailureMapping, "no option matching %q among %d options", value, len(opts))
	}
	if err := el.SetValue(ctx, match.Value); err != nil {
		return err
	}
	return el.Dispatch(ctx, capability.Event{Type: "change"})
}

func matchOption(opts []capability.SelectOption, value string) (capability.SelectOption, bool) {
	lower := strings.ToLower(value)
	for _, o := range opts {
		if o.Value == value {
			return o, true
		}
	}
	for _, o := range opts {
		if strings.ToLower(o.Text) == lower {
			return o, true
		}
	}
	for _, o := range opts {
		if strings.Contains(strings.ToLower(o.Text), lower) {
			return o, true
		}
	}
	for _, o := range opts {
		if strings.Contains(strings.ToLower(o.Value), lower) {
			return o, true
		}
	}
	return capability.SelectOption{}, false
}

// drag emits a dragstart/dragover/drop/dragend sequence; one transfer id
// links the four events to a shared DataTransfer payload.
func (a *actionRunner) drag(ctx context.Context, source, target capability.Element) error {
	transferID := uuid.NewString()

	srcBox, err := source.Box(ctx)
	if err != nil {
		return err
	}
	dstBox, err := target.Box(ctx)
	if err != nil {
		return err
	}
	sx, sy := srcBox.X+srcBox.Width/2, srcBox.Y+srcBox.Height/2
	dx, dy := dstBox.X+dstBox.Width/2, dstBox.Y+dstBox.Height/2

	if err := source.Dispatch(ctx, capability.Event{Type: "dragstart", ClientX: sx, ClientY: sy, TransferID: transferID}); err != nil {
		return err
	}
	if err := target.Dispatch(ctx, capability.Event{Type: "dragover", ClientX: dx, ClientY: dy, TransferID: transferID}); err != nil {
		return err
	}
	if err := target.Dispatch(ctx, capability.Event{Type: "drop", ClientX: dx, ClientY: dy, TransferID: transferID}); err != nil {
		return err
	}
	return source.Dispatch(ctx, capability.Event{Type: "dragend", ClientX: sx, ClientY: sy, TransferID: transferID})
}

// keypress replays down/press/up for the key; a submit key inside a form also
// triggers the form's submit notification.
func (a *actionRunner) keypress(ctx context.Context, el capability.Element, key string) error {
	for _, evType := range []string{"keydown", "keypress", "keyup"} {
		if err := el.Dispatch(ctx, capability.Event{Type: evType, Key: key}); err != nil {
			return err
		}
	}
	if !submitKeys[key] {
		return nil
	}
	form, err := el.FormOwner(ctx)
	if err != nil {
		return err
	}
	if form == nil {
		return nil
	}
	return form.Dispatch(ctx, capability.Event{Type: "submit"})
}

// scroll expects "x,y" coordinates in the step value.
func (a *actionRunner) scroll(ctx context.Context, value string) error {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return newError(schemas.FailureMapping, "malformed scroll coordinates %q", value)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil {
		return newError(schemas.FailureMapping, "malformed scroll coordinates %q", value)
	}
	return a.page.Scroll(ctx, x, y)
}

func (a *actionRunner) tabIndexOp(ctx context.Context, value string, op func(context.Context, int) error) error {
	idx, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return newError(schemas.FailureMapping, "malformed tab index %q", value)
	}
	return op(ctx, idx)
}
