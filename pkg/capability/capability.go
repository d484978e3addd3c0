// Package capability defines the host-page primitives the replay core is
// written against. DOM querying, attribute reads, and event dispatch are
// host-environment capabilities, not portable primitives; modelling them as
// injected interfaces keeps the synthesizer, resolver, and orchestrator
// unit-testable against a fake page.
package capability

import (
	"context"
	"time"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// Event is a semantic DOM event dispatched at an element or the page.
type Event struct {
	// Type is the DOM event type: "mousedown", "input", "dragstart", ...
	Type string
	// Key carries the key identifier for keyboard events.
	Key string
	// ClientX/ClientY position pointer events in CSS pixels.
	ClientX float64
	ClientY float64
	// TransferID links the events of one drag sequence to a shared
	// DataTransfer payload.
	TransferID string
}

// SelectOption is one option of a <select> element.
type SelectOption struct {
	Value string
	Text  string
}

// Element is a live handle to one DOM node. Handles stay valid for the
// lifetime of the loaded document; a navigation invalidates them.
type Element interface {
	// NodeID identifies the underlying node stably within the current
	// document. Two handles to the same node report the same NodeID.
	NodeID() string

	TagName(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// OwnText returns the element's visible text content, trimmed.
	OwnText(ctx context.Context) (string, error)
	// Role returns the element's computed ARIA role, "" when none applies.
	Role(ctx context.Context) (string, error)
	// AccessibleName returns the element's computed accessible name.
	AccessibleName(ctx context.Context) (string, error)

	Box(ctx context.Context) (schemas.BoundingBox, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)

	// Parent returns the parent element, or nil at the document root.
	Parent(ctx context.Context) (Element, error)
	// TypeIndex returns the 1-based position among same-tag siblings, the
	// index used by :nth-of-type selectors.
	TypeIndex(ctx context.Context) (int, error)
	// ShadowHostChain returns the selector chain of shadow hosts enclosing
	// this element, outermost first. Empty when the element is in light DOM.
	ShadowHostChain(ctx context.Context) ([]string, error)

	Focus(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	Value(ctx context.Context) (string, error)
	SetValue(ctx context.Context, v string) error
	// Options lists a <select> element's options; empty for other elements.
	Options(ctx context.Context) ([]SelectOption, error)
	// FormOwner returns the form the element belongs to, or nil.
	FormOwner(ctx context.Context) (Element, error)

	Dispatch(ctx context.Context, ev Event) error
}

// Page is the injected query-and-act surface for one browsing context.
type Page interface {
	// Query returns the elements matching a CSS selector in the light DOM.
	Query(ctx context.Context, selector string) ([]Element, error)
	// QueryText scans for elements whose visible text equals text.
	QueryText(ctx context.Context, text string) ([]Element, error)
	// QueryRole scans for elements with the given ARIA role and accessible name.
	QueryRole(ctx context.Context, role, name string) ([]Element, error)
	// QueryShadow pierces the given host chain, then queries selector inside
	// the innermost shadow root.
	QueryShadow(ctx context.Context, hostChain []string, selector string) ([]Element, error)

	Navigate(ctx context.Context, url string) error
	Scroll(ctx context.Context, x, y float64) error
	// Highlight asks the host to visually flag an element; a no-op is a
	// valid implementation.
	Highlight(ctx context.Context, el Element) error

	OpenTab(ctx context.Context, url string) error
	SwitchTab(ctx context.Context, index int) error
	CloseTab(ctx context.Context, index int) error
}

// StabilityProbe is the optional page-stability collaborator the wait
// strategy consults before each step.
type StabilityProbe interface {
	// WaitStable blocks until the hinted stability signal fires or timeout
	// elapses. Implementations must honor ctx cancellation.
	WaitStable(ctx context.Context, hint schemas.WaitHint, timeout time.Duration) error
}

// Interactable reports whether el can receive the recorded effect: non-zero
// bounding box, visible, and not disabled. The resolver and the action
// executors share this predicate, so a resolved element is guaranteed
// actionable.
func Interactable(ctx context.Context, el Element) (bool, error) {
	box, err := el.Box(ctx)
	if err != nil {
		return false, err
	}
	if box.Empty() {
		return false, nil
	}
	visible, err := el.Visible(ctx)
	if err != nil || !visible {
		return false, err
	}
	enabled, err := el.Enabled(ctx)
	if err != nil || !enabled {
		return false, err
	}
	return true, nil
}

// SameNode reports whether two handles address the same DOM node.
func SameNode(a, b Element) bool {
	if a == nil || b == nil {
		return false
	}
	return a.NodeID() == b.NodeID()
}
