package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// call renders a window.__replay helper invocation with JSON-encoded
// arguments, so selector strings and values survive quoting intact.
func call(fn string, args ...any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		parts[i] = string(b)
	}
	return fmt.Sprintf("window.__replay.%s(%s)", fn, strings.Join(parts, ", "))
}

// element is a live handle into the in-page registry. It stays valid for the
// lifetime of the document that produced it.
type element struct {
	tab *tab
	id  string
}

var _ capability.Element = (*element)(nil)

func (e *element) NodeID() string { return e.id }

// eval runs one helper call against the element's own tab, which may no
// longer be the page's active one.
func (e *element) eval(ctx context.Context, out any, fn string, args ...any) error {
	args = append([]any{e.id}, args...)
	return runTab(ctx, e.tab,
		chromedp.Evaluate(bootstrapJS, nil),
		chromedp.Evaluate(call(fn, args...), out))
}

func (e *element) TagName(ctx context.Context) (string, error) {
	var tag string
	err := e.eval(ctx, &tag, "tagName")
	return tag, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := e.eval(ctx, &res, "attr", name); err != nil {
		return "", false, err
	}
	return res.Value, res.OK, nil
}

func (e *element) OwnText(ctx context.Context) (string, error) {
	var text string
	err := e.eval(ctx, &text, "ownTextOf")
	return text, err
}

func (e *element) Role(ctx context.Context) (string, error) {
	var role string
	err := e.eval(ctx, &role, "roleOf")
	return role, err
}

func (e *element) AccessibleName(ctx context.Context) (string, error) {
	var name string
	err := e.eval(ctx, &name, "accNameOf")
	return name, err
}

func (e *element) Box(ctx context.Context) (schemas.BoundingBox, error) {
	var box schemas.BoundingBox
	err := e.eval(ctx, &box, "box")
	return box, err
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.eval(ctx, &visible, "visibleOf")
	return visible, err
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := e.eval(ctx, &enabled, "enabledOf")
	return enabled, err
}

func (e *element) Parent(ctx context.Context) (capability.Element, error) {
	var id string
	if err := e.eval(ctx, &id, "parentOf"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return &element{tab: e.tab, id: id}, nil
}

func (e *element) TypeIndex(ctx context.Context) (int, error) {
	var n int
	err := e.eval(ctx, &n, "typeIndex")
	return n, err
}

func (e *element) ShadowHostChain(ctx context.Context) ([]string, error) {
	var hosts []string
	err := e.eval(ctx, &hosts, "shadowHostsOf")
	return hosts, err
}

func (e *element) Focus(ctx context.Context) error {
	return e.eval(ctx, nil, "focus")
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.eval(ctx, nil, "scrollIntoView")
}

func (e *element) Value(ctx context.Context) (string, error) {
	var v string
	err := e.eval(ctx, &v, "valueOf")
	return v, err
}

func (e *element) SetValue(ctx context.Context, v string) error {
	return e.eval(ctx, nil, "setValue", v)
}

func (e *element) Options(ctx context.Context) ([]capability.SelectOption, error) {
	var opts []capability.SelectOption
	err := e.eval(ctx, &opts, "optionsOf")
	return opts, err
}

func (e *element) FormOwner(ctx context.Context) (capability.Element, error) {
	var id string
	if err := e.eval(ctx, &id, "formOwnerOf"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return &element{tab: e.tab, id: id}, nil
}

func (e *element) Dispatch(ctx context.Context, ev capability.Event) error {
	payload := map[string]any{
		"type":       ev.Type,
		"key":        ev.Key,
		"clientX":    ev.ClientX,
		"clientY":    ev.ClientY,
		"transferId": ev.TransferID,
	}
	return e.eval(ctx, nil, "dispatchAt", payload)
}
