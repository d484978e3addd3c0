// Package captest provides an in-memory capability.Page backed by a fake DOM
// tree. The synthesizer, resolver, and session tests all drive it; it
// understands exactly the selector dialect the synthesizer emits.
package captest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// Node is one fake DOM element. Build trees with NewNode and Append; mutate
// mid-test through Page.Mutate to stay race-free with a running session.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Hidden   bool
	Disabled bool
	Box      schemas.BoundingBox
	Val      string
	Opts     []capability.SelectOption

	Children []*Node
	// Shadow, when non-nil, roots a shadow tree hosted by this node. Query
	// never descends into it; QueryShadow pierces it explicitly.
	Shadow *Node

	parent *Node
	id     int

	// Dispatched accumulates every event delivered to this node, in order.
	Dispatched []capability.Event
	// Focused counts focus calls; ScrolledIntoView counts scroll calls.
	Focused          int
	ScrolledIntoView int
}

// NewNode creates a detached element with a default 10x10 box.
func NewNode(tag string, attrs map[string]string) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Node{Tag: tag, Attrs: attrs, Box: schemas.BoundingBox{Width: 10, Height: 10}}
}

// Append attaches children and returns the receiver for chaining.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		c.parent = n
		n.Children = append(n.Children, c)
	}
	return n
}

// Host attaches a shadow root under this node.
func (n *Node) Host(shadowRoot *Node) *Node {
	shadowRoot.parent = n
	n.Shadow = shadowRoot
	return n
}

// Page is the fake capability.Page.
type Page struct {
	mu   sync.Mutex
	root *Node
	next int

	// NavigatedTo, ScrolledTo, and tab ops record page-level actions.
	NavigatedTo []string
	ScrolledTo  [][2]float64
	OpenedTabs  []string
	SwitchedTab []int
	ClosedTab   []int
	Highlighted []string
}

// New builds a page over the given root element, assigning stable node IDs.
func New(root *Node) *Page {
	p := &Page{root: root}
	p.number(root)
	return p
}

func (p *Page) number(n *Node) {
	if n == nil {
		return
	}
	p.next++
	n.id = p.next
	for _, c := range n.Children {
		p.number(c)
	}
	p.number(n.Shadow)
}

// Mutate runs fn with the page lock held, so tests can reshape the tree while
// a resolver polls it. Newly attached nodes get IDs assigned.
func (p *Page) Mutate(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
	p.renumber(p.root)
}

func (p *Page) renumber(n *Node) {
	if n == nil {
		return
	}
	if n.id == 0 {
		p.next++
		n.id = p.next
	}
	for _, c := range n.Children {
		if c.parent == nil {
			c.parent = n
		}
		p.renumber(c)
	}
	p.renumber(n.Shadow)
}

// Root returns the tree root for direct assertions.
func (p *Page) Root() *Node { return p.root }

// Handle wraps a node as a capability.Element.
func (p *Page) Handle(n *Node) capability.Element { return &element{page: p, node: n} }

// --- capability.Page ---

func (p *Page) Query(ctx context.Context, selector string) ([]capability.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := queryScope(p.root, selector)
	if err != nil {
		return nil, err
	}
	return p.wrap(nodes), nil
}

func (p *Page) QueryText(ctx context.Context, text string) ([]capability.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Node
	walkLight(p.root, func(n *Node) {
		if strings.TrimSpace(n.Text) == strings.TrimSpace(text) && n.Text != "" {
			out = append(out, n)
		}
	})
	return p.wrap(out), nil
}

func (p *Page) QueryRole(ctx context.Context, role, name string) ([]capability.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Node
	walkLight(p.root, func(n *Node) {
		if computedRole(n) == role && accessibleName(n) == name {
			out = append(out, n)
		}
	})
	return p.wrap(out), nil
}

func (p *Page) QueryShadow(ctx context.Context, hostChain []string, selector string) ([]capability.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	scope := p.root
	for _, hostSel := range hostChain {
		hosts, err := queryScope(scope, hostSel)
		if err != nil {
			return nil, err
		}
		var next *Node
		for _, h := range hosts {
			if h.Shadow != nil {
				next = h.Shadow
				break
			}
		}
		if next == nil {
			return nil, nil
		}
		scope = next
	}
	nodes, err := queryScope(scope, selector)
	if err != nil {
		return nil, err
	}
	return p.wrap(nodes), nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NavigatedTo = append(p.NavigatedTo, url)
	return nil
}

func (p *Page) Scroll(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScrolledTo = append(p.ScrolledTo, [2]float64{x, y})
	return nil
}

func (p *Page) Highlight(ctx context.Context, el capability.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Highlighted = append(p.Highlighted, el.NodeID())
	return nil
}

func (p *Page) OpenTab(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenedTabs = append(p.OpenedTabs, url)
	return nil
}

func (p *Page) SwitchTab(ctx context.Context, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SwitchedTab = append(p.SwitchedTab, index)
	return nil
}

func (p *Page) CloseTab(ctx context.Context, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClosedTab = append(p.ClosedTab, index)
	return nil
}

func (p *Page) wrap(nodes []*Node) []capability.Element {
	out := make([]capability.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{page: p, node: n})
	}
	return out
}

// --- element handle ---

type element struct {
	page *Page
	node *Node
}

func (e *element) NodeID() string { return strconv.Itoa(e.node.id) }

func (e *element) TagName(ctx context.Context) (string, error) { return e.node.Tag, nil }

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

func (e *element) OwnText(ctx context.Context) (string, error) {
	return strings.TrimSpace(e.node.Text), nil
}

func (e *element) Role(ctx context.Context) (string, error) { return computedRole(e.node), nil }

func (e *element) AccessibleName(ctx context.Context) (string, error) {
	return accessibleName(e.node), nil
}

func (e *element) Box(ctx context.Context) (schemas.BoundingBox, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.node.Box, nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	for n := e.node; n != nil; n = n.parent {
		if n.Hidden {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return !e.node.Disabled, nil
}

func (e *element) Parent(ctx context.Context) (capability.Element, error) {
	if e.node.parent == nil {
		return nil, nil
	}
	return &element{page: e.page, node: e.node.parent}, nil
}

func (e *element) TypeIndex(ctx context.Context) (int, error) {
	parent := e.node.parent
	if parent == nil {
		return 1, nil
	}
	idx := 0
	for _, sib := range parent.Children {
		if sib.Tag == e.node.Tag {
			idx++
		}
		if sib == e.node {
			return idx, nil
		}
	}
	// The node may live in a shadow root container.
	if parent.Shadow == e.node {
		return 1, nil
	}
	return 0, fmt.Errorf("captest: node detached from parent")
}

func (e *element) ShadowHostChain(ctx context.Context) ([]string, error) {
	var hosts []string
	for n := e.node; n != nil; n = n.parent {
		if n.parent != nil && n.parent.Shadow == n {
			host := n.parent
			hosts = append([]string{hostSelector(host)}, hosts...)
		}
	}
	return hosts, nil
}

func (e *element) Focus(ctx context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.node.Focused++
	return nil
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.node.ScrolledIntoView++
	return nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.node.Val, nil
}

func (e *element) SetValue(ctx context.Context, v string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.node.Val = v
	return nil
}

func (e *element) Options(ctx context.Context) ([]capability.SelectOption, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return append([]capability.SelectOption(nil), e.node.Opts...), nil
}

func (e *element) FormOwner(ctx context.Context) (capability.Element, error) {
	for n := e.node.parent; n != nil; n = n.parent {
		if n.Tag == "form" {
			return &element{page: e.page, node: n}, nil
		}
	}
	return nil, nil
}

func (e *element) Dispatch(ctx context.Context, ev capability.Event) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.node.Dispatched = append(e.node.Dispatched, ev)
	return nil
}

// --- helpers ---

func walkLight(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		walkLight(c, fn)
	}
}

func computedRole(n *Node) string {
	if r, ok := n.Attrs["role"]; ok {
		return r
	}
	switch n.Tag {
	case "button":
		return "button"
	case "a":
		return "link"
	case "input":
		return "textbox"
	case "select":
		return "combobox"
	case "textarea":
		return "textbox"
	}
	return ""
}

func accessibleName(n *Node) string {
	if v, ok := n.Attrs["aria-label"]; ok {
		return v
	}
	if t := strings.TrimSpace(n.Text); t != "" {
		return t
	}
	if v, ok := n.Attrs["title"]; ok {
		return v
	}
	return ""
}

func hostSelector(host *Node) string {
	if id, ok := host.Attrs["id"]; ok {
		return "#" + id
	}
	return host.Tag
}

// queryScope resolves the synthesizer's selector dialect: simple selectors
// (tag, #id, .class, [attr="v"], :nth-of-type(n)) optionally chained with
// " > " child combinators.
func queryScope(scope *Node, selector string) ([]*Node, error) {
	parts := strings.Split(selector, " > ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	var current []*Node
	walkLight(scope, func(n *Node) {
		ok, err := matchSimple(n, parts[0])
		if err == nil && ok {
			current = append(current, n)
		}
	})
	if _, err := matchSimple(scope, parts[0]); err != nil {
		return nil, err
	}
	for _, part := range parts[1:] {
		var next []*Node
		for _, n := range current {
			for _, c := range n.Children {
				ok, err := matchSimple(c, part)
				if err != nil {
					return nil, err
				}
				if ok {
					next = append(next, c)
				}
			}
		}
		current = next
	}
	return current, nil
}

func matchSimple(n *Node, sel string) (bool, error) {
	if sel == "" {
		return false, fmt.Errorf("captest: empty selector")
	}
	rest := sel

	// :nth-of-type(k) suffix.
	wantIndex := 0
	if i := strings.Index(rest, ":nth-of-type("); i >= 0 {
		numEnd := strings.Index(rest[i:], ")")
		if numEnd < 0 {
			return false, fmt.Errorf("captest: malformed selector %q", sel)
		}
		k, err := strconv.Atoi(rest[i+len(":nth-of-type(") : i+numEnd])
		if err != nil {
			return false, fmt.Errorf("captest: malformed selector %q", sel)
		}
		wantIndex = k
		rest = rest[:i] + rest[i+numEnd+1:]
	}

	// [attr="value"] predicates.
	var attrs [][2]string
	for {
		i := strings.Index(rest, "[")
		if i < 0 {
			break
		}
		j := strings.Index(rest[i:], "]")
		if j < 0 {
			return false, fmt.Errorf("captest: malformed selector %q", sel)
		}
		body := rest[i+1 : i+j]
		eq := strings.Index(body, "=")
		if eq < 0 {
			return false, fmt.Errorf("captest: malformed selector %q", sel)
		}
		attrs = append(attrs, [2]string{body[:eq], strings.Trim(body[eq+1:], `"`)})
		rest = rest[:i] + rest[i+j+1:]
	}

	// tag, #id, .classes in the remaining head.
	tag, id := "", ""
	var classes []string
	for rest != "" {
		switch rest[0] {
		case '#':
			end := nextBoundary(rest[1:])
			id = rest[1 : 1+end]
			rest = rest[1+end:]
		case '.':
			end := nextBoundary(rest[1:])
			classes = append(classes, rest[1:1+end])
			rest = rest[1+end:]
		default:
			end := nextBoundary(rest)
			tag = rest[:end]
			rest = rest[end:]
		}
	}

	if tag != "" && n.Tag != tag {
		return false, nil
	}
	if id != "" && n.Attrs["id"] != id {
		return false, nil
	}
	if len(classes) > 0 {
		have := strings.Fields(n.Attrs["class"])
		for _, want := range classes {
			found := false
			for _, h := range have {
				if h == want {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
	}
	for _, kv := range attrs {
		if n.Attrs[kv[0]] != kv[1] {
			return false, nil
		}
	}
	if wantIndex > 0 {
		if n.parent == nil {
			return wantIndex == 1, nil
		}
		idx := 0
		for _, sib := range n.parent.Children {
			if sib.Tag == n.Tag {
				idx++
			}
			if sib == n {
				break
			}
		}
		if idx != wantIndex {
			return false, nil
		}
	}
	return true, nil
}

func nextBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '#', '.', '[', ':':
			return i
		}
	}
	return len(s)
}
