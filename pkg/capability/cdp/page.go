package cdp

import (
	"context"
	"fmt"
	"sync"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// tab is one browsing context: its chromedp context plus the network tracker
// feeding the stability probe.
type tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *networkTracker
}

// runTab executes chromedp actions against a tab while honoring the caller's
// context: cancelling ctx aborts the run without closing the tab.
func runTab(ctx context.Context, t *tab, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Page drives one browser window's tab set over CDP. It implements both the
// query-and-act surface and the stability probe, since network activity is
// tracked per tab.
type Page struct {
	logger *zap.Logger

	mu     sync.Mutex
	tabs   []*tab
	active int
}

var (
	_ capability.Page           = (*Page)(nil)
	_ capability.StabilityProbe = (*Page)(nil)
)

// Tabs reports how many tabs the page currently holds.
func (p *Page) Tabs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tabs)
}

func (p *Page) current() *tab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tabs[p.active]
}

// eval runs one helper call in the active tab.
func (p *Page) eval(ctx context.Context, expr string, out any) error {
	return runTab(ctx, p.current(),
		chromedp.Evaluate(bootstrapJS, nil),
		chromedp.Evaluate(expr, out))
}

func (p *Page) queryIDs(ctx context.Context, expr string) ([]capability.Element, error) {
	t := p.current()
	var ids []string
	if err := runTab(ctx, t,
		chromedp.Evaluate(bootstrapJS, nil),
		chromedp.Evaluate(expr, &ids)); err != nil {
		return nil, err
	}
	els := make([]capability.Element, len(ids))
	for i, id := range ids {
		els[i] = &element{tab: t, id: id}
	}
	return els, nil
}

func (p *Page) Query(ctx context.Context, selector string) ([]capability.Element, error) {
	return p.queryIDs(ctx, call("query", selector))
}

func (p *Page) QueryText(ctx context.Context, text string) ([]capability.Element, error) {
	return p.queryIDs(ctx, call("queryText", text))
}

func (p *Page) QueryRole(ctx context.Context, role, name string) ([]capability.Element, error) {
	return p.queryIDs(ctx, call("queryRole", role, name))
}

func (p *Page) QueryShadow(ctx context.Context, hostChain []string, selector string) ([]capability.Element, error) {
	return p.queryIDs(ctx, call("queryShadow", hostChain, selector))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", zap.String("url", url))
	return runTab(ctx, p.current(), chromedp.Navigate(url))
}

func (p *Page) Scroll(ctx context.Context, x, y float64) error {
	expr := fmt.Sprintf("window.scrollTo({left: %f, top: %f, behavior: 'instant'})", x, y)
	return runTab(ctx, p.current(), chromedp.Evaluate(expr, nil))
}

func (p *Page) Highlight(ctx context.Context, el capability.Element) error {
	handle, ok := el.(*element)
	if !ok {
		return nil
	}
	return p.eval(ctx, call("highlight", handle.id), nil)
}

// OpenTab creates a new tab in the same browser, navigates it when url is
// non-empty, and makes it the active tab.
func (p *Page) OpenTab(ctx context.Context, url string) error {
	p.mu.Lock()
	parent := p.tabs[0]
	p.mu.Unlock()

	t, err := newTab(parent.ctx)
	if err != nil {
		return err
	}
	if url != "" {
		if err := runTab(ctx, t, chromedp.Navigate(url)); err != nil {
			t.cancel()
			return err
		}
	}

	p.mu.Lock()
	p.tabs = append(p.tabs, t)
	p.active = len(p.tabs) - 1
	p.mu.Unlock()
	p.logger.Debug("tab opened", zap.String("url", url), zap.Int("index", p.active))
	return nil
}

func (p *Page) SwitchTab(ctx context.Context, index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.tabs) {
		p.mu.Unlock()
		return fmt.Errorf("cdp: no tab at index %d", index)
	}
	p.active = index
	t := p.tabs[index]
	p.mu.Unlock()
	return runTab(ctx, t, cdppage.BringToFront())
}

func (p *Page) CloseTab(ctx context.Context, index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.tabs) {
		p.mu.Unlock()
		return fmt.Errorf("cdp: no tab at index %d", index)
	}
	if len(p.tabs) == 1 {
		p.mu.Unlock()
		return fmt.Errorf("cdp: refusing to close the last tab")
	}
	t := p.tabs[index]
	p.tabs = append(p.tabs[:index], p.tabs[index+1:]...)
	if p.active >= len(p.tabs) {
		p.active = len(p.tabs) - 1
	}
	p.mu.Unlock()

	t.cancel()
	return nil
}

// Close tears down every tab. The page is unusable afterwards.
func (p *Page) Close() {
	p.mu.Lock()
	tabs := p.tabs
	p.tabs = nil
	p.mu.Unlock()
	for _, t := range tabs {
		t.cancel()
	}
}
