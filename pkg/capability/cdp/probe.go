package cdp

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/polling"
)

const networkQuietPeriod = 500 * time.Millisecond

// networkTracker counts in-flight requests from CDP network events so the
// probe can detect quiet periods.
type networkTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
}

func trackNetwork(tabCtx context.Context) *networkTracker {
	t := &networkTracker{inflight: make(map[network.RequestID]struct{})}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.mu.Lock()
			t.inflight[e.RequestID] = struct{}{}
			t.mu.Unlock()
		case *network.EventLoadingFinished:
			t.done(e.RequestID)
		case *network.EventLoadingFailed:
			t.done(e.RequestID)
		}
	})
	return t
}

func (t *networkTracker) done(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.mu.Unlock()
}

func (t *networkTracker) inflightCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// waitIdle blocks until no request has been in flight for quietPeriod.
func (t *networkTracker) waitIdle(ctx context.Context, quietPeriod time.Duration) error {
	lastActivity := time.Now()
	return polling.WaitUntil(ctx, pollBudget(ctx), quietPeriod/4, func(context.Context) (bool, error) {
		if t.inflightCount() > 0 {
			lastActivity = time.Now()
			return false, nil
		}
		return time.Since(lastActivity) >= quietPeriod, nil
	})
}

// pollBudget reads the remaining deadline so WaitUntil and the surrounding
// context expire together.
func pollBudget(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return time.Hour
}

// WaitStable blocks until the hinted stability signal fires or the timeout
// elapses. Timing out is reported as an error; the caller decides whether
// that is fatal.
func (p *Page) WaitStable(ctx context.Context, hint schemas.WaitHint, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := p.current()

	switch hint {
	case schemas.WaitNetworkIdle:
		return t.tracker.waitIdle(ctx, networkQuietPeriod)

	case schemas.WaitLoadingComplete:
		// Document readiness first, then the request tail.
		err := polling.WaitUntil(ctx, pollBudget(ctx), 50*time.Millisecond, func(pc context.Context) (bool, error) {
			var ready bool
			if err := runTab(pc, t, chromedp.Evaluate(`document.readyState === 'complete'`, &ready)); err != nil {
				return false, nil
			}
			return ready, nil
		})
		if err != nil {
			return err
		}
		return t.tracker.waitIdle(ctx, networkQuietPeriod)

	case schemas.WaitDOMSettled:
		return p.awaitPromise(ctx, t, domSettledJS)

	case schemas.WaitElementAppeared:
		// No target is known at wait time; let the render pipeline flush so
		// resolution starts against committed layout.
		return p.awaitPromise(ctx, t, framesSettledJS)

	default:
		return nil
	}
}

func (p *Page) awaitPromise(ctx context.Context, t *tab, expr string) error {
	var ok bool
	return runTab(ctx, t, chromedp.Evaluate(expr, &ok,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true).WithReturnByValue(true)
		}))
}
