// Package resolver re-locates recorded elements at replay time. It walks a
// LocatorSet's ranked ladder with retries and backoff, degrading to
// lower-confidence strategies instead of failing on the first broken
// selector.
package resolver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/polling"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// ErrNotFound is returned once every strategy and attempt is exhausted.
var ErrNotFound = errors.New("element not found by any locator strategy")

// Gate is an optional suspension-point hook the orchestrator injects so
// pause and cancel are observed inside the resolver's poll and backoff loops,
// not just between steps.
type Gate interface {
	// Wait blocks while the session is paused and returns an error when the
	// session is cancelled.
	Wait(ctx context.Context) error
}

// Options tunes the retry policy. Zero values fall back to the defaults the
// recorded scripts were tuned against.
type Options struct {
	// Attempts is how many times the whole ranked ladder is retried.
	Attempts int
	// BaseBackoff grows linearly with the attempt number between ladders.
	BaseBackoff time.Duration
	// PollInterval paces the per-locator polling.
	PollInterval time.Duration
	// Gate, when set, is consulted at every poll tick and backoff sleep.
	Gate Gate
}

const (
	defaultAttempts     = 3
	defaultBaseBackoff  = 500 * time.Millisecond
	defaultPollInterval = 100 * time.Millisecond
)

// Resolver is stateless with respect to the page; it is a pure function of
// its inputs plus the capability interface and is safe to share.
type Resolver struct {
	page   capability.Page
	logger *zap.Logger
	opts   Options
}

// New creates a resolver over the given page.
func New(page capability.Page, logger *zap.Logger, opts Options) *Resolver {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Resolver{
		page:   page,
		logger: logger.With(zap.String("component", "Resolver")),
		opts:   opts,
	}
}

// Resolve returns a live, interactable element for the set, or ErrNotFound.
// The timeout is the total per-step budget; each locator polls for at most a
// third of it per attempt, so a broken top-ranked selector cannot starve the
// fallbacks.
func (r *Resolver) Resolve(ctx context.Context, set *schemas.LocatorSet, timeout time.Duration) (capability.Element, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	perLocator := timeout / 3
	if perLocator < r.opts.PollInterval {
		perLocator = r.opts.PollInterval
	}

	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		for _, loc := range set.Locators {
			el, err := r.tryLocator(ctx, set, loc, perLocator)
			if err != nil {
				return nil, err
			}
			if el != nil {
				r.logger.Debug("element resolved",
					zap.String("strategy", string(loc.Strategy)),
					zap.Int("attempt", attempt))
				return el, nil
			}
		}
		if attempt == r.opts.Attempts {
			break
		}
		backoff := time.Duration(attempt) * r.opts.BaseBackoff
		r.logger.Debug("locator ladder exhausted, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		if err := r.gateWait(ctx); err != nil {
			return nil, err
		}
		if err := polling.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// tryLocator polls one locator for up to budget. A nil element with nil error
// means "no hit, move down the ladder".
func (r *Resolver) tryLocator(ctx context.Context, set *schemas.LocatorSet, loc schemas.Locator, budget time.Duration) (capability.Element, error) {
	var found capability.Element
	err := polling.WaitUntil(ctx, budget, r.opts.PollInterval, func(pollCtx context.Context) (bool, error) {
		// The gate suspends on the caller's context, never the poll budget:
		// a pause that outlasts the budget is a suspension, and the budget
		// expiring must surface as a locator timeout, not a cancellation.
		if err := r.gateWait(ctx); err != nil {
			return false, err
		}
		els, err := Lookup(pollCtx, r.page, loc, set.ShadowPath)
		if err != nil {
			var tagErr *schemas.UnknownTagError
			if errors.As(err, &tagErr) {
				return false, err
			}
			// Query failures are transient while a page is mid-mutation.
			r.logger.Debug("locator query failed",
				zap.String("strategy", string(loc.Strategy)),
				zap.Error(err))
			return false, nil
		}
		for _, el := range els {
			ok, err := capability.Interactable(pollCtx, el)
			if err != nil {
				return false, nil
			}
			if ok {
				found = el
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, polling.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}
	return found, nil
}

func (r *Resolver) gateWait(ctx context.Context) error {
	if r.opts.Gate == nil {
		return nil
	}
	return r.opts.Gate.Wait(ctx)
}
