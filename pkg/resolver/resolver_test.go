package resolver_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/captest"
	"github.com/xkilldash9x/replay-cli/pkg/resolver"
)

func fastOpts() resolver.Options {
	return resolver.Options{
		Attempts:     2,
		BaseBackoff:  time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	}
}

func set(locators ...schemas.Locator) *schemas.LocatorSet {
	return &schemas.LocatorSet{Locators: locators}
}

func TestResolveTopStrategy(t *testing.T) {
	target := captest.NewNode("button", map[string]string{"id": "submit"})
	page := captest.New(captest.NewNode("body", nil).Append(target))
	r := resolver.New(page, zap.NewNop(), fastOpts())

	el, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#submit", Confidence: 0.9},
		schemas.Locator{Strategy: schemas.StrategyPositional, Value: "body > button:nth-of-type(1)", Confidence: 0.2},
	), time.Second)
	require.NoError(t, err)
	assert.Equal(t, page.Handle(target).NodeID(), el.NodeID())
}

func TestResolveFallsDownTheLadder(t *testing.T) {
	target := captest.NewNode("button", map[string]string{"class": "primary"})
	page := captest.New(captest.NewNode("body", nil).Append(target))
	r := resolver.New(page, zap.NewNop(), fastOpts())

	// The recorded id is gone; the class tier still matches.
	el, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#stale-id", Confidence: 0.9},
		schemas.Locator{Strategy: schemas.StrategyCSSClass, Value: "button.primary", Confidence: 0.5},
	), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, page.Handle(target).NodeID(), el.NodeID())
}

func TestResolveSkipsNonInteractableMatches(t *testing.T) {
	hidden := captest.NewNode("button", map[string]string{"class": "item"})
	hidden.Hidden = true
	disabled := captest.NewNode("button", map[string]string{"class": "item"})
	disabled.Disabled = true
	collapsed := captest.NewNode("button", map[string]string{"class": "item"})
	collapsed.Box = schemas.BoundingBox{}
	live := captest.NewNode("button", map[string]string{"class": "item"})
	page := captest.New(captest.NewNode("body", nil).Append(hidden, disabled, collapsed, live))
	r := resolver.New(page, zap.NewNop(), fastOpts())

	el, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyCSSClass, Value: "button.item", Confidence: 0.5},
	), time.Second)
	require.NoError(t, err)
	assert.Equal(t, page.Handle(live).NodeID(), el.NodeID())
}

func TestResolveWaitsForDelayedAppearance(t *testing.T) {
	target := captest.NewNode("div", map[string]string{"id": "late"})
	target.Hidden = true
	page := captest.New(captest.NewNode("body", nil).Append(target))
	r := resolver.New(page, zap.NewNop(), fastOpts())

	go func() {
		time.Sleep(20 * time.Millisecond)
		page.Mutate(func() { target.Hidden = false })
	}()

	el, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#late", Confidence: 0.9},
	), 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, page.Handle(target).NodeID(), el.NodeID())
}

func TestResolveExhaustionReturnsNotFound(t *testing.T) {
	page := captest.New(captest.NewNode("body", nil))
	r := resolver.New(page, zap.NewNop(), resolver.Options{
		Attempts:     1,
		BaseBackoff:  time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	})

	_, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#nowhere", Confidence: 0.9},
		schemas.Locator{Strategy: schemas.StrategyPositional, Value: "span", Confidence: 0.2},
	), 10*time.Millisecond)
	require.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestResolveRejectsUnknownStrategy(t *testing.T) {
	page := captest.New(captest.NewNode("body", nil))
	r := resolver.New(page, zap.NewNop(), fastOpts())

	_, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: "XPATH", Value: "//div", Confidence: 0.9},
	), time.Second)
	var tagErr *schemas.UnknownTagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, "XPATH", tagErr.Tag)
}

func TestResolveTextRoleAndShadowStrategies(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		target := captest.NewNode("button", nil)
		target.Text = "Checkout"
		page := captest.New(captest.NewNode("body", nil).Append(target))
		r := resolver.New(page, zap.NewNop(), fastOpts())

		el, err := r.Resolve(context.Background(), set(
			schemas.Locator{Strategy: schemas.StrategyText, Value: "Checkout", Confidence: 0.7, TextBased: true},
		), time.Second)
		require.NoError(t, err)
		assert.Equal(t, page.Handle(target).NodeID(), el.NodeID())
	})

	t.Run("role", func(t *testing.T) {
		target := captest.NewNode("a", map[string]string{"aria-label": "Docs", "href": "/docs"})
		page := captest.New(captest.NewNode("body", nil).Append(target))
		r := resolver.New(page, zap.NewNop(), fastOpts())

		el, err := r.Resolve(context.Background(), set(
			schemas.Locator{Strategy: schemas.StrategyRole, Value: schemas.EncodeRoleValue("link", "Docs"), Confidence: 0.6, RoleBased: true},
		), time.Second)
		require.NoError(t, err)
		assert.Equal(t, page.Handle(target).NodeID(), el.NodeID())
	})

	t.Run("shadow", func(t *testing.T) {
		inner := captest.NewNode("input", map[string]string{"name": "query"})
		host := captest.NewNode("search-box", map[string]string{"id": "search"}).
			Host(captest.NewNode("root", nil).Append(inner))
		page := captest.New(captest.NewNode("body", nil).Append(host))
		r := resolver.New(page, zap.NewNop(), fastOpts())

		withPath := set(
			schemas.Locator{Strategy: schemas.StrategyShadow, Value: `input[name="query"]`, Confidence: 0.55, ShadowPiercing: true},
		)
		withPath.ShadowPath = []string{"#search"}
		el, err := r.Resolve(context.Background(), withPath, time.Second)
		require.NoError(t, err)
		assert.Equal(t, page.Handle(inner).NodeID(), el.NodeID())
	})
}

type blockedGate struct {
	calls atomic.Int64
	err   error
}

func (g *blockedGate) Wait(ctx context.Context) error {
	g.calls.Add(1)
	return g.err
}

func TestResolveGateCancellation(t *testing.T) {
	target := captest.NewNode("button", map[string]string{"id": "ok"})
	page := captest.New(captest.NewNode("body", nil).Append(target))
	gate := &blockedGate{err: errors.New("session cancelled")}
	opts := fastOpts()
	opts.Gate = gate
	r := resolver.New(page, zap.NewNop(), opts)

	_, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#ok", Confidence: 0.9},
	), time.Second)
	require.ErrorContains(t, err, "session cancelled")
	assert.GreaterOrEqual(t, gate.calls.Load(), int64(1))
}

// holdingGate blocks every Wait call until released, like a paused session.
type holdingGate struct {
	release chan struct{}
}

func (g *holdingGate) Wait(ctx context.Context) error {
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestResolveSuspensionOutlastsPollBudget(t *testing.T) {
	target := captest.NewNode("button", map[string]string{"id": "ok"})
	page := captest.New(captest.NewNode("body", nil).Append(target))
	gate := &holdingGate{release: make(chan struct{})}
	opts := fastOpts()
	opts.Attempts = 1
	opts.Gate = gate
	r := resolver.New(page, zap.NewNop(), opts)

	// Hold the gate well past the per-locator budget (timeout/3), then
	// release it. The suspension must not be misread as a timeout or a
	// cancellation; resolution picks up where it left off.
	go func() {
		time.Sleep(80 * time.Millisecond)
		close(gate.release)
	}()

	el, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#ok", Confidence: 0.9},
	), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, page.Handle(target).NodeID(), el.NodeID())
}

func TestResolveConsultsGateEachPoll(t *testing.T) {
	target := captest.NewNode("div", map[string]string{"id": "late"})
	target.Hidden = true
	page := captest.New(captest.NewNode("body", nil).Append(target))
	gate := &blockedGate{}
	opts := fastOpts()
	opts.Gate = gate
	r := resolver.New(page, zap.NewNop(), opts)

	go func() {
		time.Sleep(15 * time.Millisecond)
		page.Mutate(func() { target.Hidden = false })
	}()

	_, err := r.Resolve(context.Background(), set(
		schemas.Locator{Strategy: schemas.StrategyID, Value: "#late", Confidence: 0.9},
	), 3*time.Second)
	require.NoError(t, err)
	assert.Greater(t, gate.calls.Load(), int64(1))
}

func TestLookupRoutesByStrategy(t *testing.T) {
	target := captest.NewNode("button", map[string]string{"data-testid": "pay"})
	page := captest.New(captest.NewNode("body", nil).Append(target))

	els, err := resolver.Lookup(context.Background(), page, schemas.Locator{
		Strategy: schemas.StrategyTestID, Value: `[data-testid="pay"]`,
	}, nil)
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, page.Handle(target).NodeID(), els[0].NodeID())

	_, err = resolver.Lookup(context.Background(), page, schemas.Locator{Strategy: "BOGUS"}, nil)
	var tagErr *schemas.UnknownTagError
	require.ErrorAs(t, err, &tagErr)
}
