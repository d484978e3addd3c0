package synthesizer_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/captest"
	"github.com/xkilldash9x/replay-cli/pkg/synthesizer"
)

func synthesize(t *testing.T, page *captest.Page, node *captest.Node) *schemas.LocatorSet {
	t.Helper()
	s := synthesizer.New(page, zap.NewNop())
	set, err := s.Synthesize(context.Background(), page.Handle(node))
	require.NoError(t, err)
	require.NotNil(t, set)
	return set
}

func strategies(set *schemas.LocatorSet) []schemas.Strategy {
	out := make([]schemas.Strategy, 0, len(set.Locators))
	for _, loc := range set.Locators {
		out = append(out, loc.Strategy)
	}
	return out
}

func find(set *schemas.LocatorSet, strategy schemas.Strategy) *schemas.Locator {
	for i := range set.Locators {
		if set.Locators[i].Strategy == strategy {
			return &set.Locators[i]
		}
	}
	return nil
}

func TestSynthesizeRichElement(t *testing.T) {
	target := captest.NewNode("button", map[string]string{
		"data-testid": "pay",
		"id":          "pay-btn",
		"aria-label":  "Pay now",
		"class":       "btn btn-primary",
	})
	target.Text = "Pay"
	page := captest.New(captest.NewNode("body", nil).Append(target))

	set := synthesize(t, page, target)
	require.NoError(t, set.Validate())

	testID := find(set, schemas.StrategyTestID)
	require.NotNil(t, testID)
	assert.Equal(t, `[data-testid="pay"]`, testID.Value)
	assert.Equal(t, *testID, set.Locators[0])

	id := find(set, schemas.StrategyID)
	require.NotNil(t, id)
	assert.Equal(t, "#pay-btn", id.Value)

	aria := find(set, schemas.StrategyAriaLabel)
	require.NotNil(t, aria)
	assert.Equal(t, `[aria-label="Pay now"]`, aria.Value)

	text := find(set, schemas.StrategyText)
	require.NotNil(t, text)
	assert.Equal(t, "Pay", text.Value)
	assert.True(t, text.TextBased)

	role := find(set, schemas.StrategyRole)
	require.NotNil(t, role)
	assert.Equal(t, schemas.EncodeRoleValue("button", "Pay now"), role.Value)

	class := find(set, schemas.StrategyCSSClass)
	require.NotNil(t, class)
	assert.Equal(t, "button.btn-primary.btn", class.Value)

	assert.True(t, sort.SliceIsSorted(set.Locators, func(i, j int) bool {
		return set.Locators[i].Confidence > set.Locators[j].Confidence
	}))
	assert.Equal(t, schemas.StrategyPositional, set.Locators[len(set.Locators)-1].Strategy)

	require.NotNil(t, set.BoundingBox)
	assert.False(t, set.BoundingBox.Empty())
}

func TestSynthesizeNeverEmpty(t *testing.T) {
	// An anonymous div offers nothing but its position.
	target := captest.NewNode("div", nil)
	page := captest.New(captest.NewNode("body", nil).Append(target))

	set := synthesize(t, page, target)
	require.Len(t, set.Locators, 1)
	assert.Equal(t, schemas.StrategyPositional, set.Locators[0].Strategy)
	assert.Equal(t, "body > div:nth-of-type(1)", set.Locators[0].Value)
}

func TestSynthesizeDropsAmbiguousCandidates(t *testing.T) {
	// Two identical buttons: the class selector matches both, so the
	// round-trip check must drop it rather than keep a wrong pointer.
	target := captest.NewNode("button", map[string]string{"class": "btn"})
	twin := captest.NewNode("button", map[string]string{"class": "btn"})
	page := captest.New(captest.NewNode("body", nil).Append(target, twin))

	set := synthesize(t, page, target)
	assert.Nil(t, find(set, schemas.StrategyCSSClass))
	assert.NotNil(t, find(set, schemas.StrategyPositional))
	assert.NoError(t, set.Validate())
}

func TestSynthesizeFiltersDynamicTokens(t *testing.T) {
	target := captest.NewNode("button", map[string]string{
		"id":    "a3f9c2d4e5",
		"class": "checkout btn-873421 x__y",
	})
	page := captest.New(captest.NewNode("body", nil).Append(target))

	set := synthesize(t, page, target)
	assert.Nil(t, find(set, schemas.StrategyID), "hash-like id must not be used")

	class := find(set, schemas.StrategyCSSClass)
	require.NotNil(t, class)
	assert.Equal(t, "button.checkout", class.Value)
}

func TestSynthesizeStructuralAnchorsAtStableID(t *testing.T) {
	target := captest.NewNode("input", nil)
	row := captest.NewNode("div", nil).Append(target)
	container := captest.NewNode("section", map[string]string{"id": "billing"}).Append(row)
	page := captest.New(captest.NewNode("body", nil).Append(container))

	set := synthesize(t, page, target)
	structural := find(set, schemas.StrategyStructural)
	require.NotNil(t, structural)
	assert.Equal(t, "#billing > div:nth-of-type(1) > input:nth-of-type(1)", structural.Value)
}

func TestSynthesizeShadowElement(t *testing.T) {
	inner := captest.NewNode("input", map[string]string{
		"name":        "query",
		"data-testid": "never-reachable",
	})
	host := captest.NewNode("search-box", map[string]string{"id": "search"}).
		Host(captest.NewNode("root", nil).Append(inner))
	page := captest.New(captest.NewNode("body", nil).Append(host))

	set := synthesize(t, page, inner)
	assert.Equal(t, []string{"#search"}, set.ShadowPath)

	shadow := find(set, schemas.StrategyShadow)
	require.NotNil(t, shadow)
	assert.Equal(t, `input[name="query"]`, shadow.Value)
	assert.True(t, shadow.ShadowPiercing)

	// Document-scoped attribute strategies cannot see across the boundary.
	assert.Nil(t, find(set, schemas.StrategyTestID))
	assert.Nil(t, find(set, schemas.StrategyID))
	assert.NotNil(t, find(set, schemas.StrategyPositional))
}

func TestSynthesizeNameStrategy(t *testing.T) {
	target := captest.NewNode("input", map[string]string{"name": "email"})
	page := captest.New(captest.NewNode("body", nil).Append(target))

	set := synthesize(t, page, target)
	name := find(set, schemas.StrategyName)
	require.NotNil(t, name)
	assert.Equal(t, `input[name="email"]`, name.Value)
}

func TestSynthesizeTextOnlyForClickableRoles(t *testing.T) {
	label := captest.NewNode("span", nil)
	label.Text = "Total due"
	page := captest.New(captest.NewNode("body", nil).Append(label))

	set := synthesize(t, page, label)
	assert.Nil(t, find(set, schemas.StrategyText))
	assert.NotContains(t, strategies(set), schemas.StrategyRole)
}

func TestSynthesizeHumanLabel(t *testing.T) {
	target := captest.NewNode("input", map[string]string{"aria-label": "Search"})
	form := captest.NewNode("form", map[string]string{"id": "main"}).Append(target)
	page := captest.New(captest.NewNode("body", nil).Append(form))

	set := synthesize(t, page, target)
	assert.Equal(t, `"Search" textbox in form #main`, set.HumanLabel)
}
