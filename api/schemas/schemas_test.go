package schemas

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSet() *LocatorSet {
	return &LocatorSet{
		Locators: []Locator{
			{Strategy: StrategyTestID, Value: `[data-testid="send"]`, Confidence: 0.95},
			{Strategy: StrategyText, Value: "Send", Confidence: 0.70, TextBased: true},
			{Strategy: StrategyPositional, Value: "html > body > button:nth-of-type(1)", Confidence: 0.20},
		},
		HumanLabel: `button "Send"`,
	}
}

func TestLocatorSetValidate(t *testing.T) {
	t.Run("valid set", func(t *testing.T) {
		assert.NoError(t, validSet().Validate())
	})

	t.Run("nil and empty sets rejected", func(t *testing.T) {
		var nilSet *LocatorSet
		assert.Error(t, nilSet.Validate())
		assert.Error(t, (&LocatorSet{}).Validate())
	})

	t.Run("unknown strategy rejected loudly", func(t *testing.T) {
		set := validSet()
		set.Locators[1].Strategy = "XPATH"
		err := set.Validate()
		require.Error(t, err)
		var tagErr *UnknownTagError
		require.ErrorAs(t, err, &tagErr)
		assert.Equal(t, "XPATH", tagErr.Tag)
	})

	t.Run("ascending confidence rejected", func(t *testing.T) {
		set := validSet()
		set.Locators[2].Confidence = 0.99
		assert.ErrorIs(t, set.Validate(), errUnsortedLocatorSet)
	})

	t.Run("equal confidence allowed", func(t *testing.T) {
		set := validSet()
		set.Locators[2].Confidence = set.Locators[1].Confidence
		assert.NoError(t, set.Validate())
	})
}

func TestRecommended(t *testing.T) {
	assert.Equal(t, StrategyTestID, validSet().Recommended().Strategy)

	var nilSet *LocatorSet
	assert.Equal(t, Locator{}, nilSet.Recommended())
}

func TestStepTypeRequiresElement(t *testing.T) {
	elementBound := []StepType{
		StepClick, StepDoubleClick, StepTypeText, StepSelect, StepDrag,
		StepKeypress, StepFileUpload,
	}
	pageBound := []StepType{
		StepScroll, StepNavigate, StepTabOpen, StepTabSwitch, StepTabClose,
	}
	for _, st := range elementBound {
		assert.True(t, st.RequiresElement(), "%s should act on an element", st)
	}
	for _, st := range pageBound {
		assert.False(t, st.RequiresElement(), "%s should act on the page", st)
	}
}

func TestScriptValidate(t *testing.T) {
	t.Run("empty script", func(t *testing.T) {
		assert.Error(t, (&Script{}).Validate())
	})

	t.Run("unknown step type", func(t *testing.T) {
		s := &Script{Steps: []Step{{Type: "TELEPORT"}}}
		err := s.Validate()
		var tagErr *UnknownTagError
		require.ErrorAs(t, err, &tagErr)
		assert.Equal(t, "step type", tagErr.Kind)
	})

	t.Run("element step without locators", func(t *testing.T) {
		s := &Script{Steps: []Step{{Type: StepClick}}}
		assert.Error(t, s.Validate())
	})

	t.Run("drag needs both locator sets", func(t *testing.T) {
		s := &Script{Steps: []Step{{Type: StepDrag, Locators: validSet()}}}
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "drag target")

		s.Steps[0].TargetLocators = validSet()
		assert.NoError(t, s.Validate())
	})

	t.Run("unknown wait hint", func(t *testing.T) {
		s := &Script{Steps: []Step{{Type: StepNavigate, Value: "https://example.com", Wait: "EVENTUALLY"}}}
		err := s.Validate()
		var tagErr *UnknownTagError
		require.ErrorAs(t, err, &tagErr)
		assert.Equal(t, "wait hint", tagErr.Kind)
	})

	t.Run("page steps need no locators", func(t *testing.T) {
		s := &Script{Steps: []Step{
			{Type: StepNavigate, Value: "https://example.com"},
			{Type: StepScroll, Value: "0,400", Wait: WaitDOMSettled},
		}}
		assert.NoError(t, s.Validate())
	})
}

func TestDecodeScript(t *testing.T) {
	body := `{
		"id": "checkout",
		"name": "Checkout flow",
		"steps": [
			{"type": "NAVIGATE", "value": "https://shop.example/cart"},
			{
				"type": "CLICK",
				"wait": "NETWORK_IDLE",
				"locators": {
					"locators": [
						{"strategy": "ID", "value": "#pay", "confidence": 0.85},
						{"strategy": "POSITIONAL", "value": "html > body > button:nth-of-type(2)", "confidence": 0.2}
					],
					"human_label": "button \"Pay\""
				}
			}
		]
	}`

	script, err := DecodeScript(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "checkout", script.ID)
	require.Len(t, script.Steps, 2)
	assert.Equal(t, WaitNetworkIdle, script.Steps[1].Wait)
	assert.Equal(t, StrategyID, script.Steps[1].Locators.Recommended().Strategy)

	// Encode and decode again; the script must survive the round trip.
	var buf bytes.Buffer
	require.NoError(t, EncodeScript(&buf, script))
	again, err := DecodeScript(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(script, again); diff != "" {
		t.Errorf("script changed across encode/decode (-want +got):\n%s", diff)
	}
}

func TestReplayOptionsWireFormat(t *testing.T) {
	opts := ReplayOptions{
		StepDelay:     250 * time.Millisecond,
		Timeout:       10 * time.Second,
		StopOnError:   true,
		StartFromStep: 2,
	}

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"step_delay_ms":250`)
	assert.Contains(t, string(data), `"timeout_ms":10000`)

	var back ReplayOptions
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, opts, back)
}

func TestDecodeScriptRejectsInvalid(t *testing.T) {
	_, err := DecodeScript(strings.NewReader(`{"steps": [{"type": "CLICK"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating script")

	_, err = DecodeScript(strings.NewReader(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding script")
}

func TestRoleValue(t *testing.T) {
	cases := []struct {
		role, name string
	}{
		{"button", "Send"},
		{"link", "Terms: conditions apply"},
		{"textbox", ""},
	}
	for _, tc := range cases {
		role, name := DecodeRoleValue(EncodeRoleValue(tc.role, tc.name))
		assert.Equal(t, tc.role, role)
		assert.Equal(t, tc.name, name)
	}

	// A value with no separator decodes as a bare role.
	role, name := DecodeRoleValue("button")
	assert.Equal(t, "button", role)
	assert.Empty(t, name)
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.True(t, StatusIdle.Terminal())
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusReplaying.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.False(t, StatusTakeover.Terminal())
}

func TestBoundingBoxEmpty(t *testing.T) {
	assert.True(t, BoundingBox{}.Empty())
	assert.True(t, BoundingBox{Width: 10}.Empty())
	assert.False(t, BoundingBox{Width: 10, Height: 1}.Empty())
}
