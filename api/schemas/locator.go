package schemas

// Strategy identifies the addressing scheme a Locator uses to find its
// element again at replay time.
type Strategy string

const (
	StrategyTestID     Strategy = "TEST_ID"
	StrategyID         Strategy = "ID"
	StrategyAriaLabel  Strategy = "ARIA_LABEL"
	StrategyName       Strategy = "NAME"
	StrategyText       Strategy = "TEXT"
	StrategyRole       Strategy = "ROLE"
	StrategyShadow     Strategy = "SHADOW"
	StrategyCSSClass   Strategy = "CSS_CLASS"
	StrategyStructural Strategy = "STRUCTURAL"
	StrategyPositional Strategy = "POSITIONAL"
)

// KnownStrategy reports whether s is one of the strategies this build can
// resolve. Unknown tags must be rejected loudly, never silently skipped.
func KnownStrategy(s Strategy) bool {
	switch s {
	case StrategyTestID, StrategyID, StrategyAriaLabel, StrategyName,
		StrategyText, StrategyRole, StrategyShadow, StrategyCSSClass,
		StrategyStructural, StrategyPositional:
		return true
	}
	return false
}

// Locator is one addressing scheme plus value for a recorded element.
// It is immutable once created by the synthesizer.
type Locator struct {
	Strategy   Strategy `json:"strategy"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`

	TextBased      bool `json:"text_based,omitempty"`
	RoleBased      bool `json:"role_based,omitempty"`
	ShadowPiercing bool `json:"shadow_piercing,omitempty"`
}

// BoundingBox is an element's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no visible area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// LocatorSet is the ranked collection of locators computed for one recorded
// element, ordered by descending confidence. It always contains at least one
// entry: the positional strategy is unconditional, so resolution is never
// handed an empty candidate list.
type LocatorSet struct {
	Locators []Locator `json:"locators"`

	// HumanLabel is a short description of the element for diagnostics and
	// takeover prompts. The resolver never consults it.
	HumanLabel string `json:"human_label,omitempty"`

	// BoundingBox is the element's rectangle at recording time.
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`

	// ShadowPath is the chain of host selectors leading to the element's
	// shadow tree, outermost first. Empty for light-DOM elements.
	ShadowPath []string `json:"shadow_path,omitempty"`
}

// Recommended returns the highest-confidence locator.
func (ls *LocatorSet) Recommended() Locator {
	if ls == nil || len(ls.Locators) == 0 {
		return Locator{}
	}
	return ls.Locators[0]
}

// Validate checks the non-empty and ordering invariants.
func (ls *LocatorSet) Validate() error {
	if ls == nil || len(ls.Locators) == 0 {
		return errEmptyLocatorSet
	}
	prev := ls.Locators[0].Confidence
	for _, loc := range ls.Locators {
		if !KnownStrategy(loc.Strategy) {
			return &UnknownTagError{Tag: string(loc.Strategy), Kind: "locator strategy"}
		}
		if loc.Confidence > prev {
			return errUnsortedLocatorSet
		}
		prev = loc.Confidence
	}
	return nil
}
