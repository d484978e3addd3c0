// Package synthesizer computes ranked, multi-strategy locator sets for
// recorded elements. No single selector survives all page mutations; ranking
// several independent strategies by expected stability lets the resolver
// degrade gracefully instead of failing outright.
package synthesizer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
	"github.com/xkilldash9x/replay-cli/pkg/resolver"
)

// Base confidences of the strategy ladder, in generation order. The
// positional strategy is unconditional, which keeps every LocatorSet
// non-empty by construction.
const (
	confTestID     = 0.95
	confID         = 0.90
	confAriaLabel  = 0.85
	confName       = 0.80
	confText       = 0.75
	confRole       = 0.70
	confShadow     = 0.60
	confCSSClass   = 0.50
	confStructural = 0.30
	confPositional = 0.20
)

// maxTextLength bounds the visible-text strategy; long text is both fragile
// and likely localized.
const maxTextLength = 50

// testIDAttributes are checked in order for the highest-confidence strategy.
var testIDAttributes = []string{"data-testid", "data-test-id", "data-test", "data-cy", "data-qa"}

// dynamicToken flags machine-generated class names and ids: hex hashes,
// css-module suffixes, and digit-heavy tokens.
var dynamicToken = regexp.MustCompile(`(?i)(^[a-f0-9-]{8,}$|__|--[a-z0-9]{4,}$|\d{3,})`)

// clickableRoles gates the visible-text strategy; text lookup only pays off
// for elements users click by their label.
var clickableRoles = map[string]bool{
	"button": true, "link": true, "menuitem": true, "tab": true, "option": true,
}

// Synthesizer turns live elements into durable locator descriptions. It is
// pure and recording-time only; nothing it produces is mutated afterwards.
type Synthesizer struct {
	page   capability.Page
	logger *zap.Logger
}

// New creates a synthesizer over the given page.
func New(page capability.Page, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		page:   page,
		logger: logger.With(zap.String("component", "Synthesizer")),
	}
}

type candidate struct {
	locator schemas.Locator
	// verify is false only for the final, unconditional positional strategy.
	verify bool
}

// Synthesize computes the ranked LocatorSet for el. The result is never nil
// and never empty.
func (s *Synthesizer) Synthesize(ctx context.Context, el capability.Element) (*schemas.LocatorSet, error) {
	shadowPath, err := el.ShadowHostChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading shadow host chain: %w", err)
	}

	set := &schemas.LocatorSet{ShadowPath: shadowPath}
	if box, err := el.Box(ctx); err == nil && !box.Empty() {
		b := box
		set.BoundingBox = &b
	}

	candidates, err := s.generate(ctx, el, shadowPath)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if c.verify {
			ok, err := s.roundTrips(ctx, el, c.locator, shadowPath)
			if err != nil {
				return nil, err
			}
			if !ok {
				// Rejected candidates are skipped, never substituted.
				s.logger.Debug("candidate rejected by round-trip check",
					zap.String("strategy", string(c.locator.Strategy)),
					zap.String("value", c.locator.Value))
				continue
			}
		}
		set.Locators = append(set.Locators, c.locator)
	}

	// Stable sort keeps generation order as the deterministic tie-breaker.
	sort.SliceStable(set.Locators, func(i, j int) bool {
		return set.Locators[i].Confidence > set.Locators[j].Confidence
	})

	label, err := s.humanLabel(ctx, el)
	if err == nil {
		set.HumanLabel = label
	}
	return set, nil
}

// roundTrips accepts a candidate only if re-querying it returns exactly one
// element and that element is the original target.
func (s *Synthesizer) roundTrips(ctx context.Context, el capability.Element, loc schemas.Locator, shadowPath []string) (bool, error) {
	els, err := resolver.Lookup(ctx, s.page, loc, shadowPath)
	if err != nil {
		return false, fmt.Errorf("verifying %s locator: %w", loc.Strategy, err)
	}
	return len(els) == 1 && capability.SameNode(els[0], el), nil
}

// generate runs the fixed, ordered strategy ladder. Inapplicable strategies
// contribute nothing; they are not errors.
func (s *Synthesizer) generate(ctx context.Context, el capability.Element, shadowPath []string) ([]candidate, error) {
	inShadow := len(shadowPath) > 0
	var out []candidate

	add := func(loc *schemas.Locator, verify bool) {
		if loc != nil {
			out = append(out, candidate{locator: *loc, verify: verify})
		}
	}

	tag, err := el.TagName(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tag name: %w", err)
	}

	// Attribute-backed strategies are meaningless across a shadow boundary
	// when queried from the document; inside a shadow tree the shadow
	// strategy and the unconditional positional path carry the set.
	if !inShadow {
		add(s.testIDLocator(ctx, el), true)
		add(s.idLocator(ctx, el), true)
		add(s.ariaLocator(ctx, el), true)
		add(s.nameLocator(ctx, el, tag), true)
		add(s.textLocator(ctx, el), true)
		add(s.roleLocator(ctx, el), true)
	} else {
		add(s.shadowLocator(ctx, el, tag), true)
	}
	add(s.classLocator(ctx, el, tag), true)
	add(s.structuralLocator(ctx, el), true)

	positional, err := s.positionalLocator(ctx, el)
	if err != nil {
		return nil, err
	}
	add(positional, false)
	return out, nil
}

func (s *Synthesizer) testIDLocator(ctx context.Context, el capability.Element) *schemas.Locator {
	for _, attr := range testIDAttributes {
		v, ok, err := el.Attribute(ctx, attr)
		if err == nil && ok && v != "" && attrSafe(v) {
			return &schemas.Locator{
				Strategy:   schemas.StrategyTestID,
				Value:      fmt.Sprintf(`[%s="%s"]`, attr, v),
				Confidence: confTestID,
			}
		}
	}
	return nil
}

func (s *Synthesizer) idLocator(ctx context.Context, el capability.Element) *schemas.Locator {
	id, ok, err := el.Attribute(ctx, "id")
	if err != nil || !ok || id == "" || !identSafe(id) || dynamicToken.MatchString(id) {
		return nil
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyID,
		Value:      "#" + id,
		Confidence: confID,
	}
}

func (s *Synthesizer) ariaLocator(ctx context.Context, el capability.Element) *schemas.Locator {
	for _, attr := range []string{"aria-label", "aria-labelledby"} {
		v, ok, err := el.Attribute(ctx, attr)
		if err == nil && ok && v != "" && attrSafe(v) {
			return &schemas.Locator{
				Strategy:   schemas.StrategyAriaLabel,
				Value:      fmt.Sprintf(`[%s="%s"]`, attr, v),
				Confidence: confAriaLabel,
			}
		}
	}
	return nil
}

func (s *Synthesizer) nameLocator(ctx context.Context, el capability.Element, tag string) *schemas.Locator {
	name, ok, err := el.Attribute(ctx, "name")
	if err != nil || !ok || name == "" || !attrSafe(name) {
		return nil
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyName,
		Value:      fmt.Sprintf(`%s[name="%s"]`, tag, name),
		Confidence: confName,
	}
}

func (s *Synthesizer) textLocator(ctx context.Context, el capability.Element) *schemas.Locator {
	role, err := el.Role(ctx)
	if err != nil || !clickableRoles[role] {
		return nil
	}
	text, err := el.OwnText(ctx)
	if err != nil || text == "" || len(text) > maxTextLength {
		return nil
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyText,
		Value:      text,
		Confidence: confText,
		TextBased:  true,
	}
}

func (s *Synthesizer) roleLocator(ctx context.Context, el capability.Element) *schemas.Locator {
	role, err := el.Role(ctx)
	if err != nil || role == "" {
		return nil
	}
	name, err := el.AccessibleName(ctx)
	if err != nil || name == "" {
		return nil
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyRole,
		Value:      schemas.EncodeRoleValue(role, name),
		Confidence: confRole,
		RoleBased:  true,
	}
}

// shadowLocator addresses the element inside its innermost shadow root; the
// host chain itself travels on the LocatorSet.
func (s *Synthesizer) shadowLocator(ctx context.Context, el capability.Element, tag string) *schemas.Locator {
	inner := tag
	if id, ok, err := el.Attribute(ctx, "id"); err == nil && ok && identSafe(id) {
		inner = "#" + id
	} else if name, ok, err := el.Attribute(ctx, "name"); err == nil && ok && attrSafe(name) {
		inner = fmt.Sprintf(`%s[name="%s"]`, tag, name)
	} else if classes := s.stableClasses(ctx, el); len(classes) > 0 {
		inner = tag + "." + strings.Join(classes, ".")
	}
	return &schemas.Locator{
		Strategy:       schemas.StrategyShadow,
		Value:          inner,
		Confidence:     confShadow,
		ShadowPiercing: true,
	}
}

func (s *Synthesizer) classLocator(ctx context.Context, el capability.Element, tag string) *schemas.Locator {
	classes := s.stableClasses(ctx, el)
	if len(classes) == 0 {
		return nil
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyCSSClass,
		Value:      tag + "." + strings.Join(classes, "."),
		Confidence: confCSSClass,
	}
}

// stableClasses returns up to the 3 most specific non-dynamic-looking
// classes, longest first.
func (s *Synthesizer) stableClasses(ctx context.Context, el capability.Element) []string {
	raw, ok, err := el.Attribute(ctx, "class")
	if err != nil || !ok {
		return nil
	}
	var stable []string
	for _, c := range strings.Fields(raw) {
		if identSafe(c) && !dynamicToken.MatchString(c) {
			stable = append(stable, c)
		}
	}
	sort.SliceStable(stable, func(i, j int) bool { return len(stable[i]) > len(stable[j]) })
	if len(stable) > 3 {
		stable = stable[:3]
	}
	return stable
}

// structuralLocator anchors a child path at the nearest ancestor with a
// stable id. Without such a container, the positional strategy covers.
func (s *Synthesizer) structuralLocator(ctx context.Context, el capability.Element) *schemas.Locator {
	segments, anchored := s.pathSegments(ctx, el, true)
	if !anchored || len(segments) == 0 {
		return nil
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyStructural,
		Value:      strings.Join(segments, " > "),
		Confidence: confStructural,
	}
}

// positionalLocator builds the absolute path from the document root. This is
// the unconditional lowest tier.
func (s *Synthesizer) positionalLocator(ctx context.Context, el capability.Element) (*schemas.Locator, error) {
	segments, _ := s.pathSegments(ctx, el, false)
	if len(segments) == 0 {
		return nil, fmt.Errorf("computing positional path: element has no path to root")
	}
	return &schemas.Locator{
		Strategy:   schemas.StrategyPositional,
		Value:      strings.Join(segments, " > "),
		Confidence: confPositional,
	}, nil
}

// pathSegments walks ancestors collecting tag:nth-of-type segments. With
// stopAtID it halts at the first ancestor carrying a stable id and reports
// anchored=true; otherwise it walks to the root.
func (s *Synthesizer) pathSegments(ctx context.Context, el capability.Element, stopAtID bool) (segments []string, anchored bool) {
	cur := el
	for cur != nil {
		tag, err := cur.TagName(ctx)
		if err != nil {
			return nil, false
		}
		if stopAtID {
			if id, ok, err := cur.Attribute(ctx, "id"); err == nil && ok && identSafe(id) && !dynamicToken.MatchString(id) && !capability.SameNode(cur, el) {
				segments = append([]string{"#" + id}, segments...)
				return segments, true
			}
		}
		idx, err := cur.TypeIndex(ctx)
		if err != nil {
			return nil, false
		}
		parent, err := cur.Parent(ctx)
		if err != nil {
			return nil, false
		}
		if parent == nil {
			// Document root carries no index.
			segments = append([]string{tag}, segments...)
			break
		}
		segments = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", tag, idx)}, segments...)
		cur = parent
	}
	return segments, false
}

// identSafe reports whether v can be embedded in a selector without escaping.
func identSafe(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// attrSafe reports whether v can be embedded in a quoted attribute selector.
func attrSafe(v string) bool {
	return !strings.ContainsAny(v, `"\`)
}
