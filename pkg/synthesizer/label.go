package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// landmarkTags are the semantic containers worth naming in a label.
var landmarkTags = map[string]bool{
	"header": true, "nav": true, "main": true, "form": true,
	"footer": true, "aside": true, "section": true, "dialog": true,
}

// humanLabel builds the descriptive label shown in diagnostics and takeover
// prompts: best descriptive attribute, element role or tag, and the nearest
// semantic landmark ancestor. The resolver never reads it.
func (s *Synthesizer) humanLabel(ctx context.Context, el capability.Element) (string, error) {
	desc := s.bestDescription(ctx, el)

	kind, err := el.Role(ctx)
	if err != nil || kind == "" {
		kind, err = el.TagName(ctx)
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	if desc != "" {
		fmt.Fprintf(&b, "%q %s", desc, kind)
	} else {
		b.WriteString(kind)
	}
	if landmark := s.nearestLandmark(ctx, el); landmark != "" {
		b.WriteString(" in ")
		b.WriteString(landmark)
	}
	return b.String(), nil
}

// bestDescription picks the first available descriptive attribute, in
// decreasing order of intent.
func (s *Synthesizer) bestDescription(ctx context.Context, el capability.Element) string {
	for _, attr := range []string{"aria-label", "title", "placeholder", "name"} {
		if v, ok, err := el.Attribute(ctx, attr); err == nil && ok && v != "" {
			return v
		}
	}
	if text, err := el.OwnText(ctx); err == nil && text != "" && len(text) <= maxTextLength {
		return text
	}
	return ""
}

func (s *Synthesizer) nearestLandmark(ctx context.Context, el capability.Element) string {
	cur, err := el.Parent(ctx)
	if err != nil {
		return ""
	}
	for cur != nil {
		tag, err := cur.TagName(ctx)
		if err != nil {
			return ""
		}
		if landmarkTags[tag] {
			if v, ok, err := cur.Attribute(ctx, "aria-label"); err == nil && ok && v != "" {
				return fmt.Sprintf("%s %q", tag, v)
			}
			if id, ok, err := cur.Attribute(ctx, "id"); err == nil && ok && id != "" {
				return fmt.Sprintf("%s #%s", tag, id)
			}
			return tag
		}
		cur, err = cur.Parent(ctx)
		if err != nil {
			return ""
		}
	}
	return ""
}
