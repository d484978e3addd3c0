package resolver

import (
	"context"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// Lookup runs one locator's strategy-specific query. The synthesizer uses the
// same routine for its round-trip verification, so a locator accepted at
// recording time is looked up at replay time by the identical code path.
func Lookup(ctx context.Context, page capability.Page, loc schemas.Locator, shadowPath []string) ([]capability.Element, error) {
	switch loc.Strategy {
	case schemas.StrategyText:
		return page.QueryText(ctx, loc.Value)
	case schemas.StrategyRole:
		role, name := schemas.DecodeRoleValue(loc.Value)
		return page.QueryRole(ctx, role, name)
	case schemas.StrategyShadow:
		return page.QueryShadow(ctx, shadowPath, loc.Value)
	case schemas.StrategyTestID, schemas.StrategyID, schemas.StrategyAriaLabel,
		schemas.StrategyName, schemas.StrategyCSSClass, schemas.StrategyStructural,
		schemas.StrategyPositional:
		return page.Query(ctx, loc.Value)
	default:
		return nil, &schemas.UnknownTagError{Tag: string(loc.Strategy), Kind: "locator strategy"}
	}
}
