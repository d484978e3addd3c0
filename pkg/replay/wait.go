package replay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/polling"
	"github.com/xkilldash9x/replay-cli/pkg/capability"
)

// maxHintWait bounds every wait hint so one stalled step cannot stretch the
// replay indefinitely.
const maxHintWait = 3 * time.Second

// fallbackSleeps approximate each stability signal when no probe is wired.
var fallbackSleeps = map[schemas.WaitHint]time.Duration{
	schemas.WaitNetworkIdle:     1 * time.Second,
	schemas.WaitDOMSettled:      500 * time.Millisecond,
	schemas.WaitElementAppeared: 250 * time.Millisecond,
	schemas.WaitLoadingComplete: 1500 * time.Millisecond,
}

// waitStrategy consults the step's recorded hint before resolution and
// execution, via the stability collaborator when one exists.
type waitStrategy struct {
	probe  capability.StabilityProbe
	logger *zap.Logger
}

func (w *waitStrategy) before(ctx context.Context, step schemas.Step) error {
	hint := step.Wait
	if hint == "" || hint == schemas.WaitNone {
		return nil
	}

	if hint == schemas.WaitDuration {
		d := time.Duration(step.WaitDurationMs) * time.Millisecond
		if d > maxHintWait {
			w.logger.Debug("capping recorded wait duration",
				zap.Duration("recorded", d),
				zap.Duration("cap", maxHintWait))
			d = maxHintWait
		}
		return polling.Sleep(ctx, d)
	}

	if w.probe != nil {
		return w.probe.WaitStable(ctx, hint, maxHintWait)
	}
	return polling.Sleep(ctx, fallbackSleeps[hint])
}
