package captest

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// Probe is a recording capability.StabilityProbe. It returns Err (if set)
// after blocking for Delay.
type Probe struct {
	mu    sync.Mutex
	Delay time.Duration
	Err   error

	Calls []ProbeCall
}

// ProbeCall records one WaitStable invocation.
type ProbeCall struct {
	Hint    schemas.WaitHint
	Timeout time.Duration
}

func (p *Probe) WaitStable(ctx context.Context, hint schemas.WaitHint, timeout time.Duration) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, ProbeCall{Hint: hint, Timeout: timeout})
	delay, err := p.Delay, p.Err
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// CallCount returns how many times the probe was consulted.
func (p *Probe) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
