package autoreply

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ricochet1k/wamux/internal/autoreply/circuit"
)

// Guard bounds every call with a timeout and stops calling a policy that
// keeps failing.
type Guard struct {
	policy  Policy
	breaker *circuit.Breaker
	timeout time.Duration
}

func NewGuard(policy Policy, breaker *circuit.Breaker, timeout time.Duration) *Guard {
	return &Guard{policy: policy, breaker: breaker, timeout: timeout}
}

func (g *Guard) Reply(ctx context.Context, req Request) (string, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		return "", errors.Wrapf(ErrCoolingDown, "retry in %s", g.breaker.CooldownRemaining().Round(time.Second))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	reply, err := g.policy.Reply(ctx, req)
	if g.breaker != nil {
		if err != nil {
			g.breaker.RecordFailure()
		} else {
			g.breaker.RecordSuccess()
		}
	}
	return reply, err
}
