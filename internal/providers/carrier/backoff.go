package carrier

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/cdrbill/internal/clock"
)

// linearBackOff implements backoff.BackOff with a linearly growing, capped
// wait and an overall deadline measured on clock.
type linearBackOff struct {
	policy  PollPolicy
	clock   clock.Clock
	start   time.Time
	attempt int
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
	b.start = b.clock.Now()
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	elapsed := b.clock.Now().Sub(b.start)
	if elapsed >= b.policy.Timeout {
		return backoff.Stop
	}
	wait := b.policy.Delay(b.attempt)
	if remaining := b.policy.Timeout - elapsed; wait > remaining {
		wait = remaining
	}
	return wait
}
