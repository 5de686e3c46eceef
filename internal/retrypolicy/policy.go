// Package retrypolicy implements the forwarder's exponential-with-ceiling
// backoff, spec.md §4.3.
package retrypolicy

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
)

// Policy computes the next Retry from the previous one.
type Policy struct {
	initialDelay time.Duration
	maximumDelay time.Duration
	multiplier   float64
}

// New validates initialDelay <= maximumDelay and multiplier >= 2, per
// spec.md §4.3.
func New(initialDelay, maximumDelay time.Duration, multiplier float64) (*Policy, error) {
	if initialDelay > maximumDelay {
		return nil, fmt.Errorf("retrypolicy: initial_delay %s exceeds maximum_delay %s", initialDelay, maximumDelay)
	}
	if multiplier < 2 {
		return nil, fmt.Errorf("retrypolicy: multiplier %v must be >= 2", multiplier)
	}
	return &Policy{initialDelay: initialDelay, maximumDelay: maximumDelay, multiplier: multiplier}, nil
}

// NextRetry returns Retry{1, initial_delay} when prev is nil. Otherwise it
// returns Retry{n+1, min(d*multiplier, maximum_delay)}. The attempt counter
// wraps to zero (logged) on unsigned overflow; the delay saturates at
// maximum_delay on overflow.
func (p *Policy) NextRetry(prev *mgmodel.Retry) mgmodel.Retry {
	if prev == nil {
		return mgmodel.Retry{Attempt: 1, Delay: p.initialDelay}
	}

	attempt := prev.Attempt + 1
	if attempt < prev.Attempt {
		slog.Warn("retry attempt counter overflowed, resetting to zero", "previous_attempt", prev.Attempt)
		attempt = 0
	}

	delayF := float64(prev.Delay) * p.multiplier
	var delay time.Duration
	if delayF >= float64(p.maximumDelay) || math.IsInf(delayF, 1) {
		delay = p.maximumDelay
	} else {
		delay = time.Duration(delayF)
	}

	return mgmodel.Retry{Attempt: attempt, Delay: delay}
}
