package transport

import (
	"fmt"

	"github.com/sony/gobreaker"
)

// newBreaker trips after threshold consecutive exhausted flushes and stays
// open for the cooldown. Once the cooldown passes a single trial flush is let
// through: success closes the breaker, failure reopens it right away.
func (t *Transport) newBreaker() *gobreaker.CircuitBreaker {
	threshold := t.opts.BreakerThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("ingest-%s", t.agentID),
		MaxRequests: 1,
		Timeout:     t.opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				breakerOpen.Set(1)
				t.log.Warn().
					Str("breaker", name).
					Dur("cooldown", t.opts.BreakerCooldown).
					Msg("circuit breaker open, pausing delivery")
				return
			}
			breakerOpen.Set(0)
			t.log.Debug().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}
