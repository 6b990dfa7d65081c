package scorer

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/rs/zerolog/log"
)

// BreakerConfig configures the optional circuit breaker around remote attempts.
type BreakerConfig struct {
	Enabled bool
	// FailureThreshold consecutive failed attempts open the breaker.
	FailureThreshold uint
	// Delay is how long the breaker stays open before half-opening.
	Delay time.Duration
}

const (
	defaultBreakerThreshold = 5
	defaultBreakerDelay     = 10 * time.Second
)

type breaker struct {
	cb circuitbreaker.CircuitBreaker[any]
}

func newBreaker(cfg BreakerConfig) *breaker {
	if !cfg.Enabled {
		return nil
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = defaultBreakerThreshold
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultBreakerDelay
	}
	cb := circuitbreaker.Builder[any]().
		WithFailureThreshold(threshold).
		WithDelay(delay).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.Warn().Str("from", event.OldState.String()).Str("to", event.NewState.String()).Msg("remote scorer circuit breaker changed state")
		}).
		Build()
	return &breaker{cb: cb}
}

// run executes fn through the breaker. When the breaker is open fn is not
// called and an error is returned.
func (b *breaker) run(fn func() error) error {
	if b == nil {
		return fn()
	}
	return failsafe.Run(fn, b.cb)
}
