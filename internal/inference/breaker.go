package inference

import (
	"context"

	"intellinbox/pkg/circuitbreaker"
)

// BreakerEngine wraps an Engine with a circuit breaker shared across all
// three stages. When the model service is down, jobs fail fast with
// circuitbreaker.ErrOpen, which is retryable, instead of burning the
// full call timeout per stage.
type BreakerEngine struct {
	engine Engine
	cb     *circuitbreaker.CircuitBreaker
}

func NewBreakerEngine(engine Engine, cb *circuitbreaker.CircuitBreaker) *BreakerEngine {
	return &BreakerEngine{engine: engine, cb: cb}
}

func (b *BreakerEngine) Sentiment(ctx context.Context, text string) (string, error) {
	var out string
	err := b.cb.Execute(func() error {
		var callErr error
		out, callErr = b.engine.Sentiment(ctx, text)
		return callErr
	})
	return out, err
}

func (b *BreakerEngine) Summarize(ctx context.Context, text string) (string, error) {
	var out string
	err := b.cb.Execute(func() error {
		var callErr error
		out, callErr = b.engine.Summarize(ctx, text)
		return callErr
	})
	return out, err
}

func (b *BreakerEngine) PriorityLabels(ctx context.Context, text string) ([]PriorityLabel, error) {
	var out []PriorityLabel
	err := b.cb.Execute(func() error {
		var callErr error
		out, callErr = b.engine.PriorityLabels(ctx, text)
		return callErr
	})
	return out, err
}
