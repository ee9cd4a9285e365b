package llm

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/xaenox/recipebot/internal/metrics"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

// BreakerInference guards an Inference with a circuit breaker.
type BreakerInference struct {
	next   Inference
	cb     *gobreaker.CircuitBreaker[string]
	name   string
	logger *zap.Logger
}

func NewBreakerInference(next Inference, cfg config.BreakerConfig, logger *zap.Logger) *BreakerInference {
	b := &BreakerInference{
		next:   next,
		name:   "llm-inference",
		logger: logger.Named("breaker"),
	}

	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		// Failures after the caller's context ended are not counted.
		IsSuccessful: func(err error) bool {
			var abandoned *callerAbandoned
			return err == nil || errors.As(err, &abandoned)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state transition",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return b
}

func (b *BreakerInference) Infer(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		out, err := b.next.Infer(ctx, req)
		if err != nil && ctx.Err() != nil {
			return "", &callerAbandoned{err: err}
		}
		return out, err
	})
	if err != nil {
		var abandoned *callerAbandoned
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		case errors.As(err, &abandoned):
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "abandoned").Inc()
			return "", abandoned.err
		default:
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return "", err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return out, nil
}

// callerAbandoned marks a failure caused by the caller's context ending,
// such as the turn deadline, rather than by the provider.
type callerAbandoned struct {
	err error
}

func (e *callerAbandoned) Error() string { return e.err.Error() }

func (e *callerAbandoned) Unwrap() error { return e.err }

// State reports the current breaker state.
func (b *BreakerInference) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
