package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wekeepgrowing/byway-payment/internal/config"
	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

// Guard throttles and circuit-breaks the calls made to one gateway.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuard creates a guard named after the gateway it protects.
func NewGuard(name string, breaker config.BreakerConfig, limit config.RateConfig, logger *zap.Logger) *Guard {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breaker.MaxRequests,
		Interval:    breaker.Interval,
		Timeout:     breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breaker.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breaker.FailureRatio
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateValue(to))
			logger.Warn("Circuit breaker state changed",
				zap.String("circuit", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &Guard{
		name:    name,
		breaker: cb,
		limiter: rate.NewLimiter(rate.Limit(limit.PerSecond), limit.Burst),
	}
}

func (g *Guard) Name() string { return g.name }

// State reports the breaker state (closed, open, half-open).
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Execute waits for a rate token and runs fn through the breaker.
func (g *Guard) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, customErr.NewPaymentError(fmt.Sprintf("%s call not attempted", g.name), err)
	}

	result, err := g.breaker.Execute(fn)
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(g.name).Inc()
		return nil, g.formatError(err)
	}
	return result, nil
}

func (g *Guard) formatError(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return customErr.NewPaymentError(fmt.Sprintf("circuit breaker %s is open", g.name), err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return customErr.NewPaymentError(fmt.Sprintf("circuit breaker %s: too many requests in half-open state", g.name), err)
	}
	return err
}

// Call is a typed wrapper over Execute.
func Call[T any](ctx context.Context, g *Guard, fn func() (T, error)) (T, error) {
	var zero T
	out, err := g.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
