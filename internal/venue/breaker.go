package venue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
	"github.com/holiman/uint256"
	"github.com/sony/gobreaker"
)

// Breaker stops calling a failing venue for a cooldown. While open every
// buy fails fast with EXECUTION_FAILED.
type Breaker struct {
	next Venue
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, next Venue, failures uint32, cooldown time.Duration) *Breaker {
	if failures == 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	log := logger.Component("venue")
	metrics.VenueBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// validation errors are the caller's fault, not the venue's
			return err == nil || apperrors.IsType(err, apperrors.ErrValidation)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.VenueBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("venue circuit breaker state changed",
				slog.String("venue", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Buy(ctx context.Context, spend uint256.Int) (uint256.Int, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Buy(ctx, spend)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "venue circuit open", err)
		}
		return uint256.Int{}, err
	}
	return out.(uint256.Int), nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
