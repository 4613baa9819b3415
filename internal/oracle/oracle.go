// Package oracle provides the price sources the engine reads before every
// buyback and adaptive distribution.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
)

// Source is anything that can produce a price quote.
type Source interface {
	LatestPrice(ctx context.Context) (model.PriceQuote, error)
}

// Heartbeat rejects quotes that are non-positive, older than MaxAge or dated
// in the future beyond a small skew. The engine never sees a rejected quote.
type Heartbeat struct {
	src    Source
	maxAge time.Duration
	skew   time.Duration
	now    func() time.Time
}

func WithHeartbeat(src Source, maxAge time.Duration) *Heartbeat {
	return &Heartbeat{src: src, maxAge: maxAge, skew: 30 * time.Second, now: time.Now}
}

func (h *Heartbeat) LatestPrice(ctx context.Context) (model.PriceQuote, error) {
	q, err := h.src.LatestPrice(ctx)
	if err != nil {
		metrics.OracleRejects.WithLabelValues("error").Inc()
		if apperrors.IsType(err, apperrors.ErrExternal) {
			return model.PriceQuote{}, err
		}
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "price source failed", err)
	}
	if q.Price.IsZero() {
		metrics.OracleRejects.WithLabelValues("non_positive").Inc()
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError,
			fmt.Sprintf("%s returned a non-positive price", q.Source), nil)
	}
	now := h.now()
	if q.Timestamp.IsZero() || (h.maxAge > 0 && now.Sub(q.Timestamp) > h.maxAge) {
		metrics.OracleRejects.WithLabelValues("stale").Inc()
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError,
			fmt.Sprintf("%s price from %s is older than %s", q.Source, q.Timestamp.Format(time.RFC3339), h.maxAge), nil)
	}
	if q.Timestamp.Sub(now) > h.skew {
		metrics.OracleRejects.WithLabelValues("future").Inc()
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError,
			fmt.Sprintf("%s price is dated in the future (%s)", q.Source, q.Timestamp.Format(time.RFC3339)), nil)
	}
	return q, nil
}
