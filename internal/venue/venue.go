// Package venue implements the market the buyback executor buys from.
package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/burngate/internal/market"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

type Venue interface {
	Buy(ctx context.Context, spend uint256.Int) (uint256.Int, error)
}

type PriceSource interface {
	LatestPrice(ctx context.Context) (model.PriceQuote, error)
}

var oneToken = uint256.NewInt(1_000_000_000_000_000_000)

// OracleVenue fills at the oracle price less a fixed slippage. It is the
// venue used when no live book is configured.
type OracleVenue struct {
	prices      PriceSource
	slippageBps uint64
}

func NewOracleVenue(prices PriceSource, slippageBps uint64) *OracleVenue {
	return &OracleVenue{prices: prices, slippageBps: slippageBps}
}

func (v *OracleVenue) Buy(ctx context.Context, spend uint256.Int) (uint256.Int, error) {
	if spend.IsZero() {
		return uint256.Int{}, apperrors.Invalid(apperrors.CodeInvalidAmount, "spend must be positive")
	}
	q, err := v.prices.LatestPrice(ctx)
	if err != nil {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "venue could not price the order", err)
	}
	if q.Price.IsZero() {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "venue price is zero", nil)
	}
	var gross uint256.Int
	if _, overflow := gross.MulDivOverflow(&spend, oneToken, &q.Price); overflow {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "fill size overflows", nil)
	}
	net, err := units.MulBps(gross, model.BpsDenominator-v.slippageBps)
	if err != nil {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "fill size overflows", err)
	}
	return net, nil
}

// BookVenue sweeps the ask side of the live order book. The order is either
// filled completely within the slippage bound or rejected.
type BookVenue struct {
	provider       market.Provider
	tokenID        string
	maxSlippageBps uint64
	maxBookAge     time.Duration
	now            func() time.Time
}

func NewBookVenue(provider market.Provider, tokenID string, maxSlippageBps uint64, maxBookAge time.Duration) *BookVenue {
	return &BookVenue{
		provider:       provider,
		tokenID:        tokenID,
		maxSlippageBps: maxSlippageBps,
		maxBookAge:     maxBookAge,
		now:            time.Now,
	}
}

func (v *BookVenue) Buy(ctx context.Context, spend uint256.Int) (uint256.Int, error) {
	if spend.IsZero() {
		return uint256.Int{}, apperrors.Invalid(apperrors.CodeInvalidAmount, "spend must be positive")
	}
	if err := ctx.Err(); err != nil {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "order cancelled", err)
	}
	book := v.provider.GetBook(v.tokenID)
	if book == nil {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed,
			fmt.Sprintf("no order book for token %s", v.tokenID), nil)
	}
	if v.maxBookAge > 0 && v.now().Sub(book.Updated()) > v.maxBookAge {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed,
			fmt.Sprintf("order book for token %s is stale", v.tokenID), nil)
	}
	_, asks := book.GetCopy()
	fill, err := sweep(asks, units.ToDecimal(spend), v.maxSlippageBps)
	if err != nil {
		return uint256.Int{}, err
	}
	return units.FromDecimal(fill)
}

// sweep walks asks from the best price until budget is spent and returns the
// token quantity bought.
func sweep(asks []market.Level, budget decimal.Decimal, maxSlippageBps uint64) (decimal.Decimal, error) {
	if len(asks) == 0 {
		return decimal.Zero, apperrors.External(apperrors.CodeExecutionFailed, "no asks on the book", nil)
	}
	best := asks[0].Price
	remaining := budget
	filled := decimal.Zero
	for _, lvl := range asks {
		if !remaining.IsPositive() {
			break
		}
		if !lvl.Price.IsPositive() {
			continue
		}
		cost := lvl.Price.Mul(lvl.Size)
		if cost.GreaterThanOrEqual(remaining) {
			filled = filled.Add(remaining.Div(lvl.Price))
			remaining = decimal.Zero
			break
		}
		filled = filled.Add(lvl.Size)
		remaining = remaining.Sub(cost)
	}
	if remaining.IsPositive() {
		return decimal.Zero, apperrors.External(apperrors.CodeExecutionFailed,
			fmt.Sprintf("insufficient depth: %s unspent", remaining.String()), nil)
	}
	if !filled.IsPositive() {
		return decimal.Zero, apperrors.External(apperrors.CodeExecutionFailed, "order filled nothing", nil)
	}
	avg := budget.Div(filled)
	limit := best.Mul(decimal.NewFromInt(int64(model.BpsDenominator + maxSlippageBps))).Div(decimal.NewFromInt(int64(model.BpsDenominator)))
	if avg.GreaterThan(limit) {
		return decimal.Zero, apperrors.External(apperrors.CodeExecutionFailed,
			fmt.Sprintf("average price %s exceeds slippage limit %s", avg.StringFixed(6), limit.StringFixed(6)), nil)
	}
	return filled, nil
}
