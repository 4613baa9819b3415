package oracle

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/burngate/internal/market"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
)

// Feed prices the token at the mid of the live order book. The quote
// timestamp is the last book update, so a silent stream goes stale.
type Feed struct {
	provider market.Provider
	tokenID  string
}

func NewFeed(provider market.Provider, tokenID string) *Feed {
	return &Feed{provider: provider, tokenID: tokenID}
}

func (f *Feed) LatestPrice(ctx context.Context) (model.PriceQuote, error) {
	book := f.provider.GetBook(f.tokenID)
	if book == nil {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError,
			fmt.Sprintf("no order book for token %s", f.tokenID), nil)
	}
	mid, ok := book.Mid()
	if !ok {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError,
			fmt.Sprintf("order book for token %s is one-sided", f.tokenID), nil)
	}
	price, err := units.FromDecimal(mid)
	if err != nil {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "mid price out of range", err)
	}
	return model.PriceQuote{Price: price, Timestamp: book.Updated().UTC(), Source: "feed"}, nil
}
