package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/holiman/uint256"
)

// Static serves a fixed price, stamped with the time of the read. Used in
// development and by the inspector.
type Static struct {
	mu    sync.RWMutex
	price uint256.Int
}

func NewStatic(price string) (*Static, error) {
	p, err := units.Parse(price)
	if err != nil {
		return nil, err
	}
	return &Static{price: p}, nil
}

func (s *Static) Set(price uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
}

func (s *Static) LatestPrice(ctx context.Context) (model.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.PriceQuote{Price: s.price, Timestamp: time.Now().UTC(), Source: "static"}, nil
}
