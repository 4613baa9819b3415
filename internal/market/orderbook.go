package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Level represents a single price level in the orderbook
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook represents the in-memory state of a market
type Orderbook struct {
	TokenID     string
	Bids        []Level // Sorted High to Low
	Asks        []Level // Sorted Low to High
	LastUpdated time.Time
	mu          sync.RWMutex
}

func NewOrderbook(tokenID string) *Orderbook {
	return &Orderbook{
		TokenID: tokenID,
		Bids:    make([]Level, 0),
		Asks:    make([]Level, 0),
	}
}

// Snapshot replaces the entire book state
func (ob *Orderbook) Snapshot(bids, asks []Level) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.Bids = sortLevels(withoutEmpty(bids), true)
	ob.Asks = sortLevels(withoutEmpty(asks), false)
	ob.LastUpdated = time.Now()
}

// Update processes a price/size update. Size 0 removes the level.
func (ob *Orderbook) Update(side string, priceStr, sizeStr string) error {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return err
	}
	size, err := decimal.NewFromString(sizeStr)
	if err != nil {
		return err
	}
	return ob.apply(side, Level{Price: price, Size: size})
}

func (ob *Orderbook) apply(side string, l Level) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	switch side {
	case SideBuy:
		ob.updateLevel(&ob.Bids, l.Price, l.Size, true)
	case SideSell:
		ob.updateLevel(&ob.Asks, l.Price, l.Size, false)
	default:
		return fmt.Errorf("unknown side %q", side)
	}
	ob.LastUpdated = time.Now()
	return nil
}

func (ob *Orderbook) updateLevel(levels *[]Level, price, size decimal.Decimal, descending bool) {
	// Linear scan; books for a single token are shallow.
	idx := -1
	for i, l := range *levels {
		if l.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.IsZero() {
		if idx != -1 {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
		return
	}

	if idx != -1 {
		(*levels)[idx].Size = size
		return
	}
	*levels = sortLevels(append(*levels, Level{Price: price, Size: size}), descending)
}

// GetCopy returns a safe copy of the current state (Thread-safe read)
func (ob *Orderbook) GetCopy() (bids, asks []Level) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids = make([]Level, len(ob.Bids))
	copy(bids, ob.Bids)
	asks = make([]Level, len(ob.Asks))
	copy(asks, ob.Asks)
	return
}

func (ob *Orderbook) BestBid() (Level, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.Bids) == 0 {
		return Level{}, false
	}
	return ob.Bids[0], true
}

func (ob *Orderbook) BestAsk() (Level, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.Asks) == 0 {
		return Level{}, false
	}
	return ob.Asks[0], true
}

// Mid is the midpoint of the best bid and ask. Both sides must be present.
func (ob *Orderbook) Mid() (decimal.Decimal, bool) {
	bid, ok := ob.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := ob.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Updated returns when the book last changed.
func (ob *Orderbook) Updated() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.LastUpdated
}

func parseLevels(raw []PriceLevelRaw) ([]Level, error) {
	out := make([]Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", r.Price, err)
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", r.Size, err)
		}
		out = append(out, Level{Price: price, Size: size})
	}
	return out, nil
}

func withoutEmpty(levels []Level) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if !l.Size.IsZero() {
			out = append(out, l)
		}
	}
	return out
}

func sortLevels(levels []Level, descending bool) []Level {
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}
