package service

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// MonotonicClock never returns a time earlier than one it already returned,
// so cooldown gates cannot be reopened by a wall-clock step backwards.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, time.Duration) (func(), error) {
	return func() {}, nil
}

// NoopMover records liquidity moves in the ledger only.
type NoopMover struct{}

func (NoopMover) AddLiquidity(context.Context, uint256.Int) error    { return nil }
func (NoopMover) RemoveLiquidity(context.Context, uint256.Int) error { return nil }
