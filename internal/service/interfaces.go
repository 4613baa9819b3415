package service

import (
	"context"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StateRepo persists the engine state as one versioned record.
type StateRepo interface {
	Load(ctx context.Context) (*model.State, error)
	// Save commits next only if the stored version still equals expectedVersion.
	Save(ctx context.Context, expectedVersion uint64, next *model.State) error
}

// PolicyRepo is an append-only log of policy versions.
type PolicyRepo interface {
	Latest(ctx context.Context) (*model.Policy, error)
	Append(ctx context.Context, p *model.Policy) error
}

type RoleRepo interface {
	Grant(ctx context.Context, account common.Address, role model.Role) error
	Revoke(ctx context.Context, account common.Address, role model.Role) error
	Has(ctx context.Context, account common.Address, role model.Role) (bool, error)
	List(ctx context.Context, account common.Address) ([]model.Role, error)
}

type EventRepo interface {
	Insert(ctx context.Context, ev *model.Event) error
	List(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)
}

type EventPublisher interface {
	Publish(ev *model.Event)
}

// Locker serializes writers across processes.
type Locker interface {
	Lock(ctx context.Context, ttl time.Duration) (unlock func(), err error)
}

type PriceOracle interface {
	LatestPrice(ctx context.Context) (model.PriceQuote, error)
}

// MarketVenue buys the protocol token. Buy is called at most once per execution
// and either fills completely or fails.
type MarketVenue interface {
	Buy(ctx context.Context, spend uint256.Int) (uint256.Int, error)
}

// LiquidityMover moves value into or out of the liquidity venue.
type LiquidityMover interface {
	AddLiquidity(ctx context.Context, amount uint256.Int) error
	RemoveLiquidity(ctx context.Context, amount uint256.Int) error
}

type Clock interface {
	Now() time.Time
}
