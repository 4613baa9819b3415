package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	adminAddr      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	operatorAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	sourceAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	rebalancerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	strangerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ff")

	rewardsAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	stakingAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	liquidityAddr  = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	operationsAddr = common.HexToAddress("0x0000000000000000000000000000000000000b04")

	nftSales = model.TagOf("NFT_SALES")

	errOracleDown = errors.New("oracle down")
)

func amt(s string) uint256.Int {
	return units.MustParse(s)
}

func testPolicy() *model.Policy {
	return &model.Policy{
		Version: 1,
		Buyback: model.BuybackPolicy{
			MinimumAmount:    amt("100"),
			Cooldown:         time.Hour,
			BasePressureBps:  5000,
			MaxPressureBps:   8000,
			IncreaseRateBps:  500,
			MaxPressureLevel: 5,
			BurnRatioBps:     5000,
			EmergencyDropBps: 2000,
		},
		Thresholds: []model.PriceThreshold{
			{Price: amt("0.50"), Level: 1, Active: true},
			{Price: amt("0.40"), Level: 2, Active: true},
			{Price: amt("0.30"), Level: 3, Active: true},
			{Price: amt("0.25"), Level: 4, Active: true},
		},
		Sources: map[model.SourceTag]model.SourceRate{
			nftSales:                          {Name: "NFT_SALES", BuybackBps: 3000},
			model.TagOf("MARKETPLACE_FEES"):   {Name: "MARKETPLACE_FEES", BuybackBps: 2500},
			model.TagOf(model.TreasurySource): {Name: model.TreasurySource, BuybackBps: 10000},
		},
		Shares: model.DistributionShares{Buyback: 2000, Staking: 3000, Liquidity: 3000, Operations: 2000},
		Adaptive: []model.AdaptiveBracket{
			{Below: amt("0.50"), BuybackBps: 3000},
			{Below: amt("0.30"), BuybackBps: 3500},
		},
		StakingFloorBps: 1000,
		Rebalance: model.RebalancePolicy{
			TargetRatioBps: 3000,
			ThresholdBps:   500,
			Cooldown:       24 * time.Hour,
			MinAdjustment:  amt("10"),
		},
		Addresses: model.Addresses{
			BurnSink:         model.BurnSinkAddress,
			RewardsPool:      rewardsAddr,
			StakingPool:      stakingAddr,
			LiquidityPool:    liquidityAddr,
			OperationsWallet: operationsAddr,
		},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeOracle can be made to fail or hang.
type fakeOracle struct {
	mu    sync.Mutex
	price uint256.Int
	err   error
	hang  bool
}

func (o *fakeOracle) set(price string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = amt(price)
	o.err = nil
	o.hang = false
}

func (o *fakeOracle) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *fakeOracle) LatestPrice(ctx context.Context) (model.PriceQuote, error) {
	o.mu.Lock()
	price, err, hang := o.price, o.err, o.hang
	o.mu.Unlock()
	if hang {
		<-ctx.Done()
		return model.PriceQuote{}, ctx.Err()
	}
	if err != nil {
		return model.PriceQuote{}, err
	}
	return model.PriceQuote{Price: price, Timestamp: time.Now(), Source: "fake"}, nil
}

// fakeVenue fills at a fixed 5 tokens per unit spent.
type fakeVenue struct {
	mu    sync.Mutex
	calls int
	err   error
	hang  bool
}

func (v *fakeVenue) Buy(ctx context.Context, spend uint256.Int) (uint256.Int, error) {
	v.mu.Lock()
	v.calls++
	err, hang := v.err, v.hang
	v.mu.Unlock()
	if hang {
		<-ctx.Done()
		return uint256.Int{}, ctx.Err()
	}
	if err != nil {
		return uint256.Int{}, err
	}
	var out uint256.Int
	out.Mul(&spend, uint256.NewInt(5))
	return out, nil
}

func (v *fakeVenue) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeMover struct {
	mu      sync.Mutex
	added   []uint256.Int
	removed []uint256.Int
	err     error
}

func (m *fakeMover) AddLiquidity(_ context.Context, amount uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, amount)
	return nil
}

func (m *fakeMover) RemoveLiquidity(_ context.Context, amount uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, amount)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (p *recordingPublisher) Publish(ev *model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) ofType(t model.EventType) []*model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*model.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	state  *MemoryStateStore
	roles  *MemoryRoleStore
	oracle *fakeOracle
	venue  *fakeVenue
	mover  *fakeMover
	clock  *fakeClock
	events *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		state:  NewMemoryStateStore(),
		roles:  NewMemoryRoleStore(),
		oracle: &fakeOracle{},
		venue:  &fakeVenue{},
		mover:  &fakeMover{},
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		events: &recordingPublisher{},
	}
	h.oracle.set("0.20")
	require.NoError(t, SeedRoles(ctx, h.roles, adminAddr, []model.Role{model.RoleAdmin}))
	require.NoError(t, SeedRoles(ctx, h.roles, operatorAddr, []model.Role{model.RoleOperator}))
	require.NoError(t, SeedRoles(ctx, h.roles, sourceAddr, []model.Role{model.RoleRevenueSource}))
	require.NoError(t, SeedRoles(ctx, h.roles, rebalancerAddr, []model.Role{model.RoleRebalancer}))

	policies, err := NewPolicyStore(ctx, NewMemoryPolicyRepo(), testPolicy())
	require.NoError(t, err)

	h.engine, err = NewEngine(EngineDeps{
		State:         h.state,
		Policies:      policies,
		Roles:         h.roles,
		Oracle:        h.oracle,
		Venue:         h.venue,
		Mover:         h.mover,
		Events:        h.events,
		Clock:         h.clock,
		OracleTimeout: 50 * time.Millisecond,
		VenueTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) load(t *testing.T) *model.State {
	t.Helper()
	st, err := h.state.Load(context.Background())
	require.NoError(t, err)
	return st
}

// fund ingests revenue while the oracle is down so no buyback fires.
func (h *harness) fund(t *testing.T, tag model.SourceTag, amount string) {
	t.Helper()
	h.oracle.fail(errOracleDown)
	_, err := h.engine.Ingest(context.Background(), sourceAddr, tag, amt(amount))
	require.NoError(t, err)
	h.oracle.set("0.20")
}
