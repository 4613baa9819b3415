package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/burngate/internal/market"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteFunc func(ctx context.Context) (model.PriceQuote, error)

func (f quoteFunc) LatestPrice(ctx context.Context) (model.PriceQuote, error) { return f(ctx) }

func TestHeartbeatRejectsBadQuotes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		quote model.PriceQuote
		err   error
		ok    bool
	}{
		"fresh":       {quote: model.PriceQuote{Price: units.MustParse("0.2"), Timestamp: now.Add(-time.Minute)}, ok: true},
		"zero price":  {quote: model.PriceQuote{Timestamp: now}},
		"stale":       {quote: model.PriceQuote{Price: units.MustParse("0.2"), Timestamp: now.Add(-2 * time.Hour)}},
		"no time":     {quote: model.PriceQuote{Price: units.MustParse("0.2")}},
		"future":      {quote: model.PriceQuote{Price: units.MustParse("0.2"), Timestamp: now.Add(time.Hour)}},
		"source fail": {err: errors.New("boom")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			hb := WithHeartbeat(quoteFunc(func(context.Context) (model.PriceQuote, error) {
				return tc.quote, tc.err
			}), time.Hour)
			hb.now = func() time.Time { return now }

			q, err := hb.LatestPrice(context.Background())
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.quote.Price, q.Price)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeOracleError, apperrors.CodeOf(err))
			assert.True(t, apperrors.IsType(err, apperrors.ErrExternal))
		})
	}
}

func TestStatic(t *testing.T) {
	s, err := NewStatic("0.45")
	require.NoError(t, err)
	q, err := s.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, units.MustParse("0.45"), q.Price)
	assert.WithinDuration(t, time.Now(), q.Timestamp, time.Second)

	s.Set(units.MustParse("0.3"))
	q, _ = s.LatestPrice(context.Background())
	assert.Equal(t, "0.3", units.Format(q.Price))

	_, err = NewStatic("-1")
	assert.Error(t, err)
}

type stubProvider struct {
	books map[string]*market.Orderbook
}

func (p *stubProvider) Subscribe([]string)                  {}
func (p *stubProvider) GetBook(id string) *market.Orderbook { return p.books[id] }
func (p *stubProvider) Start()                              {}
func (p *stubProvider) Stop()                               {}

func TestFeedUsesBookMid(t *testing.T) {
	book := market.NewOrderbook("tok")
	p := &stubProvider{books: map[string]*market.Orderbook{"tok": book}}
	feed := NewFeed(p, "tok")

	_, err := feed.LatestPrice(context.Background())
	assert.Equal(t, apperrors.CodeOracleError, apperrors.CodeOf(err))

	require.NoError(t, book.Update(market.SideBuy, "0.18", "10"))
	require.NoError(t, book.Update(market.SideSell, "0.22", "10"))
	q, err := feed.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, units.MustParse("0.2"), q.Price)
	assert.Equal(t, book.Updated().UTC(), q.Timestamp)

	_, err = NewFeed(p, "missing").LatestPrice(context.Background())
	assert.Equal(t, apperrors.CodeOracleError, apperrors.CodeOf(err))
}

type fakeAggregator struct {
	mu        sync.Mutex
	decimals  uint8
	answer    *big.Int
	updatedAt int64
	failures  int
	calls     int
}

func (f *fakeAggregator) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	method, err := parsedAggregatorABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	default:
		return method.Outputs.Pack(big.NewInt(7), f.answer, big.NewInt(f.updatedAt), big.NewInt(f.updatedAt), big.NewInt(7))
	}
}

func TestChainlinkDecodesAndScales(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg := &fakeAggregator{decimals: 8, answer: big.NewInt(20_000_000), updatedAt: updated.Unix()}
	cl, err := NewChainlink("", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", time.Second, 0)
	require.NoError(t, err)
	cl.WithCaller(agg)

	q, err := cl.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, units.MustParse("0.2"), q.Price)
	assert.Equal(t, updated, q.Timestamp)
	assert.Equal(t, "chainlink", q.Source)

	// decimals is cached after the first read
	_, err = cl.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, agg.calls)
}

func TestChainlinkRetriesAndRejects(t *testing.T) {
	agg := &fakeAggregator{decimals: 18, answer: big.NewInt(5), updatedAt: time.Now().Unix(), failures: 1}
	cl, err := NewChainlink("", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", time.Second, 1)
	require.NoError(t, err)
	cl.WithCaller(agg)

	q, err := cl.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, *uint256.NewInt(5), q.Price)

	agg.answer = big.NewInt(-1)
	_, err = cl.LatestPrice(context.Background())
	assert.Equal(t, apperrors.CodeOracleError, apperrors.CodeOf(err))

	down, err := NewChainlink("", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", time.Second, 0)
	require.NoError(t, err)
	_, err = down.LatestPrice(context.Background())
	assert.Equal(t, apperrors.CodeOracleError, apperrors.CodeOf(err))

	_, err = NewChainlink("", "not-an-address", time.Second, 0)
	assert.Error(t, err)
}
