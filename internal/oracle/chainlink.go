package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

const aggregatorV3ABI = `[
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[
 {"name":"roundId","type":"uint80"},
 {"name":"answer","type":"int256"},
 {"name":"startedAt","type":"uint256"},
 {"name":"updatedAt","type":"uint256"},
 {"name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var parsedAggregatorABI = mustParseABI(aggregatorV3ABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the slice of ethclient.Client the oracle needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Chainlink reads an AggregatorV3 feed over JSON-RPC. The client is dialed
// lazily and every call is retried with a per-attempt timeout.
type Chainlink struct {
	rpcURL     string
	aggregator common.Address
	mu         sync.Mutex
	client     ContractCaller
	decimals   *uint8
	timeout    time.Duration
	retries    int
}

func NewChainlink(rpcURL, aggregator string, timeout time.Duration, retries int) (*Chainlink, error) {
	if !common.IsHexAddress(aggregator) {
		return nil, fmt.Errorf("invalid aggregator address %q", aggregator)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Chainlink{
		rpcURL:     strings.TrimSpace(rpcURL),
		aggregator: common.HexToAddress(aggregator),
		timeout:    timeout,
		retries:    retries,
	}, nil
}

// WithCaller injects a caller instead of dialing rpcURL.
func (c *Chainlink) WithCaller(caller ContractCaller) *Chainlink {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = caller
	return c
}

func (c *Chainlink) LatestPrice(ctx context.Context) (model.PriceQuote, error) {
	dec, err := c.feedDecimals(ctx)
	if err != nil {
		return model.PriceQuote{}, err
	}
	out, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return model.PriceQuote{}, err
	}
	if len(out) != 5 {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "unexpected latestRoundData output", nil)
	}
	answer, ok1 := out[1].(*big.Int)
	updatedAt, ok2 := out[3].(*big.Int)
	if !ok1 || !ok2 {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "unexpected latestRoundData types", nil)
	}
	if answer.Sign() <= 0 {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError,
			fmt.Sprintf("aggregator answered %s", answer.String()), nil)
	}
	price, err := scaleTo18(answer, dec)
	if err != nil {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "answer out of range", err)
	}
	return model.PriceQuote{
		Price:     price,
		Timestamp: time.Unix(updatedAt.Int64(), 0).UTC(),
		Source:    "chainlink",
	}, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	cached := c.decimals
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}
	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok || dec > 36 {
		return 0, apperrors.External(apperrors.CodeOracleError, "unexpected decimals output", nil)
	}
	c.mu.Lock()
	c.decimals = &dec
	c.mu.Unlock()
	return dec, nil
}

func (c *Chainlink) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := parsedAggregatorABI.Pack(method)
	if err != nil {
		return nil, apperrors.Internal("failed to pack call data", err)
	}
	msg := ethereum.CallMsg{To: &c.aggregator, Data: data}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		client, err := c.getClient(attemptCtx)
		if err != nil {
			cancel()
			lastErr = err
			if !shouldRetry(ctx, attempt, c.retries) {
				break
			}
			continue
		}
		output, err := client.CallContract(attemptCtx, msg, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("rpc call %s failed: %w", method, err)
			if !shouldRetry(ctx, attempt, c.retries) {
				break
			}
			continue
		}
		values, err := parsedAggregatorABI.Unpack(method, output)
		if err != nil {
			return nil, apperrors.External(apperrors.CodeOracleError, "failed to decode "+method, err)
		}
		return values, nil
	}
	return nil, apperrors.External(apperrors.CodeOracleError, "aggregator unreachable", lastErr)
}

func (c *Chainlink) getClient(ctx context.Context) (ContractCaller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	c.client = client
	return c.client, nil
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		return true
	}
}

// scaleTo18 rescales a feed answer with dec decimals to 18-decimal fixed point.
func scaleTo18(answer *big.Int, dec uint8) (uint256.Int, error) {
	v := new(big.Int).Set(answer)
	switch {
	case dec < 18:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-dec)), nil))
	case dec > 18:
		v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec-18)), nil))
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return uint256.Int{}, fmt.Errorf("price overflows 256 bits")
	}
	return *out, nil
}
