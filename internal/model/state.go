package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SourceTag identifies a revenue stream: keccak256 of the source name.
type SourceTag [32]byte

func TagOf(name string) SourceTag {
	return SourceTag(crypto.Keccak256Hash([]byte(NormalizeSourceName(name))))
}

func NormalizeSourceName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ParseSourceTag accepts either a 0x-prefixed 32-byte hex tag or a source name.
func ParseSourceTag(raw string) (SourceTag, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SourceTag{}, fmt.Errorf("empty source")
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		b := common.FromHex(raw)
		if len(b) != 32 {
			return SourceTag{}, fmt.Errorf("source tag must be 32 bytes, got %d", len(b))
		}
		return SourceTag(common.BytesToHash(b)), nil
	}
	return TagOf(raw), nil
}

func (t SourceTag) Hex() string {
	return common.Hash(t).Hex()
}

func (t SourceTag) String() string {
	return t.Hex()
}

type RevenueStream struct {
	Tag               SourceTag
	Name              string
	TotalCollected    uint256.Int
	BuybackAllocation uint256.Int
	LastUpdateTime    time.Time
}

type BuybackState struct {
	LastBuybackTime time.Time
	// LastPrice is the oracle price of the last execution, the emergency path reference.
	LastPrice      uint256.Int
	Executions     uint64
	TokensBought   uint256.Int
	TokensBurned   uint256.Int
	TokensRewarded uint256.Int
}

type TreasuryState struct {
	TotalAssets      uint256.Int
	LiquidityBalance uint256.Int
	TotalDeposited   uint256.Int
	TotalDistributed uint256.Int
	LastRebalance    time.Time
	LastDistribution time.Time
}

// Idle is the part of treasury assets not deployed as liquidity.
func (t TreasuryState) Idle() uint256.Int {
	var out uint256.Int
	if t.LiquidityBalance.Gt(&t.TotalAssets) {
		return out
	}
	out.Sub(&t.TotalAssets, &t.LiquidityBalance)
	return out
}

// Asset distinguishes what a credit is denominated in.
type Asset string

const (
	// AssetHeld is the revenue asset the pool and treasury hold.
	AssetHeld Asset = "held"
	// AssetToken is the protocol token bought back.
	AssetToken Asset = "token"
)

type CreditKey struct {
	Asset   Asset
	Account common.Address
}

// State is every mutable value of the engine. It is only mutated on a clone
// and committed as a whole.
type State struct {
	Version          uint64
	Streams          map[SourceTag]RevenueStream
	AccumulatedFunds uint256.Int
	TotalSpent       uint256.Int
	Buyback          BuybackState
	Treasury         TreasuryState
	Credits          map[CreditKey]uint256.Int
}

func NewState() *State {
	return &State{
		Streams: make(map[SourceTag]RevenueStream),
		Credits: make(map[CreditKey]uint256.Int),
	}
}

// Clone returns a deep copy. uint256.Int is an array so plain assignment copies it.
func (s *State) Clone() *State {
	out := *s
	out.Streams = make(map[SourceTag]RevenueStream, len(s.Streams))
	for k, v := range s.Streams {
		out.Streams[k] = v
	}
	out.Credits = make(map[CreditKey]uint256.Int, len(s.Credits))
	for k, v := range s.Credits {
		out.Credits[k] = v
	}
	return &out
}

// Credit adds value to a collaborator account.
func (s *State) Credit(asset Asset, account common.Address, amount uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	key := CreditKey{Asset: asset, Account: account}
	cur := s.Credits[key]
	var next uint256.Int
	if _, overflow := next.AddOverflow(&cur, &amount); overflow {
		return fmt.Errorf("credit overflow for %s", account.Hex())
	}
	s.Credits[key] = next
	return nil
}

func (s *State) CreditOf(asset Asset, account common.Address) uint256.Int {
	return s.Credits[CreditKey{Asset: asset, Account: account}]
}

// CheckInvariants verifies the conservation and bound invariants.
func (s *State) CheckInvariants() error {
	var allocated uint256.Int
	for tag, stream := range s.Streams {
		if stream.BuybackAllocation.Gt(&stream.TotalCollected) {
			return fmt.Errorf("stream %s: allocation %s exceeds collected %s",
				tag.Hex(), stream.BuybackAllocation.Dec(), stream.TotalCollected.Dec())
		}
		if _, overflow := allocated.AddOverflow(&allocated, &stream.BuybackAllocation); overflow {
			return fmt.Errorf("allocation sum overflows")
		}
	}
	var accounted uint256.Int
	if _, overflow := accounted.AddOverflow(&s.TotalSpent, &s.AccumulatedFunds); overflow {
		return fmt.Errorf("spent plus accumulated overflows")
	}
	if !allocated.Eq(&accounted) {
		return fmt.Errorf("conservation broken: allocated %s != spent %s + accumulated %s",
			allocated.Dec(), s.TotalSpent.Dec(), s.AccumulatedFunds.Dec())
	}
	if s.Treasury.LiquidityBalance.Gt(&s.Treasury.TotalAssets) {
		return fmt.Errorf("liquidity %s exceeds total assets %s",
			s.Treasury.LiquidityBalance.Dec(), s.Treasury.TotalAssets.Dec())
	}
	return nil
}
