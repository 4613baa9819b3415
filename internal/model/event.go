package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type EventType string

const (
	EventRevenueCollected    EventType = "revenue.collected"
	EventTreasuryDeposited   EventType = "treasury.deposited"
	EventBuybackExecuted     EventType = "buyback.executed"
	EventBuybackSkipped      EventType = "buyback.skipped"
	EventBuybackEmergency    EventType = "buyback.emergency"
	EventTreasuryDistributed EventType = "treasury.distributed"
	EventAdaptiveDistributed EventType = "treasury.adaptive_distributed"
	EventLiquidityRebalanced EventType = "liquidity.rebalanced"
	EventThresholdUpdated    EventType = "policy.threshold_updated"
	EventAddressesUpdated    EventType = "policy.addresses_updated"
	EventRoleGranted         EventType = "role.granted"
	EventRoleRevoked         EventType = "role.revoked"
)

// Event 领域事件，提交成功后才会发布
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	Actor         string            `json:"actor"`
	PolicyVersion uint64            `json:"policy_version"`
	StateVersion  uint64            `json:"state_version"`
	Data          map[string]string `json:"data"` // 金额统一为十进制字符串
	CreatedAt     time.Time         `json:"created_at"`
}

func NewEvent(t EventType, actor common.Address, at time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Actor:     actor.Hex(),
		Data:      make(map[string]string),
		CreatedAt: at.UTC(),
	}
}

func (e *Event) With(key, value string) *Event {
	e.Data[key] = value
	return e
}

// EventFilter narrows event listings. Zero values mean "any".
type EventFilter struct {
	Type  EventType
	Limit int
	Since *time.Time
}
