package service

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryEventRepo struct {
	mu     sync.Mutex
	events []*model.Event
	err    error
}

func (r *memoryEventRepo) Insert(_ context.Context, ev *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memoryEventRepo) List(_ context.Context, filter model.EventFilter) ([]*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]*model.Event(nil), r.events...), nil
}

func newTestEvent(t model.EventType, at time.Time) *model.Event {
	return model.NewEvent(t, common.HexToAddress("0x01"), at)
}

func TestEventBufferNewestFirstWithFilters(t *testing.T) {
	buf := newEventBuffer(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		typ := model.EventRevenueCollected
		if i%2 == 1 {
			typ = model.EventBuybackExecuted
		}
		buf.Add(newTestEvent(typ, base.Add(time.Duration(i)*time.Minute)))
	}

	all := buf.List(model.EventFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(4*time.Minute), all[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Minute), all[2].CreatedAt)

	onlyBuybacks := buf.List(model.EventFilter{Type: model.EventBuybackExecuted})
	require.Len(t, onlyBuybacks, 1)
	assert.Equal(t, base.Add(3*time.Minute), onlyBuybacks[0].CreatedAt)

	since := base.Add(3 * time.Minute)
	recent := buf.List(model.EventFilter{Since: &since, Limit: 10})
	assert.Len(t, recent, 2)

	limited := buf.List(model.EventFilter{Limit: 1})
	assert.Len(t, limited, 1)
}

func TestEventServicePersistsAndJournals(t *testing.T) {
	dir := t.TempDir()
	repo := &memoryEventRepo{}
	svc, err := NewEventService(dir, repo, 16)
	require.NoError(t, err)

	svc.Publish(newTestEvent(model.EventRevenueCollected, time.Now()))
	svc.Publish(newTestEvent(model.EventBuybackExecuted, time.Now()))
	svc.Publish(nil)
	svc.Close()
	svc.Close()

	assert.Len(t, repo.events, 2)

	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev model.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		lines++
	}
	assert.Equal(t, 2, lines)

	// publishing after close only lands in memory
	svc.Publish(newTestEvent(model.EventRoleGranted, time.Now()))
	assert.Len(t, repo.events, 2)
}

func TestEventServiceFallsBackToMemory(t *testing.T) {
	repo := &memoryEventRepo{err: assert.AnError}
	svc, err := NewEventService("", repo, 8)
	require.NoError(t, err)
	defer svc.Close()

	svc.Publish(newTestEvent(model.EventTreasuryDeposited, time.Now()))
	events, err := svc.List(context.Background(), model.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventTreasuryDeposited, events[0].Type)
}

func TestEngineEventsCarryStateVersion(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Ingest(context.Background(), sourceAddr, nftSales, amt("10000"))
	require.NoError(t, err)

	for _, ev := range h.events.events {
		assert.Equal(t, uint64(1), ev.StateVersion)
		assert.Equal(t, uint64(1), ev.PolicyVersion)
		assert.Equal(t, sourceAddr.Hex(), ev.Actor)
	}
}
