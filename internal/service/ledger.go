package service

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ingest records revenue from a source. The source's buyback rate decides how
// much goes to the buyback pool; the remainder goes to the treasury. When the
// pool reaches the minimum a buyback is attempted in the same commit.
func (e *Engine) Ingest(ctx context.Context, caller common.Address, tag model.SourceTag, amount uint256.Int) (*model.IngestResult, error) {
	if err := e.guard.Require(ctx, caller, model.RoleRevenueSource); err != nil {
		return nil, err
	}
	// TREASURY 只给国库分配内部使用
	if tag == model.TagOf(model.TreasurySource) {
		return nil, apperrors.Invalid(apperrors.CodeInvalidSource, model.TreasurySource+" is reserved for treasury distributions")
	}
	if amount.IsZero() {
		return nil, apperrors.Invalid(apperrors.CodeInvalidAmount, "amount must be positive")
	}

	var result *model.IngestResult
	err := e.transact(ctx, "ingest", caller, func(tx *txn) error {
		res, err := e.ingestOn(tx, tag, amount)
		if err != nil {
			return err
		}
		res.Buyback, res.SkipReason = e.tryBuyback(tx, triggerIngest)
		result = res
		return nil
	})
	label := tag.Hex()
	if rate, ok := e.policies.Current().Source(tag); ok {
		label = rate.Name
	}
	metrics.RevenueIngested.WithLabelValues(label, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ingestOn applies one ingestion to the staged state.
func (e *Engine) ingestOn(tx *txn, tag model.SourceTag, amount uint256.Int) (*model.IngestResult, error) {
	rate, ok := tx.policy.Source(tag)
	if !ok {
		return nil, apperrors.Invalid(apperrors.CodeInvalidSource, fmt.Sprintf("unknown source tag %s", tag.Hex()))
	}
	allocated, err := units.MulBps(amount, rate.BuybackBps)
	if err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
	}
	var remainder uint256.Int
	remainder.Sub(&amount, &allocated)

	st := tx.next
	stream, ok := st.Streams[tag]
	if !ok {
		stream = model.RevenueStream{Tag: tag, Name: rate.Name}
	}
	if stream.TotalCollected, err = units.Add(stream.TotalCollected, amount); err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
	}
	if stream.BuybackAllocation, err = units.Add(stream.BuybackAllocation, allocated); err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
	}
	stream.LastUpdateTime = tx.now
	if st.AccumulatedFunds, err = units.Add(st.AccumulatedFunds, allocated); err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
	}
	if st.Treasury.TotalAssets, err = units.Add(st.Treasury.TotalAssets, remainder); err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
	}
	st.Streams[tag] = stream

	tx.emit(model.EventRevenueCollected).
		With("source", rate.Name).
		With("tag", tag.Hex()).
		With("amount", units.Format(amount)).
		With("allocated", units.Format(allocated)).
		With("to_treasury", units.Format(remainder))

	e.log.Info("revenue collected",
		"source", rate.Name,
		"amount", units.Format(amount),
		"allocated", units.Format(allocated),
		"accumulated", units.Format(st.AccumulatedFunds))

	return &model.IngestResult{
		Source:     rate.Name,
		Amount:     amount,
		Allocated:  allocated,
		ToTreasury: remainder,
	}, nil
}

// DepositTreasury funds the treasury directly, outside any revenue stream.
func (e *Engine) DepositTreasury(ctx context.Context, caller common.Address, amount uint256.Int) (model.TreasuryStats, error) {
	if err := e.guard.Require(ctx, caller, model.RoleRevenueSource); err != nil {
		return model.TreasuryStats{}, err
	}
	if amount.IsZero() {
		return model.TreasuryStats{}, apperrors.Invalid(apperrors.CodeInvalidAmount, "amount must be positive")
	}
	var stats model.TreasuryStats
	err := e.transact(ctx, "deposit", caller, func(tx *txn) error {
		t := &tx.next.Treasury
		var err error
		if t.TotalAssets, err = units.Add(t.TotalAssets, amount); err != nil {
			return apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
		}
		if t.TotalDeposited, err = units.Add(t.TotalDeposited, amount); err != nil {
			return apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error())
		}
		tx.emit(model.EventTreasuryDeposited).
			With("amount", units.Format(amount)).
			With("total_assets", units.Format(t.TotalAssets))
		stats = treasuryStats(tx.next.Treasury)
		return nil
	})
	if err != nil {
		return model.TreasuryStats{}, err
	}
	return stats, nil
}

// GetRevenueStream returns the stream snapshot for a tag.
func (e *Engine) GetRevenueStream(ctx context.Context, tag model.SourceTag) (model.RevenueStream, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return model.RevenueStream{}, err
	}
	stream, ok := st.Streams[tag]
	if !ok {
		return model.RevenueStream{}, apperrors.NotFound(fmt.Sprintf("no revenue recorded for %s", tag.Hex()))
	}
	return stream, nil
}

// ListRevenueStreams returns every stream in source-name order.
func (e *Engine) ListRevenueStreams(ctx context.Context) ([]model.RevenueStream, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RevenueStream, 0, len(st.Streams))
	for _, name := range e.policies.Current().SourceNames() {
		if s, ok := st.Streams[model.TagOf(name)]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
