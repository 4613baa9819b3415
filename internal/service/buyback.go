package service

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	triggerManual    = "manual"
	triggerEmergency = "emergency"
	triggerIngest    = "ingest"
	triggerTreasury  = "treasury"
)

// ExecuteBuyback spends a pressure-scaled share of the accumulated funds on the
// protocol token, burns part of it and sends the rest to the rewards pool.
func (e *Engine) ExecuteBuyback(ctx context.Context, caller common.Address) (*model.BuybackResult, error) {
	return e.runBuyback(ctx, caller, false)
}

// EmergencyBuyback waives the cooldown, but only when the price has fallen at
// least EmergencyDropBps below the price of the last execution.
func (e *Engine) EmergencyBuyback(ctx context.Context, caller common.Address) (*model.BuybackResult, error) {
	return e.runBuyback(ctx, caller, true)
}

func (e *Engine) runBuyback(ctx context.Context, caller common.Address, emergency bool) (*model.BuybackResult, error) {
	trigger := triggerManual
	if emergency {
		trigger = triggerEmergency
	}
	if err := e.guard.Require(ctx, caller, model.RoleOperator); err != nil {
		metrics.BuybackResults.WithLabelValues(trigger, string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}
	var result *model.BuybackResult
	err := e.transact(ctx, "buyback", caller, func(tx *txn) error {
		res, err := e.buybackOn(tx, tx.next, emergency)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	metrics.BuybackResults.WithLabelValues(trigger, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()
	if err != nil {
		e.log.Info("buyback not executed", "trigger", trigger, "code", apperrors.CodeOf(err), "error", err)
		return nil, err
	}
	return result, nil
}

// tryBuyback is the best-effort attempt made after ingestion. It runs on a
// copy of the staged state and adopts it only on success. A failure is
// recorded as a buyback.skipped event and never fails the caller.
func (e *Engine) tryBuyback(tx *txn, trigger string) (*model.BuybackResult, string) {
	if tx.next.AccumulatedFunds.Lt(&tx.policy.Buyback.MinimumAmount) {
		return nil, ""
	}
	trial := tx.next.Clone()
	res, err := e.buybackOn(tx, trial, false)
	metrics.BuybackResults.WithLabelValues(trigger, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()
	if err != nil {
		code := string(apperrors.CodeOf(err))
		e.log.Warn("buyback attempt skipped", "trigger", trigger, "code", code, "error", err)
		tx.emit(model.EventBuybackSkipped).
			With("trigger", trigger).
			With("code", code).
			With("reason", err.Error()).
			With("accumulated_funds", units.Format(tx.next.AccumulatedFunds))
		return nil, code
	}
	tx.next = trial
	return res, ""
}

// buybackOn validates, computes, purchases, splits and then mutates st, in that
// order. st is untouched unless every step before the mutation succeeded.
func (e *Engine) buybackOn(tx *txn, st *model.State, emergency bool) (*model.BuybackResult, error) {
	bp := tx.policy.Buyback

	cooldownEnds := st.Buyback.LastBuybackTime.Add(bp.Cooldown)
	cooling := !st.Buyback.LastBuybackTime.IsZero() && tx.now.Before(cooldownEnds)
	if cooling && !emergency {
		return nil, apperrors.NotYet(apperrors.CodeCooldownActive,
			fmt.Sprintf("buyback cooldown active until %s", cooldownEnds.Format(time.RFC3339))).
			WithRetryAfter(cooldownEnds.Sub(tx.now))
	}
	if st.AccumulatedFunds.IsZero() || st.AccumulatedFunds.Lt(&bp.MinimumAmount) {
		return nil, apperrors.NotYet(apperrors.CodeInsufficientFunds,
			fmt.Sprintf("accumulated funds %s below minimum %s",
				units.Format(st.AccumulatedFunds), units.Format(bp.MinimumAmount)))
	}

	quote, err := e.latestPrice(tx.ctx)
	if err != nil {
		return nil, err
	}

	if emergency {
		if err := emergencyTriggered(st.Buyback.LastPrice, quote.Price, bp.EmergencyDropBps); err != nil {
			return nil, err
		}
	}

	pressure := CalculatePressure(bp, tx.policy.Thresholds, quote.Price)
	spend, err := units.MulBps(st.AccumulatedFunds, pressure)
	if err != nil {
		return nil, apperrors.Internal("spend amount", err)
	}
	if spend.IsZero() {
		return nil, apperrors.NotYet(apperrors.CodeInsufficientFunds, "spend amount rounds to zero")
	}

	bought, err := e.buy(tx.ctx, spend)
	if err != nil {
		return nil, err
	}
	tx.external = true

	toBurn, err := units.MulBps(bought, bp.BurnRatioBps)
	if err != nil {
		return nil, apperrors.Internal("burn amount", err)
	}
	var toRewards uint256.Int
	toRewards.Sub(&bought, &toBurn)

	addrs := tx.policy.Addresses
	if err := st.Credit(model.AssetToken, addrs.BurnSink, toBurn); err != nil {
		return nil, apperrors.Internal("credit burn sink", err)
	}
	if err := st.Credit(model.AssetToken, addrs.RewardsPool, toRewards); err != nil {
		return nil, apperrors.Internal("credit rewards pool", err)
	}
	st.AccumulatedFunds.Sub(&st.AccumulatedFunds, &spend)
	st.TotalSpent.Add(&st.TotalSpent, &spend)
	st.Buyback.LastBuybackTime = tx.now
	st.Buyback.LastPrice = quote.Price
	st.Buyback.Executions++
	st.Buyback.TokensBought.Add(&st.Buyback.TokensBought, &bought)
	st.Buyback.TokensBurned.Add(&st.Buyback.TokensBurned, &toBurn)
	st.Buyback.TokensRewarded.Add(&st.Buyback.TokensRewarded, &toRewards)

	evType := model.EventBuybackExecuted
	if emergency {
		evType = model.EventBuybackEmergency
	}
	tx.emit(evType).
		With("price", units.Format(quote.Price)).
		With("pressure_bps", fmt.Sprint(pressure)).
		With("spend_amount", units.Format(spend)).
		With("tokens_bought", units.Format(bought)).
		With("to_burn", units.Format(toBurn)).
		With("to_rewards", units.Format(toRewards))

	metrics.PressureBps.Set(float64(pressure))
	metrics.AccumulatedFunds.Set(units.ToDecimal(st.AccumulatedFunds).InexactFloat64())
	e.log.Info("buyback executed",
		"price", units.Format(quote.Price),
		"pressure_bps", pressure,
		"spend", units.Format(spend),
		"bought", units.Format(bought),
		"burned", units.Format(toBurn),
		"emergency", emergency)

	return &model.BuybackResult{
		Price:        quote.Price,
		PressureBps:  pressure,
		Spent:        spend,
		TokensBought: bought,
		Burned:       toBurn,
		Rewarded:     toRewards,
		Emergency:    emergency,
		ExecutedAt:   tx.now,
	}, nil
}

func emergencyTriggered(lastPrice, price uint256.Int, dropBps uint64) error {
	if lastPrice.IsZero() {
		return apperrors.NotYet(apperrors.CodeEmergencyNotTriggered, "no previous execution price to compare against")
	}
	limit, err := units.MulBps(lastPrice, model.BpsDenominator-dropBps)
	if err != nil {
		return apperrors.Internal("emergency limit", err)
	}
	if price.Gt(&limit) {
		return apperrors.NotYet(apperrors.CodeEmergencyNotTriggered,
			fmt.Sprintf("price %s is not %d bps below last execution price %s",
				units.Format(price), dropBps, units.Format(lastPrice)))
	}
	return nil
}

func (e *Engine) latestPrice(ctx context.Context) (model.PriceQuote, error) {
	octx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()
	quote, err := e.oracle.LatestPrice(octx)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrExternal) {
			return model.PriceQuote{}, err
		}
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "price oracle failed", err)
	}
	if quote.Price.IsZero() {
		return model.PriceQuote{}, apperrors.External(apperrors.CodeOracleError, "oracle returned a non-positive price", nil)
	}
	return quote, nil
}

func (e *Engine) buy(ctx context.Context, spend uint256.Int) (uint256.Int, error) {
	vctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	defer cancel()
	bought, err := e.venue.Buy(vctx, spend)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrExternal) {
			return uint256.Int{}, err
		}
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "market purchase failed", err)
	}
	if bought.IsZero() {
		return uint256.Int{}, apperrors.External(apperrors.CodeExecutionFailed, "market purchase returned no tokens", nil)
	}
	return bought, nil
}

// GetBuybackStats reports executor counters from the committed state.
func (e *Engine) GetBuybackStats(ctx context.Context) (model.BuybackStats, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return model.BuybackStats{}, err
	}
	stats := model.BuybackStats{
		AccumulatedFunds: st.AccumulatedFunds,
		TotalSpent:       st.TotalSpent,
		Executions:       st.Buyback.Executions,
		TokensBought:     st.Buyback.TokensBought,
		TokensBurned:     st.Buyback.TokensBurned,
		TokensRewarded:   st.Buyback.TokensRewarded,
		LastBuybackTime:  st.Buyback.LastBuybackTime,
		LastPrice:        st.Buyback.LastPrice,
	}
	if !st.Buyback.LastBuybackTime.IsZero() {
		stats.NextEligibleAt = st.Buyback.LastBuybackTime.Add(e.policies.Current().Buyback.Cooldown)
	}
	return stats, nil
}
