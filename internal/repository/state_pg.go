package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
)

// PostgresStateRepo 把引擎状态存成一行版本化记录，加上流水表和入账表。
// 金额列为 NUMERIC(78,0)，保存 18 位小数的原始整数，读取时转成 text。
type PostgresStateRepo struct {
	db *sqlx.DB
}

func NewPostgresStateRepo(db *sqlx.DB) (*PostgresStateRepo, error) {
	repo := &PostgresStateRepo{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

type stateRow struct {
	Version          int64        `db:"version"`
	AccumulatedFunds string       `db:"accumulated_funds"`
	TotalSpent       string       `db:"total_spent"`
	LastBuybackTime  sql.NullTime `db:"last_buyback_time"`
	LastPrice        string       `db:"last_price"`
	Executions       int64        `db:"executions"`
	TokensBought     string       `db:"tokens_bought"`
	TokensBurned     string       `db:"tokens_burned"`
	TokensRewarded   string       `db:"tokens_rewarded"`
	TotalAssets      string       `db:"total_assets"`
	LiquidityBalance string       `db:"liquidity_balance"`
	TotalDeposited   string       `db:"total_deposited"`
	TotalDistributed string       `db:"total_distributed"`
	LastRebalance    sql.NullTime `db:"last_rebalance"`
	LastDistribution sql.NullTime `db:"last_distribution"`
}

type streamRow struct {
	Tag               string       `db:"tag"`
	Name              string       `db:"name"`
	TotalCollected    string       `db:"total_collected"`
	BuybackAllocation string       `db:"buyback_allocation"`
	LastUpdateTime    sql.NullTime `db:"last_update_time"`
}

type creditRow struct {
	Asset   string `db:"asset"`
	Account string `db:"account"`
	Amount  string `db:"amount"`
}

func (r *PostgresStateRepo) Load(ctx context.Context) (*model.State, error) {
	var row stateRow
	err := r.db.GetContext(ctx, &row, `
		SELECT version,
			accumulated_funds::text AS accumulated_funds, total_spent::text AS total_spent,
			last_buyback_time, last_price::text AS last_price, executions,
			tokens_bought::text AS tokens_bought, tokens_burned::text AS tokens_burned,
			tokens_rewarded::text AS tokens_rewarded,
			total_assets::text AS total_assets, liquidity_balance::text AS liquidity_balance,
			total_deposited::text AS total_deposited, total_distributed::text AS total_distributed,
			last_rebalance, last_distribution
		FROM engine_state WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewState(), nil
	}
	if err != nil {
		return nil, err
	}

	st := model.NewState()
	st.Version = uint64(row.Version)
	st.Buyback.Executions = uint64(row.Executions)
	st.Buyback.LastBuybackTime = fromNullTime(row.LastBuybackTime)
	st.Treasury.LastRebalance = fromNullTime(row.LastRebalance)
	st.Treasury.LastDistribution = fromNullTime(row.LastDistribution)
	amounts := []struct {
		raw string
		dst *uint256.Int
	}{
		{row.AccumulatedFunds, &st.AccumulatedFunds},
		{row.TotalSpent, &st.TotalSpent},
		{row.LastPrice, &st.Buyback.LastPrice},
		{row.TokensBought, &st.Buyback.TokensBought},
		{row.TokensBurned, &st.Buyback.TokensBurned},
		{row.TokensRewarded, &st.Buyback.TokensRewarded},
		{row.TotalAssets, &st.Treasury.TotalAssets},
		{row.LiquidityBalance, &st.Treasury.LiquidityBalance},
		{row.TotalDeposited, &st.Treasury.TotalDeposited},
		{row.TotalDistributed, &st.Treasury.TotalDistributed},
	}
	for _, a := range amounts {
		if err := scanAmount(a.raw, a.dst); err != nil {
			return nil, err
		}
	}

	var streams []streamRow
	if err := r.db.SelectContext(ctx, &streams, `
		SELECT tag, name, total_collected::text AS total_collected,
			buyback_allocation::text AS buyback_allocation, last_update_time
		FROM revenue_streams
	`); err != nil {
		return nil, err
	}
	for _, s := range streams {
		tag, err := model.ParseSourceTag(s.Tag)
		if err != nil {
			return nil, fmt.Errorf("revenue_streams: %w", err)
		}
		stream := model.RevenueStream{Tag: tag, Name: s.Name, LastUpdateTime: fromNullTime(s.LastUpdateTime)}
		if err := scanAmount(s.TotalCollected, &stream.TotalCollected); err != nil {
			return nil, err
		}
		if err := scanAmount(s.BuybackAllocation, &stream.BuybackAllocation); err != nil {
			return nil, err
		}
		st.Streams[tag] = stream
	}

	var credits []creditRow
	if err := r.db.SelectContext(ctx, &credits, `
		SELECT asset, account, amount::text AS amount FROM engine_credits
	`); err != nil {
		return nil, err
	}
	for _, c := range credits {
		var amount uint256.Int
		if err := scanAmount(c.Amount, &amount); err != nil {
			return nil, err
		}
		st.Credits[model.CreditKey{Asset: model.Asset(c.Asset), Account: common.HexToAddress(c.Account)}] = amount
	}
	return st, nil
}

// Save 在一个事务里提交整份状态；版本不匹配时返回 STATE_CONFLICT
func (r *PostgresStateRepo) Save(ctx context.Context, expectedVersion uint64, next *model.State) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	args := []any{
		int64(next.Version),
		next.AccumulatedFunds.Dec(), next.TotalSpent.Dec(),
		nullTime(next.Buyback.LastBuybackTime), next.Buyback.LastPrice.Dec(), int64(next.Buyback.Executions),
		next.Buyback.TokensBought.Dec(), next.Buyback.TokensBurned.Dec(), next.Buyback.TokensRewarded.Dec(),
		next.Treasury.TotalAssets.Dec(), next.Treasury.LiquidityBalance.Dec(),
		next.Treasury.TotalDeposited.Dec(), next.Treasury.TotalDistributed.Dec(),
		nullTime(next.Treasury.LastRebalance), nullTime(next.Treasury.LastDistribution),
		time.Now().UTC(),
	}
	var res sql.Result
	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO engine_state (
				id, version, accumulated_funds, total_spent,
				last_buyback_time, last_price, executions,
				tokens_bought, tokens_burned, tokens_rewarded,
				total_assets, liquidity_balance, total_deposited, total_distributed,
				last_rebalance, last_distribution, updated_at
			) VALUES (
				1, $1, $2::numeric, $3::numeric,
				$4, $5::numeric, $6,
				$7::numeric, $8::numeric, $9::numeric,
				$10::numeric, $11::numeric, $12::numeric, $13::numeric,
				$14, $15, $16
			)
			ON CONFLICT (id) DO NOTHING
		`, args...)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE engine_state SET
				version = $1, accumulated_funds = $2::numeric, total_spent = $3::numeric,
				last_buyback_time = $4, last_price = $5::numeric, executions = $6,
				tokens_bought = $7::numeric, tokens_burned = $8::numeric, tokens_rewarded = $9::numeric,
				total_assets = $10::numeric, liquidity_balance = $11::numeric,
				total_deposited = $12::numeric, total_distributed = $13::numeric,
				last_rebalance = $14, last_distribution = $15, updated_at = $16
			WHERE id = 1 AND version = $17
		`, append(args, int64(expectedVersion))...)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = apperrors.Conflict("state version moved during the operation")
		return err
	}

	for tag, s := range next.Streams {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO revenue_streams (tag, name, total_collected, buyback_allocation, last_update_time)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5)
			ON CONFLICT (tag) DO UPDATE SET
				name = EXCLUDED.name,
				total_collected = EXCLUDED.total_collected,
				buyback_allocation = EXCLUDED.buyback_allocation,
				last_update_time = EXCLUDED.last_update_time
		`, tag.Hex(), s.Name, s.TotalCollected.Dec(), s.BuybackAllocation.Dec(), nullTime(s.LastUpdateTime)); err != nil {
			return err
		}
	}
	for key, amount := range next.Credits {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO engine_credits (asset, account, amount)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (asset, account) DO UPDATE SET amount = EXCLUDED.amount
		`, string(key.Asset), key.Account.Hex(), amount.Dec()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresStateRepo) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS engine_state (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			version BIGINT NOT NULL,
			accumulated_funds NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_spent NUMERIC(78,0) NOT NULL DEFAULT 0,
			last_buyback_time TIMESTAMPTZ,
			last_price NUMERIC(78,0) NOT NULL DEFAULT 0,
			executions BIGINT NOT NULL DEFAULT 0,
			tokens_bought NUMERIC(78,0) NOT NULL DEFAULT 0,
			tokens_burned NUMERIC(78,0) NOT NULL DEFAULT 0,
			tokens_rewarded NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_assets NUMERIC(78,0) NOT NULL DEFAULT 0,
			liquidity_balance NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_deposited NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_distributed NUMERIC(78,0) NOT NULL DEFAULT 0,
			last_rebalance TIMESTAMPTZ,
			last_distribution TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS revenue_streams (
			tag TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			total_collected NUMERIC(78,0) NOT NULL DEFAULT 0,
			buyback_allocation NUMERIC(78,0) NOT NULL DEFAULT 0,
			last_update_time TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS engine_credits (
			asset TEXT NOT NULL,
			account TEXT NOT NULL,
			amount NUMERIC(78,0) NOT NULL DEFAULT 0,
			PRIMARY KEY (asset, account)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure state schema: %w", err)
		}
	}
	return nil
}

func scanAmount(raw string, dst *uint256.Int) error {
	if raw == "" {
		dst.Clear()
		return nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	dst.Set(v)
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
