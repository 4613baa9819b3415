package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/GoPolymarket/burngate/internal/middleware"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/jmoiron/sqlx"
)

type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

func NewPostgresIdempotencyStore(db *sqlx.DB) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, processing, created_at)
		VALUES ($1, true, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, now)
	if err != nil {
		return storeUnavailable("postgres", err), true
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil, false
	}

	var rec middleware.IdempotencyRecord
	err = s.db.QueryRowxContext(ctx, `
		SELECT status_code, response_body, created_at, processing
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&rec.Status, &rec.Body, &rec.CreatedAt, &rec.Processing)
	if errors.Is(err, sql.ErrNoRows) {
		// 冲突行刚被 Unlock 删掉，让调用方重试
		return &middleware.IdempotencyRecord{Processing: true}, true
	}
	if err != nil {
		return storeUnavailable("postgres", err), true
	}
	return &rec, true
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	_, _ = s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status_code = $2, response_body = $3, processing = false
		WHERE key = $1
	`, key, status, body)
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// storeUnavailable 存储不可用时不能放行，否则重复请求会被执行两次
func storeUnavailable(backend string, err error) *middleware.IdempotencyRecord {
	logger.Error("idempotency store unavailable", "backend", backend, "error", err)
	return &middleware.IdempotencyRecord{Unavailable: true}
}
