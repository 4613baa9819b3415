package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const pgErrUniqueViolation = "23505"

// PostgresPolicyRepo 追加式保存策略版本，文档为 JSONB
type PostgresPolicyRepo struct {
	db *sqlx.DB
}

func NewPostgresPolicyRepo(db *sqlx.DB) (*PostgresPolicyRepo, error) {
	repo := &PostgresPolicyRepo{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *PostgresPolicyRepo) Latest(ctx context.Context) (*model.Policy, error) {
	var raw []byte
	err := r.db.QueryRowxContext(ctx, `
		SELECT document FROM policy_versions ORDER BY version DESC LIMIT 1
	`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc model.PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	return doc.Policy()
}

func (r *PostgresPolicyRepo) Append(ctx context.Context, p *model.Policy) error {
	doc, err := json.Marshal(p.Document())
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO policy_versions (version, document, created_at)
		VALUES ($1, $2, $3)
	`, int64(p.Version), doc, p.UpdatedAt.UTC())
	if isDuplicateKeyError(err) {
		return apperrors.Conflict("policy version already exists")
	}
	return err
}

func (r *PostgresPolicyRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS policy_versions (
			version BIGINT PRIMARY KEY,
			document JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure policy schema: %w", err)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
