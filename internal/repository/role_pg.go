package repository

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
)

// PostgresRoleRepo 能力授予表，地址统一存 checksum 格式
type PostgresRoleRepo struct {
	db *sqlx.DB
}

func NewPostgresRoleRepo(db *sqlx.DB) (*PostgresRoleRepo, error) {
	repo := &PostgresRoleRepo{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRoleRepo) Grant(ctx context.Context, account common.Address, role model.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO role_grants (account, role) VALUES ($1, $2)
		ON CONFLICT (account, role) DO NOTHING
	`, account.Hex(), string(role))
	return err
}

func (r *PostgresRoleRepo) Revoke(ctx context.Context, account common.Address, role model.Role) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM role_grants WHERE account = $1 AND role = $2`, account.Hex(), string(role))
	return err
}

func (r *PostgresRoleRepo) Has(ctx context.Context, account common.Address, role model.Role) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM role_grants WHERE account = $1 AND role = $2)
	`, account.Hex(), string(role)).Scan(&exists)
	return exists, err
}

func (r *PostgresRoleRepo) List(ctx context.Context, account common.Address) ([]model.Role, error) {
	var raw []string
	if err := r.db.SelectContext(ctx, &raw, `
		SELECT role FROM role_grants WHERE account = $1 ORDER BY role
	`, account.Hex()); err != nil {
		return nil, err
	}
	out := make([]model.Role, 0, len(raw))
	for _, s := range raw {
		out = append(out, model.Role(s))
	}
	return out, nil
}

func (r *PostgresRoleRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS role_grants (
			account TEXT NOT NULL,
			role TEXT NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (account, role)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure role schema: %w", err)
	}
	return nil
}
