package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/jmoiron/sqlx"
)

type PostgresEventRepo struct {
	db *sqlx.DB
}

func NewPostgresEventRepo(db *sqlx.DB) *PostgresEventRepo {
	repo := &PostgresEventRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresEventRepo) Insert(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return nil
	}
	dataJSON, _ := json.Marshal(ev.Data)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO domain_events (
			id, type, actor, policy_version, state_version, data, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7
		)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, string(ev.Type), ev.Actor, int64(ev.PolicyVersion), int64(ev.StateVersion), dataJSON, ev.CreatedAt)
	return err
}

func (r *PostgresEventRepo) List(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, type, actor, policy_version, state_version, data, created_at FROM domain_events`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if filter.Type != "" {
		clauses = append(clauses, fmt.Sprintf("type = $%d", idx))
		args = append(args, string(filter.Type))
		idx++
	}
	if filter.Since != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *filter.Since)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, state_version DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*model.Event, 0, limit)
	for rows.Next() {
		var (
			ev            model.Event
			evType        string
			policyVersion int64
			stateVersion  int64
			dataJSON      []byte
		)
		if err := rows.Scan(
			&ev.ID,
			&evType,
			&ev.Actor,
			&policyVersion,
			&stateVersion,
			&dataJSON,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(evType)
		ev.PolicyVersion = uint64(policyVersion)
		ev.StateVersion = uint64(stateVersion)
		ev.CreatedAt = ev.CreatedAt.UTC()
		ev.Data = map[string]string{}
		if len(dataJSON) > 0 {
			_ = json.Unmarshal(dataJSON, &ev.Data)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *PostgresEventRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS domain_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			actor TEXT,
			policy_version BIGINT,
			state_version BIGINT,
			data JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_domain_events_type ON domain_events(type, created_at DESC)`)
	return nil
}

func (r *PostgresEventRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM domain_events WHERE created_at < $1`, cutoff)
	return err
}
