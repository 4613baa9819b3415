package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	_ "modernc.org/sqlite"
)

// SQLiteEventRepo 单机部署用的事件记录，文件库，不依赖外部服务
type SQLiteEventRepo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteEventRepo opens (or creates) the database file and runs migrations.
func NewSQLiteEventRepo(dbPath string) (*SQLiteEventRepo, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL: 查询事件时不阻塞写入
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteEventRepo{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite event repo opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteEventRepo) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS domain_events (
			id             TEXT PRIMARY KEY,
			type           TEXT NOT NULL,
			actor          TEXT,
			policy_version INTEGER,
			state_version  INTEGER,
			data           TEXT,
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON domain_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON domain_events(type, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteEventRepo) Insert(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO domain_events (id, type, actor, policy_version, state_version, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Type), ev.Actor, int64(ev.PolicyVersion), int64(ev.StateVersion), string(data), ev.CreatedAt.UnixNano())
	return err
}

func (r *SQLiteEventRepo) List(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, type, actor, policy_version, state_version, data, created_at FROM domain_events`
	var clauses []string
	var args []any
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, state_version DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.Event, 0, limit)
	for rows.Next() {
		var (
			ev                          model.Event
			evType, data                string
			policyVersion, stateVersion int64
			createdAt                   int64
		)
		if err := rows.Scan(&ev.ID, &evType, &ev.Actor, &policyVersion, &stateVersion, &data, &createdAt); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(evType)
		ev.PolicyVersion = uint64(policyVersion)
		ev.StateVersion = uint64(stateVersion)
		ev.CreatedAt = time.Unix(0, createdAt).UTC()
		ev.Data = map[string]string{}
		if data != "" {
			_ = json.Unmarshal([]byte(data), &ev.Data)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (r *SQLiteEventRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `DELETE FROM domain_events WHERE created_at < ?`, cutoff)
	return err
}

func (r *SQLiteEventRepo) Close() error {
	return r.db.Close()
}
