package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/stackup/internal/journal"
)

// DB implements journal.Store for PostgreSQL via the pgx stdlib driver.

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_journal(
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			event TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			detail TEXT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_journal_run ON run_journal(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_run_journal_name ON run_journal(name);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Append(ctx context.Context, rec journal.Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO run_journal(run_id, event, name, pid, detail, occurred_at)
		VALUES($1, $2, $3, $4, $5, $6);`,
		rec.RunID, rec.Event, rec.Name, rec.PID, rec.Detail, rec.OccurredAt.UTC())
	return err
}

func (p *DB) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT run_id, event, name, pid, detail, occurred_at
		FROM run_journal ORDER BY id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []journal.Record
	for rows.Next() {
		var rec journal.Record
		var detail sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Event, &rec.Name, &rec.PID, &detail, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Detail = detail.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
