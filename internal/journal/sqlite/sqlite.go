package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/stackup/internal/journal"
)

// DB implements journal.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_journal(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			detail TEXT NULL,
			occurred_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_journal_run ON run_journal(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_run_journal_name ON run_journal(name);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Append(ctx context.Context, rec journal.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_journal(run_id, event, name, pid, detail, occurred_at)
		VALUES(?, ?, ?, ?, ?, ?);`,
		rec.RunID, rec.Event, rec.Name, rec.PID, rec.Detail, rec.OccurredAt.UTC())
	return err
}

func (s *DB) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, event, name, pid, detail, occurred_at
		FROM run_journal ORDER BY id DESC LIMIT ?;`, limit)
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
