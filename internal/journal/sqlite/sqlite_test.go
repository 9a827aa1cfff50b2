package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/stackup/internal/journal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return db
}

func TestAppendAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []journal.Record{
		{RunID: "run-1", Event: journal.EventPhase, Name: "building", OccurredAt: base},
		{RunID: "run-1", Event: journal.EventServiceStart, Name: "engine", PID: 101, OccurredAt: base.Add(time.Second)},
		{RunID: "run-1", Event: journal.EventServiceStop, Name: "engine", PID: 101, Detail: "signal: terminated", OccurredAt: base.Add(2 * time.Second)},
	}
	for _, r := range recs {
		if err := db.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	// newest first
	if got[0].Event != journal.EventServiceStop || got[0].Detail != "signal: terminated" {
		t.Fatalf("newest record = %+v", got[0])
	}
	if got[2].Event != journal.EventPhase || got[2].Name != "building" {
		t.Fatalf("oldest record = %+v", got[2])
	}
}

func TestRecentLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := journal.Record{RunID: "run-1", Event: journal.EventPhase, Name: "running", OccurredAt: time.Now()}
		if err := db.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := db.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit not applied: %d records", len(got))
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestNewEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
