package db

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Manager {
	t.Helper()
	dbm, err := Open(context.Background(), filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = dbm.Close() })
	return dbm
}

func TestOpenAppliesPragmasAndSchema(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)

	journal, err := dbm.JournalMode(context.Background())
	if err != nil {
		t.Fatalf("JournalMode() error = %v", err)
	}
	if journal != "wal" {
		t.Fatalf("journal mode = %q, want wal", journal)
	}

	stats := dbm.Stats(context.Background())
	if stats.Status != "ok" {
		t.Fatalf("stats status = %q, want ok", stats.Status)
	}
	if stats.Deliveries != 0 || stats.Rejections != 0 || stats.LastFlushAt != nil {
		t.Fatalf("expected empty log, got %+v", stats)
	}
}
