// Package db keeps a local SQLite log of deliveries to the data plane and of
// events the relay refused, for health reporting and troubleshooting.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
)

// Manager owns the delivery log. Writes are funnelled through one connection
// so SQLite never sees concurrent writers; reads use a small pool.
type Manager struct {
	path   string
	writer *sql.DB
	reader *sql.DB
}

type Stats struct {
	Status      string
	SizeBytes   int64
	WALBytes    int64
	Deliveries  int64
	Failed      int64
	Rejections  int64
	LastStatus  string
	LastFlushAt *int64
}

const connectionPragmas = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;
PRAGMA temp_store = MEMORY;
PRAGMA foreign_keys = ON;
`

func init() {
	sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, _ string) error {
		_, err := conn.ExecContext(context.Background(), connectionPragmas, []driver.NamedValue{})
		return err
	})
}

func Open(ctx context.Context, path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := "file:" + path
	writer, err := openPool(ctx, dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	reader, err := openPool(ctx, dsn, 4)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	if _, err := writer.ExecContext(ctx, schemaDDL); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Manager{path: path, writer: writer, reader: reader}, nil
}

func openPool(ctx context.Context, dsn string, conns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(conns)
	pool.SetMaxIdleConns(conns)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.writer.PingContext(ctx)
}

// Checkpoint folds the WAL back into the main database file.
func (m *Manager) Checkpoint(ctx context.Context) error {
	_, err := m.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (m *Manager) Close() error {
	return errors.Join(m.writer.Close(), m.reader.Close())
}

func (m *Manager) JournalMode(ctx context.Context) (string, error) {
	var mode string
	err := m.writer.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
	return mode, err
}

// Stats summarises the log for the health endpoint. Query failures degrade
// Status instead of returning an error.
func (m *Manager) Stats(ctx context.Context) Stats {
	stats := Stats{Status: "ok"}
	if err := m.Ping(ctx); err != nil {
		stats.Status = "error"
		return stats
	}
	if fi, err := os.Stat(m.path); err == nil {
		stats.SizeBytes = fi.Size()
	}
	if fi, err := os.Stat(m.path + "-wal"); err == nil {
		stats.WALBytes = fi.Size()
	}

	err := m.reader.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM deliveries),
  (SELECT COUNT(*) FROM deliveries WHERE status != 'ok'),
  (SELECT COUNT(*) FROM rejections)
`).Scan(&stats.Deliveries, &stats.Failed, &stats.Rejections)
	if err != nil {
		stats.Status = "degraded"
		return stats
	}

	last, err := m.LastDelivery(ctx)
	switch {
	case err == nil:
		stats.LastStatus = last.Status
		stats.LastFlushAt = &last.CreatedAt
	case !errors.Is(err, sql.ErrNoRows):
		stats.Status = "degraded"
	}
	return stats
}
