package db

import (
	"context"
	"fmt"
	"os"
	"time"
)

func (m *Manager) WALSizeBytes() int64 {
	fi, err := os.Stat(m.path + "-wal")
	if err != nil {
		return 0
	}
	return fi.Size()
}

// CleanupOlderThan deletes log rows older than retention and reports how many
// were removed.
func (m *Manager) CleanupOlderThan(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention).UnixMilli()
	var deleted int64
	for _, table := range []string{"deliveries", "rejections"} {
		res, err := m.writer.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return deleted, fmt.Errorf("cleanup %s: %w", table, err)
		}
		affected, _ := res.RowsAffected()
		deleted += affected
	}
	return deleted, nil
}

// CheckpointIfWALExceeds restarts the WAL once it has grown past
// thresholdBytes.
func (m *Manager) CheckpointIfWALExceeds(ctx context.Context, thresholdBytes int64) (bool, error) {
	if m.WALSizeBytes() <= thresholdBytes {
		return false, nil
	}
	if _, err := m.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return false, fmt.Errorf("wal restart checkpoint: %w", err)
	}
	return true, nil
}
