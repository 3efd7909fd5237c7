package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kon-rad/rudder-analytics-go/push"
)

const (
	DeliveryOK     = push.DeliveryOK
	DeliveryFailed = push.DeliveryFailed
)

// Delivery is the row the log keeps for each push.Delivery.
type Delivery = push.Delivery

// Rejection is an event the relay refused before it reached a batch.
type Rejection struct {
	CreatedAt int64
	EventType string
	Reason    string
	Detail    string
}

func (m *Manager) RecordDelivery(ctx context.Context, d Delivery) error {
	_, err := m.writer.ExecContext(ctx, `
INSERT INTO deliveries (
  delivery_id, created_at, path, status, status_code, events, bytes, attempts, error_message, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
`,
		d.DeliveryID,
		d.CreatedAt,
		d.Path,
		d.Status,
		d.StatusCode,
		d.Events,
		d.Bytes,
		d.Attempts,
		d.ErrorMessage,
		d.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (m *Manager) RecordRejection(ctx context.Context, r Rejection) error {
	_, err := m.writer.ExecContext(ctx,
		"INSERT INTO rejections (created_at, event_type, reason, detail) VALUES (?, ?, ?, NULLIF(?, ''))",
		r.CreatedAt, r.EventType, r.Reason, r.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	return nil
}

// LastDelivery returns sql.ErrNoRows when nothing has been sent yet.
func (m *Manager) LastDelivery(ctx context.Context) (Delivery, error) {
	rows, err := m.queryDeliveries(ctx, 1)
	if err != nil {
		return Delivery{}, err
	}
	if len(rows) == 0 {
		return Delivery{}, sql.ErrNoRows
	}
	return rows[0], nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (m *Manager) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	return m.queryDeliveries(ctx, limit)
}

func (m *Manager) queryDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := m.reader.QueryContext(ctx, `
SELECT delivery_id, created_at, path, status, COALESCE(status_code, 0), events, bytes, attempts,
  COALESCE(error_message, ''), COALESCE(duration_ms, 0)
FROM deliveries
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Delivery, 0, limit)
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(
			&d.DeliveryID,
			&d.CreatedAt,
			&d.Path,
			&d.Status,
			&d.StatusCode,
			&d.Events,
			&d.Bytes,
			&d.Attempts,
			&d.ErrorMessage,
			&d.DurationMS,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (m *Manager) RejectionCountByReason(ctx context.Context, reason string) (int64, error) {
	var out int64
	if err := m.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM rejections WHERE reason = ?", reason).Scan(&out); err != nil {
		return 0, err
	}
	return out, nil
}

// EventsDelivered sums the events carried by successful deliveries.
func (m *Manager) EventsDelivered(ctx context.Context) (int64, error) {
	var out int64
	err := m.reader.QueryRowContext(ctx, "SELECT COALESCE(SUM(events), 0) FROM deliveries WHERE status = 'ok'").Scan(&out)
	return out, err
}
