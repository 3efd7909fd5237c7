package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kon-rad/rudder-analytics-go/batcher"
	"github.com/kon-rad/rudder-analytics-go/document"
	"github.com/kon-rad/rudder-analytics-go/internal/db"
	"github.com/kon-rad/rudder-analytics-go/message"
	"github.com/kon-rad/rudder-analytics-go/push"
	"github.com/kon-rad/rudder-analytics-go/wire"
)

type Sender interface {
	SendBatch(ctx context.Context, batch wire.Batch) (push.Result, error)
}

type RejectionRecorder interface {
	RecordRejection(ctx context.Context, r db.Rejection) error
}

type WorkerConfig struct {
	SharedContext  document.Document
	FlushInterval  time.Duration
	FlushMaxEvents int
	FlushTimeout   time.Duration
	Rejections     RejectionRecorder
}

type WorkerStats struct {
	Accepted        int64
	Rejected        int64
	BatchesSent     int64
	BatchesFailed   int64
	EventsDelivered int64
	LastFlushStatus string
}

// Worker is the single owner of a Batcher. It drains a channel of events and
// flushes on overflow, on FlushMaxEvents, on every FlushInterval tick and
// when the channel is closed.
type Worker struct {
	logger *slog.Logger
	sender Sender
	cfg    WorkerConfig

	accepted        atomic.Int64
	rejected        atomic.Int64
	batchesSent     atomic.Int64
	batchesFailed   atomic.Int64
	eventsDelivered atomic.Int64
	lastFlushStatus atomic.Value
}

func NewWorker(logger *slog.Logger, sender Sender, cfg WorkerConfig) (*Worker, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushMaxEvents <= 0 {
		cfg.FlushMaxEvents = DefaultFlushMaxEvents
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if key, ok := message.ReservedKeyConflict(cfg.SharedContext); ok {
		return nil, fmt.Errorf("shared context: %w", &message.ValidationError{Type: "batch", Rule: message.ErrReservedKeyword, Field: key})
	}
	w := &Worker{
		logger: logger,
		sender: sender,
		cfg:    cfg,
	}
	w.lastFlushStatus.Store("idle")
	return w, nil
}

func (w *Worker) Run(events <-chan message.Message) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	b, err := w.newBatcher()
	if err != nil {
		return err
	}

	flush := func() error {
		if !b.Empty() {
			w.deliver(b.Finalize())
		}
		b, err = w.newBatcher()
		return err
	}

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				if !b.Empty() {
					w.deliver(b.Finalize())
				}
				return nil
			}
			rejected, acceptErr := b.Accept(msg)
			if acceptErr != nil {
				w.reject(msg, acceptErr)
				continue
			}
			if rejected != nil {
				if err := flush(); err != nil {
					return err
				}
				// A fresh batcher always has room for a message under
				// MaxMessageSize.
				if _, acceptErr := b.Accept(rejected); acceptErr != nil {
					w.reject(rejected, acceptErr)
					continue
				}
			}
			w.accepted.Add(1)
			if b.Len() >= w.cfg.FlushMaxEvents {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if b.Empty() {
				continue
			}
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) Stats() WorkerStats {
	status, _ := w.lastFlushStatus.Load().(string)
	return WorkerStats{
		Accepted:        w.accepted.Load(),
		Rejected:        w.rejected.Load(),
		BatchesSent:     w.batchesSent.Load(),
		BatchesFailed:   w.batchesFailed.Load(),
		EventsDelivered: w.eventsDelivered.Load(),
		LastFlushStatus: status,
	}
}

func (w *Worker) newBatcher() (*batcher.Batcher, error) {
	b, err := batcher.New(w.cfg.SharedContext)
	if err != nil {
		return nil, fmt.Errorf("new batcher: %w", err)
	}
	return b, nil
}

func (w *Worker) deliver(batch wire.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	res, err := w.sender.SendBatch(ctx, batch)
	if err != nil {
		w.batchesFailed.Add(1)
		w.lastFlushStatus.Store("error")
		w.logger.Error("batch delivery failed",
			"events", len(batch.Messages),
			"delivery_id", res.DeliveryID,
			"error", err,
		)
		return
	}
	w.batchesSent.Add(1)
	w.eventsDelivered.Add(int64(len(batch.Messages)))
	w.lastFlushStatus.Store("ok")
	w.logger.Info("batch delivered",
		"events", len(batch.Messages),
		"size", humanize.Bytes(uint64(res.Bytes)),
		"attempts", res.Attempts,
		"delivery_id", res.DeliveryID,
	)
}

func (w *Worker) reject(msg message.Message, err error) {
	w.rejected.Add(1)
	reason := RejectionReason(err)
	eventType := "unknown"
	if msg != nil {
		eventType = string(msg.Type())
	}
	w.logger.Warn("event rejected", "type", eventType, "reason", reason, "error", err)
	if w.cfg.Rejections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if recErr := w.cfg.Rejections.RecordRejection(ctx, db.Rejection{
		CreatedAt: time.Now().UnixMilli(),
		EventType: eventType,
		Reason:    reason,
		Detail:    err.Error(),
	}); recErr != nil {
		w.logger.Warn("record rejection failed", "error", recErr)
	}
}
