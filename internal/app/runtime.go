package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kon-rad/rudder-analytics-go/internal/config"
	"github.com/kon-rad/rudder-analytics-go/internal/db"
	"github.com/kon-rad/rudder-analytics-go/internal/ingest"
	"github.com/kon-rad/rudder-analytics-go/internal/server"
	"github.com/kon-rad/rudder-analytics-go/message"
	"github.com/kon-rad/rudder-analytics-go/push"
)

const walRestartThreshold = 64 << 20

// Runtime runs the relay: HTTP intake, the flush worker and delivery-log
// maintenance.
type Runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	version    string
	startedAt  time.Time
	dbm        *db.Manager
	httpServer *http.Server
	worker     *ingest.Worker

	mu       sync.RWMutex
	ingestCh chan message.Message
	addr     chan string

	eventsReceived atomic.Int64
	eventsDropped  atomic.Int64
}

func New(cfg *config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
		addr:      make(chan string, 1),
	}
}

// Addr blocks until the listener is bound and returns its address.
func (r *Runtime) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-r.addr:
		r.addr <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Runtime) Run(ctx context.Context) error {
	shared, err := r.cfg.SharedContext()
	if err != nil {
		return err
	}

	dbm, err := db.Open(ctx, r.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	r.dbm = dbm

	journalMode, err := r.dbm.JournalMode(ctx)
	if err != nil {
		_ = r.dbm.Close()
		return fmt.Errorf("query sqlite journal mode: %w", err)
	}
	r.logger.Info("delivery log opened", "path", r.cfg.DBPath, "journal_mode", journalMode)

	pusher := push.New(r.cfg.DataPlaneURL, r.cfg.WriteKey,
		push.WithHTTPClient(&http.Client{Timeout: r.cfg.RequestTimeout}),
		push.WithGzip(r.cfg.Gzip),
		push.WithRetries(r.cfg.MaxRetries, 500*time.Millisecond),
		push.WithRecorder(r.dbm),
		push.WithLogger(r.logger),
	)
	r.worker, err = ingest.NewWorker(r.logger, pusher, ingest.WorkerConfig{
		SharedContext:  shared,
		FlushInterval:  r.cfg.FlushInterval,
		FlushMaxEvents: r.cfg.FlushMaxEvents,
		Rejections:     r.dbm,
	})
	if err != nil {
		_ = r.dbm.Close()
		return err
	}

	ln, err := net.Listen("tcp", ":"+r.cfg.Port)
	if err != nil {
		_ = r.dbm.Close()
		return fmt.Errorf("listen: %w", err)
	}

	r.mu.Lock()
	r.ingestCh = make(chan message.Message, ingest.QueueCapacity)
	r.mu.Unlock()

	healthHandler := server.NewHealthHandler(r.dbm, r.startedAt, r.version, r)
	r.httpServer = server.New(ln.Addr().String(), healthHandler.ServeHTTP, server.NewIngestHandlers(r, shared))

	g, gctx := errgroup.WithContext(ctx)
	ch := r.ingestCh
	g.Go(func() error {
		return r.worker.Run(ch)
	})
	g.Go(func() error {
		r.logger.Info("listening", "addr", ln.Addr().String())
		r.addr <- ln.Addr().String()
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.maintain(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return r.stopIntake()
	})

	joined := g.Wait()
	return errors.Join(joined, r.closeLog())
}

func (r *Runtime) Snapshot() server.RuntimeSnapshot {
	r.mu.RLock()
	depth := len(r.ingestCh)
	r.mu.RUnlock()

	var stats ingest.WorkerStats
	if r.worker != nil {
		stats = r.worker.Stats()
	}
	return server.RuntimeSnapshot{
		QueueDepth:      int64(depth),
		EventsReceived:  r.eventsReceived.Load(),
		EventsDropped:   r.eventsDropped.Load(),
		EventsRejected:  stats.Rejected,
		BatchesSent:     stats.BatchesSent,
		BatchesFailed:   stats.BatchesFailed,
		EventsDelivered: stats.EventsDelivered,
		LastFlushStatus: stats.LastFlushStatus,
	}
}

// Enqueue hands msg to the flush worker. It reports false when the relay is
// not running or the queue is full.
func (r *Runtime) Enqueue(msg message.Message) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ingestCh == nil {
		r.eventsDropped.Add(1)
		return false
	}
	if ingest.TryEnqueue(r.ingestCh, msg) {
		r.eventsReceived.Add(1)
		return true
	}
	r.eventsDropped.Add(1)
	return false
}

// stopIntake stops the HTTP server and closes the queue so the worker
// flushes what it holds and returns.
func (r *Runtime) stopIntake() error {
	var joined error
	r.logger.Info("shutting down", "queued", len(r.ingestCh))

	httpCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(httpCtx); err != nil {
		joined = errors.Join(joined, fmt.Errorf("http shutdown: %w", err))
	}

	r.mu.Lock()
	close(r.ingestCh)
	r.ingestCh = nil
	r.mu.Unlock()
	return joined
}

func (r *Runtime) closeLog() error {
	var joined error
	cpCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.dbm.Checkpoint(cpCtx); err != nil {
		r.logger.Warn("WAL checkpoint failed", "error", err)
		joined = errors.Join(joined, fmt.Errorf("wal checkpoint: %w", err))
	}
	if err := r.dbm.Close(); err != nil {
		joined = errors.Join(joined, fmt.Errorf("db close: %w", err))
	}

	stats := r.worker.Stats()
	r.logger.Info("shutdown complete",
		"events_received", r.eventsReceived.Load(),
		"events_delivered", stats.EventsDelivered,
		"uptime", time.Since(r.startedAt).String(),
	)
	return joined
}

func (r *Runtime) maintain(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	retention := time.Duration(r.cfg.RetentionDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			deleted, err := r.dbm.CleanupOlderThan(opCtx, retention, time.Now())
			if err != nil {
				r.logger.Warn("cleanup failed", "error", err)
			} else if deleted > 0 {
				r.logger.Info("delivery log trimmed", "rows", deleted)
			}
			if _, err := r.dbm.CheckpointIfWALExceeds(opCtx, walRestartThreshold); err != nil {
				r.logger.Warn("wal checkpoint loop failed", "error", err)
			}
			cancel()
		}
	}
}
