package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kon-rad/rudder-analytics-go/internal/db"
)

type RuntimeSnapshot struct {
	QueueDepth      int64
	EventsReceived  int64
	EventsDropped   int64
	EventsRejected  int64
	BatchesSent     int64
	BatchesFailed   int64
	EventsDelivered int64
	LastFlushStatus string
}

type SnapshotProvider interface {
	Snapshot() RuntimeSnapshot
}

type HealthResponse struct {
	Status          string   `json:"status"`
	UptimeSeconds   int64    `json:"uptime_seconds"`
	Version         string   `json:"version"`
	DBStatus        string   `json:"db_status"`
	DBSizeBytes     int64    `json:"db_size_bytes"`
	WALSizeBytes    int64    `json:"wal_size_bytes"`
	QueueDepth      int64    `json:"queue_depth"`
	EventsReceived  int64    `json:"events_received"`
	EventsDropped   int64    `json:"events_dropped"`
	EventsRejected  int64    `json:"events_rejected"`
	EventsDelivered int64    `json:"events_delivered"`
	BatchesSent     int64    `json:"batches_sent"`
	BatchesFailed   int64    `json:"batches_failed"`
	LastFlushStatus string   `json:"last_flush_status"`
	LastDeliveryAt  *int64   `json:"last_delivery_at"`
	LoggedFailures  int64    `json:"logged_failures"`
	GeneratedAt     string   `json:"generated_at"`
	Warnings        []string `json:"warnings,omitempty"`
}

type HealthHandler struct {
	dbm         *db.Manager
	startTime   time.Time
	version     string
	snapshotter SnapshotProvider
}

func NewHealthHandler(dbm *db.Manager, start time.Time, version string, snapshotter SnapshotProvider) *HealthHandler {
	return &HealthHandler{
		dbm:         dbm,
		startTime:   start,
		version:     version,
		snapshotter: snapshotter,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.snapshotter.Snapshot()
	dbStats := h.dbm.Stats(r.Context())

	resp := HealthResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		Version:         h.version,
		DBStatus:        dbStats.Status,
		DBSizeBytes:     dbStats.SizeBytes,
		WALSizeBytes:    dbStats.WALBytes,
		QueueDepth:      snapshot.QueueDepth,
		EventsReceived:  snapshot.EventsReceived,
		EventsDropped:   snapshot.EventsDropped,
		EventsRejected:  snapshot.EventsRejected,
		EventsDelivered: snapshot.EventsDelivered,
		BatchesSent:     snapshot.BatchesSent,
		BatchesFailed:   snapshot.BatchesFailed,
		LastFlushStatus: snapshot.LastFlushStatus,
		LastDeliveryAt:  dbStats.LastFlushAt,
		LoggedFailures:  dbStats.Failed,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if resp.DBStatus != "ok" {
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "delivery_log_unavailable")
	}
	if resp.LastFlushStatus == "error" {
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "last_flush_failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
