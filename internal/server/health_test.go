package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kon-rad/rudder-analytics-go/internal/db"
)

type staticSnapshot struct {
	status string
}

func (s staticSnapshot) Snapshot() RuntimeSnapshot {
	return RuntimeSnapshot{
		QueueDepth:      3,
		EventsReceived:  10,
		EventsDelivered: 7,
		LastFlushStatus: s.status,
	}
}

func openTestDB(t *testing.T) *db.Manager {
	t.Helper()
	dbm, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = dbm.Close() })
	return dbm
}

func TestHealthAlwaysReturnsContract(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	handler := NewHealthHandler(dbm, time.Now().Add(-5*time.Second), "test-version", staticSnapshot{status: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode error = %v", err)
	}

	required := []string{
		"status",
		"uptime_seconds",
		"version",
		"db_status",
		"db_size_bytes",
		"wal_size_bytes",
		"queue_depth",
		"events_received",
		"events_dropped",
		"events_rejected",
		"events_delivered",
		"batches_sent",
		"batches_failed",
		"last_flush_status",
		"last_delivery_at",
		"logged_failures",
	}
	for _, key := range required {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing health field %q", key)
		}
	}
	if body["status"] != "ok" || body["queue_depth"] != float64(3) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHealthDegradedAfterFailedFlush(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	handler := NewHealthHandler(dbm, time.Now(), "test-version", staticSnapshot{status: "error"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode error = %v", err)
	}
	if resp.Status != "degraded" || len(resp.Warnings) != 1 || resp.Warnings[0] != "last_flush_failed" {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestHealthReportsLastDelivery(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	if err := dbm.RecordDelivery(context.Background(), db.Delivery{
		DeliveryID: "d-1",
		CreatedAt:  1700000000000,
		Path:       "/v1/batch",
		Status:     db.DeliveryOK,
		StatusCode: 200,
		Events:     4,
		Bytes:      512,
		Attempts:   1,
	}); err != nil {
		t.Fatalf("RecordDelivery() error = %v", err)
	}
	handler := NewHealthHandler(dbm, time.Now(), "test-version", staticSnapshot{status: "ok"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode error = %v", err)
	}
	if resp.LastDeliveryAt == nil || *resp.LastDeliveryAt != 1700000000000 {
		t.Fatalf("last_delivery_at = %v, want 1700000000000", resp.LastDeliveryAt)
	}
}
