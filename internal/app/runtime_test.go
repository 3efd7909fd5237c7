package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kon-rad/rudder-analytics-go/internal/config"
	"github.com/kon-rad/rudder-analytics-go/internal/db"
	"github.com/kon-rad/rudder-analytics-go/internal/logging"
	"github.com/kon-rad/rudder-analytics-go/message"
)

type dataPlane struct {
	mu      sync.Mutex
	batches []map[string]any
}

func (d *dataPlane) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	d.batches = append(d.batches, body)
	d.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func testConfig(t *testing.T, dataPlaneURL string) *config.Config {
	t.Helper()
	return &config.Config{
		WriteKey:        "write-key",
		DataPlaneURL:    dataPlaneURL,
		Port:            "0",
		DBPath:          filepath.Join(t.TempDir(), "relay.db"),
		FlushInterval:   time.Hour,
		FlushMaxEvents:  100,
		MaxRetries:      1,
		RequestTimeout:  5 * time.Second,
		RetentionDays:   7,
		CleanupInterval: time.Hour,
	}
}

func TestEnqueueBeforeRunIsDropped(t *testing.T) {
	t.Parallel()

	r := New(testConfig(t, "http://127.0.0.1:1"), logging.Discard(), "test")
	if r.Enqueue(message.Track{UserID: "u", Event: "e"}) {
		t.Fatalf("Enqueue() before Run should report false")
	}
	if snap := r.Snapshot(); snap.EventsDropped != 1 || snap.QueueDepth != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestRunRelaysAndFlushesOnShutdown(t *testing.T) {
	t.Parallel()

	plane := &dataPlane{}
	upstream := httptest.NewServer(plane)
	defer upstream.Close()

	cfg := testConfig(t, upstream.URL)
	r := New(cfg, logging.Discard(), "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	addr, err := r.Addr(waitCtx)
	if err != nil {
		t.Fatalf("relay did not start: %v", err)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr %q: %v", addr, err)
	}
	base := "http://127.0.0.1:" + port

	for _, body := range []string{
		`{"userId":"u-1","event":"Signed Up"}`,
		`{"userId":"u-1","event":"Upgraded"}`,
	} {
		resp, err := http.Post(base+"/v1/track", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("post status = %d, want 202", resp.StatusCode)
		}
	}

	resp, err := http.Post(base+"/v1/track", "application/json", bytes.NewBufferString(`{"event":"anon"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid post status = %d, want 400", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}

	plane.mu.Lock()
	defer plane.mu.Unlock()
	if len(plane.batches) != 1 {
		t.Fatalf("data plane got %d batches, want 1", len(plane.batches))
	}
	members, _ := plane.batches[0]["batch"].([]any)
	if len(members) != 2 || plane.batches[0]["type"] != "batch" {
		t.Fatalf("unexpected batch: %v", plane.batches[0])
	}

	dbm, err := db.Open(context.Background(), cfg.DBPath)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer func() { _ = dbm.Close() }()
	delivered, err := dbm.EventsDelivered(context.Background())
	if err != nil {
		t.Fatalf("EventsDelivered() error = %v", err)
	}
	if delivered != 2 {
		t.Fatalf("logged deliveries = %d events, want 2", delivered)
	}
}
