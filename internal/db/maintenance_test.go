package db

import (
	"context"
	"testing"
	"time"
)

func TestCleanupOlderThan(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-48 * time.Hour).UnixMilli()

	seed := []Delivery{
		{DeliveryID: "old", CreatedAt: old, Path: "/v1/batch", Status: DeliveryOK},
		{DeliveryID: "new", CreatedAt: now.UnixMilli(), Path: "/v1/batch", Status: DeliveryOK},
	}
	for _, d := range seed {
		if err := dbm.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("seed delivery: %v", err)
		}
	}
	if err := dbm.RecordRejection(ctx, Rejection{CreatedAt: old, EventType: "page", Reason: "missing_field"}); err != nil {
		t.Fatalf("seed rejection: %v", err)
	}

	deleted, err := dbm.CleanupOlderThan(ctx, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	recent, err := dbm.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("recent deliveries: %v", err)
	}
	if len(recent) != 1 || recent[0].DeliveryID != "new" {
		t.Fatalf("unexpected remaining deliveries: %+v", recent)
	}
}

func TestCheckpointIfWALExceeds(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	ctx := context.Background()

	// Generate write activity so the WAL file exists.
	for i := 0; i < 10; i++ {
		if err := dbm.RecordDelivery(ctx, Delivery{
			DeliveryID: "d-" + string(rune('a'+i)),
			CreatedAt:  time.Now().UnixMilli(),
			Path:       "/v1/batch",
			Status:     DeliveryOK,
		}); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}

	did, err := dbm.CheckpointIfWALExceeds(ctx, 0)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if !did {
		t.Fatalf("expected checkpoint to run when threshold is 0")
	}
}
