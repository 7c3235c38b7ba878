package quota

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/errs"
)

func newTestTracker(t *testing.T, ceiling int) *Tracker {
	t.Helper()
	d, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return New(d, ceiling)
}

func TestConsumeUpToCeiling(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, 5)

	for i := 0; i < 5; i++ {
		if err := tr.Consume(ctx, "203.0.113.10"); err != nil {
			t.Fatalf("Consume #%d: %v", i+1, err)
		}
	}
	if err := tr.Consume(ctx, "203.0.113.10"); !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("6th consume err = %v, want ErrQuotaExceeded", err)
	}

	// A different IP is unaffected.
	if err := tr.Consume(ctx, "203.0.113.11"); err != nil {
		t.Fatalf("other ip: %v", err)
	}
}

func TestRemaining(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, 5)

	left, err := tr.Remaining(ctx, "203.0.113.12")
	if err != nil || left != 5 {
		t.Fatalf("fresh Remaining = %d, %v", left, err)
	}
	for i := 0; i < 3; i++ {
		if err := tr.Consume(ctx, "203.0.113.12"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	left, err = tr.Remaining(ctx, "203.0.113.12")
	if err != nil || left != 2 {
		t.Fatalf("Remaining = %d, %v", left, err)
	}
}

func TestConsumeResetsNextDay(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, 2)

	for i := 0; i < 2; i++ {
		if err := tr.Consume(ctx, "203.0.113.13"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	if err := tr.Consume(ctx, "203.0.113.13"); !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	tr.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }
	if err := tr.Consume(ctx, "203.0.113.13"); err != nil {
		t.Fatalf("next-day consume: %v", err)
	}
	left, _ := tr.Remaining(ctx, "203.0.113.13")
	if left != 1 {
		t.Fatalf("next-day Remaining = %d, want 1", left)
	}
}
