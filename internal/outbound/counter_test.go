package outbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCounter(t *testing.T, limit int) *DailyCounter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDailyCounter(rdb, limit)
}

func TestCounterReserveUpToLimit(t *testing.T) {
	counter := newTestCounter(t, 2)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if err := counter.Reserve(ctx, now); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := counter.Reserve(ctx, now); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if err := counter.Reserve(ctx, now); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third reserve = %v, want ErrRateLimited", err)
	}

	used, err := counter.Used(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if used != 2 {
		t.Errorf("Used() = %d, want 2 (rejected reserve must not consume budget)", used)
	}
}

func TestCounterReleaseReturnsBudget(t *testing.T) {
	counter := newTestCounter(t, 1)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if err := counter.Reserve(ctx, now); err != nil {
		t.Fatal(err)
	}
	if err := counter.Release(ctx, now); err != nil {
		t.Fatal(err)
	}
	// A failed send gives its slot back.
	if err := counter.Reserve(ctx, now); err != nil {
		t.Fatalf("reserve after release = %v, want nil", err)
	}
}

func TestCounterScopedToCalendarDay(t *testing.T) {
	counter := newTestCounter(t, 1)
	ctx := context.Background()
	today := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	tomorrow := today.Add(2 * time.Hour)

	if err := counter.Reserve(ctx, today); err != nil {
		t.Fatal(err)
	}
	if err := counter.Reserve(ctx, today); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("same-day reserve = %v, want ErrRateLimited", err)
	}
	// Day rollover resets the budget.
	if err := counter.Reserve(ctx, tomorrow); err != nil {
		t.Fatalf("next-day reserve = %v, want nil", err)
	}
}
