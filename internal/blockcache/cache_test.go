package blockcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curvewatch/curvewatch/internal/backoff"
)

type fakeSource struct {
	calls atomic.Int64

	// fail counts down: every call fails while > 0.
	fail atomic.Int64

	ts int64
}

func (f *fakeSource) BlockTimestamp(ctx context.Context, block uint64) (int64, error) {
	f.calls.Add(1)
	if f.fail.Add(-1) >= 0 {
		return 0, errors.New("rpc unavailable")
	}
	return f.ts, nil
}

func fastRetry() backoff.Policy {
	return backoff.Policy{Base: time.Millisecond, Max: time.Millisecond}
}

func TestGetOrFetch_HitSkipsFetch(t *testing.T) {
	src := &fakeSource{ts: 1700000000000}
	cache := New(src, Config{Retry: fastRetry()})
	cache.Prime(42, 1700000000000)

	ts, err := cache.GetOrFetch(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 1700000000000 {
		t.Errorf("ts = %d, want 1700000000000", ts)
	}
	if got := src.calls.Load(); got != 0 {
		t.Errorf("fetch count = %d, want 0 for a cache hit", got)
	}
}

func TestGetOrFetch_MissFetchesAndCaches(t *testing.T) {
	src := &fakeSource{ts: 1700000000000}
	cache := New(src, Config{Retry: fastRetry()})

	ts, err := cache.GetOrFetch(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 1700000000000 {
		t.Errorf("ts = %d", ts)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}

	// Second lookup must be a hit.
	if _, err := cache.GetOrFetch(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetch count = %d after hit, want 1", got)
	}
}

func TestGetOrFetch_RetriesThenSucceeds(t *testing.T) {
	src := &fakeSource{ts: 55}
	src.fail.Store(2)
	cache := New(src, Config{MaxRetries: 3, Retry: fastRetry()})

	ts, err := cache.GetOrFetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 55 {
		t.Errorf("ts = %d, want 55", ts)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("fetch count = %d, want 3", got)
	}
}

func TestGetOrFetch_ExhaustionReturnsUnavailable(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(100)
	cache := New(src, Config{MaxRetries: 3, Retry: fastRetry()})

	_, err := cache.GetOrFetch(context.Background(), 1)
	if !errors.Is(err, ErrBlockUnavailable) {
		t.Fatalf("err = %v, want ErrBlockUnavailable", err)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("fetch count = %d, want exactly MaxRetries", got)
	}
	if cache.Len() != 0 {
		t.Errorf("failed fetch must not insert an entry")
	}
}

func TestEviction_SmallestKeyFirst(t *testing.T) {
	const capacity = 5
	cache := New(&fakeSource{}, Config{Capacity: capacity, Retry: fastRetry()})

	const total = 12
	for b := uint64(1); b <= total; b++ {
		cache.Prime(b, int64(b)*1000)
	}

	if cache.Len() != capacity {
		t.Fatalf("len = %d, want %d", cache.Len(), capacity)
	}
	// The total-capacity earliest blocks must be gone, the rest present.
	for b := uint64(1); b <= total-capacity; b++ {
		if cache.Contains(b) {
			t.Errorf("block %d should have been evicted", b)
		}
	}
	for b := uint64(total - capacity + 1); b <= total; b++ {
		if !cache.Contains(b) {
			t.Errorf("block %d should be retained", b)
		}
	}
}

func TestInsert_IfAbsentOnly(t *testing.T) {
	cache := New(&fakeSource{}, Config{Retry: fastRetry()})
	cache.Prime(9, 100)
	cache.Prime(9, 200)

	ts, err := cache.GetOrFetch(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 100 {
		t.Errorf("ts = %d, entries must be immutable once inserted", ts)
	}
}

func TestClear(t *testing.T) {
	cache := New(&fakeSource{}, Config{Retry: fastRetry()})
	cache.Prime(1, 1)
	cache.Prime(2, 2)
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("len = %d after clear", cache.Len())
	}
}

func TestGetOrFetch_ContextCancelledDuringBackoff(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(100)
	cache := New(src, Config{
		MaxRetries: 3,
		Retry:      backoff.Policy{Base: time.Minute, Max: time.Minute},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := cache.GetOrFetch(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
