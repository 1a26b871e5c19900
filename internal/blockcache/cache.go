// Package blockcache provides the bounded block-number → timestamp cache
// used to stamp every canonical event with its block's wall-clock time.
package blockcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/curvewatch/curvewatch/internal/backoff"
)

// ErrBlockUnavailable is returned when every fetch attempt for a missing
// block fails. Callers substitute the current wall-clock time.
var ErrBlockUnavailable = errors.New("block metadata unavailable")

// TimeSource fetches a block's timestamp in milliseconds since epoch.
type TimeSource interface {
	BlockTimestamp(ctx context.Context, block uint64) (int64, error)
}

const (
	// DefaultCapacity bounds the cache size.
	DefaultCapacity = 100

	// DefaultMaxRetries bounds fetch attempts per miss.
	DefaultMaxRetries = 3
)

// Config tunes a Cache. Zero values fall back to the defaults.
type Config struct {
	Capacity   int
	MaxRetries int
	Retry      backoff.Policy
	Logger     *slog.Logger
}

// Cache is a bounded block timestamp cache with retrying fetch-on-miss.
// Entries are immutable once inserted; when capacity is exceeded the entry
// with the smallest block number is evicted. With monotonically increasing
// block numbers that approximates age-based eviction.
type Cache struct {
	source  TimeSource
	policy  backoff.Policy
	retries int
	cap     int
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[uint64]int64
}

// New creates a Cache over the given timestamp source.
func New(source TimeSource, cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retry == (backoff.Policy{}) {
		cfg.Retry = backoff.Policy{Base: time.Second, Max: 5 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache{
		source:  source,
		policy:  cfg.Retry,
		retries: cfg.MaxRetries,
		cap:     cfg.Capacity,
		logger:  cfg.Logger.With("component", "block-cache"),
	}
}

// GetOrFetch returns the cached timestamp for block, fetching it from the
// source on a miss with up to MaxRetries attempts. All attempts failing
// yields ErrBlockUnavailable. Concurrent misses for the same block each
// drive their own fetch loop; fetches and inserts are idempotent so this
// costs duplicate work, never correctness.
func (c *Cache) GetOrFetch(ctx context.Context, block uint64) (int64, error) {
	c.mu.Lock()
	if ts, ok := c.entries[block]; ok {
		c.mu.Unlock()
		return ts, nil
	}
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		ts, err := c.source.BlockTimestamp(ctx, block)
		if err == nil {
			c.insert(block, ts)
			return ts, nil
		}
		lastErr = err

		c.logger.Warn("block timestamp fetch failed",
			"block", block,
			"attempt", attempt,
			"error", err,
		)

		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(c.policy.Delay(attempt)):
		}
	}

	return 0, fmt.Errorf("%w: block %d: %v", ErrBlockUnavailable, block, lastErr)
}

// insert adds the entry if absent and applies the capacity bound. The check
// and the insert share one critical section so two racing fetchers cannot
// both see the cache under capacity.
func (c *Cache) insert(block uint64, ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[uint64]int64, c.cap)
	}
	if _, ok := c.entries[block]; ok {
		return
	}
	c.entries[block] = ts

	for len(c.entries) > c.cap {
		var smallest uint64
		first := true
		for k := range c.entries {
			if first || k < smallest {
				smallest = k
				first = false
			}
		}
		delete(c.entries, smallest)
	}
}

// Clear removes every entry. Used at shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether a block is cached without triggering a fetch.
func (c *Cache) Contains(block uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[block]
	return ok
}

// Prime inserts a known timestamp directly, bypassing the source. Existing
// entries are never overwritten.
func (c *Cache) Prime(block uint64, ts int64) {
	c.insert(block, ts)
}
