// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Persistence keys for the rolling token counter.
const (
	KeyTokenUsage = "ai_chat_token_usage"
	KeyLastReset  = "ai_chat_last_token_reset"
)

// =============================================================================
// USAGE TRACKER
// =============================================================================

// UsageTracker maintains a token counter that resets on the first read in a
// new calendar month. All methods are safe for concurrent use.
type UsageTracker struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewUsageTracker creates a tracker over store.
func NewUsageTracker(store Store) *UsageTracker {
	return &UsageTracker{store: store, now: time.Now}
}

// WithClock replaces the tracker's clock. Used by tests.
func (u *UsageTracker) WithClock(now func() time.Time) *UsageTracker {
	u.now = now
	return u
}

// Store returns the backing store.
func (u *UsageTracker) Store() Store {
	return u.store
}

// Get returns the current count. Missing keys read as 0. A last-reset
// timestamp from an earlier month triggers a reset first. Store failures
// are logged and read as 0.
func (u *UsageTracker) Get(ctx context.Context) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	n, err := u.load(ctx)
	if err != nil {
		log.Printf("USAGE_READ_FAILED | error=%v", err)
		return 0
	}
	return n
}

// Load is Get with the store error returned instead of logged.
func (u *UsageTracker) Load(ctx context.Context) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.load(ctx)
}

func (u *UsageTracker) load(ctx context.Context) (int64, error) {
	stored, okCount, err := u.store.Get(ctx, KeyTokenUsage)
	if err != nil {
		return 0, err
	}
	lastReset, okReset, err := u.store.Get(ctx, KeyLastReset)
	if err != nil {
		return 0, err
	}
	if !okCount || !okReset || stored == "" || lastReset == "" {
		return 0, nil
	}

	resetAt, err := time.Parse(time.RFC3339Nano, lastReset)
	if err != nil || u.newMonth(resetAt) {
		if err := u.write(ctx, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(stored), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// newMonth reports whether t falls in a different calendar month or year
// than now, compared in local time.
func (u *UsageTracker) newMonth(t time.Time) bool {
	now := u.now()
	t = t.In(now.Location())
	return now.Month() != t.Month() || now.Year() != t.Year()
}

// Save stores count and stamps the reset time with now.
func (u *UsageTracker) Save(ctx context.Context, count int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.write(ctx, count)
}

// Add increases the counter by n and returns the new total.
func (u *UsageTracker) Add(ctx context.Context, n int64) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	current, err := u.load(ctx)
	if err != nil {
		log.Printf("USAGE_READ_FAILED | error=%v", err)
		current = 0
	}
	total := current + n
	if err := u.write(ctx, total); err != nil {
		return total, err
	}
	tokensEstimated.Add(float64(n))
	return total, nil
}

// Reset sets the counter to 0.
func (u *UsageTracker) Reset(ctx context.Context) error {
	return u.Save(ctx, 0)
}

// SetManual overrides the counter with a user-supplied value.
func (u *UsageTracker) SetManual(ctx context.Context, count int64) (int64, error) {
	if count < 0 {
		return 0, fmt.Errorf("token count must be non-negative, got %d", count)
	}
	return count, u.Save(ctx, count)
}

// ResetDate returns the first day of the month after the last reset.
// The boolean is false when no reset has been recorded.
func (u *UsageTracker) ResetDate(ctx context.Context) (time.Time, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	raw, ok, err := u.store.Get(ctx, KeyLastReset)
	if err != nil || !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	t = t.In(u.now().Location())
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()), true
}

func (u *UsageTracker) write(ctx context.Context, count int64) error {
	if err := u.store.Set(ctx, KeyTokenUsage, strconv.FormatInt(count, 10)); err != nil {
		return fmt.Errorf("save token usage: %w", err)
	}
	stamp := u.now().UTC().Format(time.RFC3339Nano)
	if err := u.store.Set(ctx, KeyLastReset, stamp); err != nil {
		return fmt.Errorf("save reset timestamp: %w", err)
	}
	return nil
}

// =============================================================================
// STORE FACTORY
// =============================================================================

// StoreOptions selects and configures a usage store backend.
type StoreOptions struct {
	// Backend is one of "file", "sqlite", "redis" or "memory"
	Backend string

	// Path is the file or database path for file and sqlite backends
	Path string

	RedisURL    string
	RedisPrefix string
}

// OpenStore creates the configured store backend.
func OpenStore(ctx context.Context, opts StoreOptions) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "file", "json":
		return NewFileStore(opts.Path)
	case "sqlite":
		return NewSQLiteStore(opts.Path)
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("usage backend redis requires usage.redis_url")
		}
		return NewRedisStore(ctx, opts.RedisURL, opts.RedisPrefix)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown usage backend %q", opts.Backend)
	}
}
