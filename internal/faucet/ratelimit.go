package faucet

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GoAutonity/dripgate/internal/pkg/logger"
)

// dayKeyFormat shapes the UTC day key so day boundaries are identical
// across backends and caller timezones.
const dayKeyFormat = "2006-01-02"

// RateLimitResult reports one limit check. Remaining is a post-request
// projection when Allowed: it already anticipates this request being
// recorded.
type RateLimitResult struct {
	Allowed         bool
	Remaining       int
	CooldownSeconds int // 0 when no cooldown applies
	Reason          string
}

// LimiterStore is the storage contract behind the rate limiter. Record
// must atomically bump the day counter and refresh the cooldown stamp.
type LimiterStore interface {
	DailyCount(ctx context.Context, user, day string) (int, error)
	LastRequest(ctx context.Context, user string) (time.Time, bool, error)
	Record(ctx context.Context, user, day string, now time.Time, cooldown time.Duration) error
	Reset(ctx context.Context, user, day string) error
}

// RateLimiter throttles faucet usage per user: a cooldown between
// requests and a daily cap, both evaluated on every check.
type RateLimiter struct {
	dailyLimit int
	cooldown   time.Duration
	store      LimiterStore
	now        func() time.Time
}

func NewRateLimiter(dailyLimit int, cooldown time.Duration, store LimiterStore) *RateLimiter {
	return &RateLimiter{
		dailyLimit: dailyLimit,
		cooldown:   cooldown,
		store:      store,
		now:        time.Now,
	}
}

// CheckLimit evaluates both gates without recording anything. Cooldown is
// checked first; a denied result carries a display-ready reason.
func (r *RateLimiter) CheckLimit(ctx context.Context, user string) (RateLimitResult, error) {
	now := r.now().UTC()
	day := now.Format(dayKeyFormat)

	last, exists, err := r.store.LastRequest(ctx, user)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit check: %w", err)
	}
	if exists {
		elapsed := now.Sub(last)
		if elapsed < r.cooldown {
			cooldownLeft := int(math.Ceil((r.cooldown - elapsed).Seconds()))
			count, err := r.store.DailyCount(ctx, user, day)
			if err != nil {
				return RateLimitResult{}, fmt.Errorf("rate limit check: %w", err)
			}
			remaining := r.dailyLimit - count
			if remaining < 0 {
				remaining = 0
			}
			return RateLimitResult{
				Remaining:       remaining,
				CooldownSeconds: cooldownLeft,
				Reason:          formatCooldown(cooldownLeft),
			}, nil
		}
	}

	count, err := r.store.DailyCount(ctx, user, day)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit check: %w", err)
	}
	if count >= r.dailyLimit {
		return RateLimitResult{
			Remaining: 0,
			Reason:    "Daily request limit reached",
		}, nil
	}

	return RateLimitResult{
		Allowed:   true,
		Remaining: r.dailyLimit - count - 1,
	}, nil
}

// RecordRequest registers a successful request: bumps today's counter and
// refreshes the cooldown stamp.
func (r *RateLimiter) RecordRequest(ctx context.Context, user string) error {
	now := r.now().UTC()
	if err := r.store.Record(ctx, user, now.Format(dayKeyFormat), now, r.cooldown); err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	logger.Debug("Rate limit recorded", "user_id", user)
	return nil
}

// GetRemaining reports how many requests the user can still make today.
func (r *RateLimiter) GetRemaining(ctx context.Context, user string) (int, error) {
	result, err := r.CheckLimit(ctx, user)
	if err != nil {
		return 0, err
	}
	// An allowed result already subtracts the upcoming request; undo that
	// to report current standing.
	if result.Allowed {
		return result.Remaining + 1, nil
	}
	return result.Remaining, nil
}

// GetCooldown reports the time until the next request is allowed, zero
// when no cooldown is active.
func (r *RateLimiter) GetCooldown(ctx context.Context, user string) (time.Duration, error) {
	result, err := r.CheckLimit(ctx, user)
	if err != nil {
		return 0, err
	}
	return time.Duration(result.CooldownSeconds) * time.Second, nil
}

// ResetUser clears a user's counters. Administrative escape hatch.
func (r *RateLimiter) ResetUser(ctx context.Context, user string) error {
	day := r.now().UTC().Format(dayKeyFormat)
	if err := r.store.Reset(ctx, user, day); err != nil {
		return fmt.Errorf("reset user: %w", err)
	}
	logger.Info("Rate limit reset for user", "user_id", user)
	return nil
}

func formatCooldown(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("Please wait %d seconds before next request", seconds)
	}
	minutes := seconds / 60
	rest := seconds % 60
	if rest > 0 {
		return fmt.Sprintf("Please wait %dm %ds before next request", minutes, rest)
	}
	return fmt.Sprintf("Please wait %d minutes before next request", minutes)
}

// MemoryLimiterStore is the in-process fallback backend. Entries older
// than 7 days are pruned on each write.
type MemoryLimiterStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
}

func NewMemoryLimiterStore() *MemoryLimiterStore {
	return &MemoryLimiterStore{requests: make(map[string][]time.Time)}
}

func (s *MemoryLimiterStore) DailyCount(ctx context.Context, user, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ts := range s.requests[user] {
		if ts.UTC().Format(dayKeyFormat) == day {
			count++
		}
	}
	return count, nil
}

func (s *MemoryLimiterStore) LastRequest(ctx context.Context, user string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.requests[user]
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	last := entries[0]
	for _, ts := range entries[1:] {
		if ts.After(last) {
			last = ts
		}
	}
	return last, true, nil
}

func (s *MemoryLimiterStore) Record(ctx context.Context, user, day string, now time.Time, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-7 * 24 * time.Hour)
	kept := make([]time.Time, 0, len(s.requests[user])+1)
	for _, ts := range s.requests[user] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.requests[user] = append(kept, now)
	return nil
}

func (s *MemoryLimiterStore) Reset(ctx context.Context, user, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, user)
	return nil
}
