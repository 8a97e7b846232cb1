package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/GoAutonity/dripgate/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	dayKeyPrefix      = "dripgate:ratelimit"
	cooldownKeyPrefix = "dripgate:cooldown"
	// Day counters expire after a full day; the UTC day key already
	// scopes them, the TTL just reclaims memory.
	dayKeyTTL = 24 * time.Hour
)

// RedisLimiterStore is the durable rate-limit backend. Counters are
// namespaced per user and UTC day; cooldown keys self-expire after the
// cooldown duration.
type RedisLimiterStore struct {
	client *redis.Client
}

func NewRedisLimiterStore(cfg config.RedisConfig) (*RedisLimiterStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLimiterStore{client: rdb}, nil
}

func (s *RedisLimiterStore) DailyCount(ctx context.Context, user, day string) (int, error) {
	val, err := s.client.Get(ctx, dayKey(user, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (s *RedisLimiterStore) LastRequest(ctx context.Context, user string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, cooldownKey(user)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt cooldown stamp for %s: %w", user, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// Record pipelines the counter bump, its expiry and the cooldown stamp so
// concurrent requests from one user cannot both observe an under-limit
// count.
func (s *RedisLimiterStore) Record(ctx context.Context, user, day string, now time.Time, cooldown time.Duration) error {
	key := dayKey(user, day)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dayKeyTTL)
	if cooldown > 0 {
		pipe.Set(ctx, cooldownKey(user), strconv.FormatInt(now.Unix(), 10), cooldown)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisLimiterStore) Reset(ctx context.Context, user, day string) error {
	return s.client.Del(ctx, dayKey(user, day), cooldownKey(user)).Err()
}

func dayKey(user, day string) string {
	return fmt.Sprintf("%s:%s:%s", dayKeyPrefix, user, day)
}

func cooldownKey(user string) string {
	return fmt.Sprintf("%s:%s", cooldownKeyPrefix, user)
}
