// Package ratelimit enforces per-key request quotas over fixed windows.
// Two windows apply independently: requests per minute and requests per
// day. A zero limit disables the corresponding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour
)

// Decision is the outcome of a single quota check. When Allowed is false,
// RetryAfter holds the time until the exhausted window rolls over.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed. The
// check counts the request: a denied request still consumed its slot.
type Limiter interface {
	Allow(ctx context.Context, key string, perMinute, perDay int) (*Decision, error)
}

// RedisLimiter counts requests in Redis so limits hold across replicas.
// Each window is an INCR counter keyed by the window's ordinal, expired
// after the window length.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, perMinute, perDay int) (*Decision, error) {
	now := l.now()

	if perMinute > 0 {
		d, err := l.check(ctx, windowKey(key, "minute", now, minuteWindow), perMinute, minuteWindow, now)
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			return d, nil
		}
	}
	if perDay > 0 {
		d, err := l.check(ctx, windowKey(key, "day", now, dayWindow), perDay, dayWindow, now)
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			return d, nil
		}
	}
	return &Decision{Allowed: true, Limit: perMinute, Remaining: perMinute}, nil
}

func (l *RedisLimiter) check(ctx context.Context, redisKey string, limit int, window time.Duration, now time.Time) (*Decision, error) {
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	count := int(incr.Val())
	d := &Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
	}
	if !d.Allowed {
		d.RetryAfter = untilRollover(now, window)
	}
	return d, nil
}

// windowKey names one fixed window: ratelimit:<key>:<unit>:<ordinal>.
func windowKey(key, unit string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", key, unit, now.Unix()/int64(window.Seconds()))
}

// untilRollover is how long until the current fixed window ends.
func untilRollover(now time.Time, window time.Duration) time.Duration {
	secs := int64(window.Seconds())
	elapsed := now.Unix() % secs
	return time.Duration(secs-elapsed) * time.Second
}
