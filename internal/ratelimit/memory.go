package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps window counters in process memory. It is the
// default for single-node deployments where no Redis address is
// configured; counts reset on restart and are not shared across replicas.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

type windowCounter struct {
	ordinal int64
	count   int
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, perMinute, perDay int) (*Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	if perMinute > 0 {
		if d := l.check(key+":minute", perMinute, minuteWindow, now); !d.Allowed {
			return d, nil
		}
	}
	if perDay > 0 {
		if d := l.check(key+":day", perDay, dayWindow, now); !d.Allowed {
			return d, nil
		}
	}
	return &Decision{Allowed: true, Limit: perMinute, Remaining: perMinute}, nil
}

func (l *MemoryLimiter) check(counterKey string, limit int, window time.Duration, now time.Time) *Decision {
	ordinal := now.Unix() / int64(window.Seconds())
	c, ok := l.counters[counterKey]
	if !ok || c.ordinal != ordinal {
		c = &windowCounter{ordinal: ordinal}
		l.counters[counterKey] = c
	}
	c.count++

	d := &Decision{
		Allowed:   c.count <= limit,
		Limit:     limit,
		Remaining: max(limit-c.count, 0),
	}
	if !d.Allowed {
		d.RetryAfter = untilRollover(now, window)
	}
	return d
}
