package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrStoreUnavailable reports that the counter backend could not be reached.
// Callers decide whether to fail open or closed; the limiter never guesses.
var ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

// Result is one admission decision. Remaining and RetryAfter describe the
// window the request landed in, suitable for RateLimit-* response headers.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter answers fixed-window admission questions for (policy, key) pairs.
type Limiter interface {
	Allow(ctx context.Context, p Policy, key string) (Result, error)
}

// RedisLimiter counts in Redis so the budget holds across replicas. Each
// (policy, key) pair gets one counter; the first hit in a window sets the
// expiry and later hits ride on it.
type RedisLimiter struct {
	rdb redis.Cmdable
}

// NewRedisLimiter wraps an existing Redis client.
func NewRedisLimiter(rdb redis.Cmdable) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	return &RedisLimiter{rdb: rdb}, nil
}

func counterKey(p Policy, key string) string {
	return fmt.Sprintf("rl:%s:%s", p.Name, key)
}

// Allow increments the window counter and admits the request while the count
// stays within the budget. Backend failures return ErrStoreUnavailable with
// a zero Result.
func (l *RedisLimiter) Allow(ctx context.Context, p Policy, key string) (Result, error) {
	ck := counterKey(p, key)
	count, err := l.rdb.Incr(ctx, ck).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, ck, p.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	res := Result{Limit: p.Limit, Allowed: count <= p.Limit}
	if res.Allowed {
		res.Remaining = p.Limit - count
		return res, nil
	}
	ttl, err := l.rdb.TTL(ctx, ck).Result()
	if err != nil || ttl < 0 {
		// A counter without expiry (lost between INCR and EXPIRE) heals at
		// the policy window.
		ttl = p.Window
	}
	res.RetryAfter = ttl
	return res, nil
}

// LocalLimiter is the in-process fallback used when no Redis address is
// configured. Budgets are per replica, which is acceptable for single-node
// deployments and local development.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localWindow
	now      func() time.Time
}

type localWindow struct {
	lim   *rate.Limiter
	reset time.Time
}

// NewLocalLimiter constructs an in-process limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		limiters: map[string]*localWindow{},
		now:      time.Now,
	}
}

// Allow admits from a token bucket sized to the policy budget and refilled
// over the policy window. It approximates the fixed window closely enough
// for a single process and never returns an error.
func (l *LocalLimiter) Allow(_ context.Context, p Policy, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	ck := counterKey(p, key)
	w, ok := l.limiters[ck]
	if !ok || now.After(w.reset) {
		w = &localWindow{
			lim:   rate.NewLimiter(rate.Every(p.Window/time.Duration(p.Limit)), int(p.Limit)),
			reset: now.Add(p.Window),
		}
		l.limiters[ck] = w
	}
	res := Result{Limit: p.Limit, Allowed: w.lim.Allow()}
	res.Remaining = int64(w.lim.Tokens())
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = w.reset.Sub(now)
	}
	return res, nil
}
