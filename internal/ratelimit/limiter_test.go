package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l, err := NewRedisLimiter(rdb)
	if err != nil {
		t.Fatalf("NewRedisLimiter: %v", err)
	}
	return l, srv
}

func TestNewRedisLimiter(t *testing.T) {
	if _, err := NewRedisLimiter(nil); err == nil {
		t.Fatal("expected error for nil client")
	}

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l, err := NewRedisLimiter(rdb)
	if err != nil {
		t.Fatalf("NewRedisLimiter: %v", err)
	}
	var _ Limiter = l
}

func TestRedisLimiterEnforcesBudget(t *testing.T) {
	l, _ := newRedisLimiter(t)
	p := Policy{Name: "test", Limit: 3, Window: time.Minute}
	ctx := context.Background()

	for i := int64(1); i <= p.Limit; i++ {
		res, err := l.Allow(ctx, p, "client-a")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected within budget", i)
		}
		if res.Remaining != p.Limit-i {
			t.Fatalf("remaining = %d after %d requests, want %d", res.Remaining, i, p.Limit-i)
		}
	}

	res, err := l.Allow(ctx, p, "client-a")
	if err != nil {
		t.Fatalf("Allow over budget: %v", err)
	}
	if res.Allowed {
		t.Fatal("request over budget admitted")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > p.Window {
		t.Fatalf("RetryAfter = %v, want within (0, %v]", res.RetryAfter, p.Window)
	}
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newRedisLimiter(t)
	p := Policy{Name: "test", Limit: 1, Window: time.Minute}
	ctx := context.Background()

	if res, _ := l.Allow(ctx, p, "client-a"); !res.Allowed {
		t.Fatal("first request for client-a rejected")
	}
	if res, _ := l.Allow(ctx, p, "client-a"); res.Allowed {
		t.Fatal("second request for client-a admitted")
	}
	if res, _ := l.Allow(ctx, p, "client-b"); !res.Allowed {
		t.Fatal("client-b throttled by client-a's budget")
	}
}

func TestRedisLimiterPoliciesAreIndependent(t *testing.T) {
	l, _ := newRedisLimiter(t)
	ctx := context.Background()
	tight := Policy{Name: "tight", Limit: 1, Window: time.Minute}
	loose := Policy{Name: "loose", Limit: 10, Window: time.Minute}

	if res, _ := l.Allow(ctx, tight, "client-a"); !res.Allowed {
		t.Fatal("tight budget rejected first request")
	}
	if res, _ := l.Allow(ctx, tight, "client-a"); res.Allowed {
		t.Fatal("tight budget admitted second request")
	}
	if res, _ := l.Allow(ctx, loose, "client-a"); !res.Allowed {
		t.Fatal("loose policy throttled by tight policy's counter")
	}
}

func TestRedisLimiterWindowResets(t *testing.T) {
	l, srv := newRedisLimiter(t)
	p := Policy{Name: "test", Limit: 1, Window: time.Minute}
	ctx := context.Background()

	if res, _ := l.Allow(ctx, p, "client-a"); !res.Allowed {
		t.Fatal("first request rejected")
	}
	if res, _ := l.Allow(ctx, p, "client-a"); res.Allowed {
		t.Fatal("second request admitted")
	}
	srv.FastForward(time.Minute + time.Second)
	if res, _ := l.Allow(ctx, p, "client-a"); !res.Allowed {
		t.Fatal("request after window expiry rejected")
	}
}

func TestRedisLimiterBackendDown(t *testing.T) {
	l, srv := newRedisLimiter(t)
	p := Policy{Name: "test", Limit: 3, Window: time.Minute}
	srv.Close()

	res, err := l.Allow(context.Background(), p, "client-a")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Allow = %v, want ErrStoreUnavailable", err)
	}
	if res.Allowed {
		t.Fatal("failed check reported as allowed")
	}
}

func TestLocalLimiterEnforcesBudget(t *testing.T) {
	l := NewLocalLimiter()
	p := Policy{Name: "test", Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, p, "client-a")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}
	res, err := l.Allow(ctx, p, "client-a")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("request over budget admitted")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want positive", res.RetryAfter)
	}

	if res, _ := l.Allow(ctx, p, "client-b"); !res.Allowed {
		t.Fatal("client-b throttled by client-a's bucket")
	}
}

func TestLocalLimiterWindowResets(t *testing.T) {
	l := NewLocalLimiter()
	base := time.Now()
	clock := base
	l.now = func() time.Time { return clock }
	p := Policy{Name: "test", Limit: 1, Window: time.Minute}
	ctx := context.Background()

	if res, _ := l.Allow(ctx, p, "client-a"); !res.Allowed {
		t.Fatal("first request rejected")
	}
	clock = base.Add(61 * time.Second)
	if res, _ := l.Allow(ctx, p, "client-a"); !res.Allowed {
		t.Fatal("request after window reset rejected")
	}
}
