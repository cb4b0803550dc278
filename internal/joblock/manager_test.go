package joblock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLockerExpiry(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	ok, _ := locker.Acquire(ctx, "job", "a", time.Minute, now)
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if ok, _ = locker.Acquire(ctx, "job", "b", time.Minute, now.Add(30*time.Second)); ok {
		t.Fatalf("expected second owner to be rejected while lease is live")
	}
	if ok, _ = locker.Acquire(ctx, "job", "b", time.Minute, now.Add(2*time.Minute)); !ok {
		t.Fatalf("expected expired lease to be taken over")
	}

	_ = locker.Release(ctx, "job", "a")
	if ok, _ = locker.Acquire(ctx, "job", "c", time.Minute, now.Add(2*time.Minute)); ok {
		t.Fatalf("release by a stale owner must not drop the current lease")
	}
	_ = locker.Release(ctx, "job", "b")
	if ok, _ = locker.Acquire(ctx, "job", "c", time.Minute, now.Add(2*time.Minute)); !ok {
		t.Fatalf("expected lease to be free after release")
	}
}

func TestManagerMemoryBackend(t *testing.T) {
	manager := NewManager(nil, nil, nil)
	ctx := context.Background()

	lease, ok, err := manager.TryAcquire(ctx, "monthly-refresh", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lease, got ok=%v err=%v", ok, err)
	}
	if _, okSecond, _ := manager.TryAcquire(ctx, "monthly-refresh", time.Minute); okSecond {
		t.Fatalf("expected second acquire to fail while held")
	}
	lease.Release(ctx)
	lease.Release(ctx)
	if _, okAgain, _ := manager.TryAcquire(ctx, "monthly-refresh", time.Minute); !okAgain {
		t.Fatalf("expected acquire after release")
	}

	if _, _, errInvalid := manager.TryAcquire(ctx, " ", time.Minute); errInvalid == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestManagerFallsBackWhenRedisUnreachable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clients := 0
	manager := NewManager(
		func() Settings { return Settings{RedisEnabled: true, RedisAddr: "127.0.0.1:1"} },
		func() time.Time { return now },
		func(options *redis.Options) *redis.Client {
			clients++
			options.DialTimeout = 200 * time.Millisecond
			options.MaxRetries = -1
			return redis.NewClient(options)
		},
	)
	defer func() { _ = manager.Close() }()

	_, ok, err := manager.TryAcquire(context.Background(), "job", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected memory fallback lease, got ok=%v err=%v", ok, err)
	}
	if !manager.isBreakerActive(now) {
		t.Fatalf("expected breaker to trip after redis failure")
	}

	if _, _, err = manager.TryAcquire(context.Background(), "other", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if clients != 1 {
		t.Fatalf("expected breaker to skip redis, got %d client constructions", clients)
	}
}
