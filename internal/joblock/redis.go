package joblock

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Acquire sets the key if absent with the lease TTL.
func (l *RedisLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration, _ time.Time) (bool, error) {
	if key == "" || owner == "" || ttl <= 0 || l == nil || l.client == nil {
		return false, nil
	}
	return l.client.SetNX(ctx, l.buildKey(key), owner, ttl).Result()
}

// Release deletes the key only when it still carries owner.
func (l *RedisLocker) Release(ctx context.Context, key, owner string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return redisReleaseScript.Run(ctx, l.client, []string{l.buildKey(key)}, owner).Err()
}

func (l *RedisLocker) buildKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}
