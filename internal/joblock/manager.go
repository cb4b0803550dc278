package joblock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// Settings selects the lock backend.
type Settings struct {
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() Settings

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Lease is a held lock; Release is safe to call more than once.
type Lease struct {
	key     string
	owner   string
	backend Locker
	once    sync.Once
}

// Release gives the lease back.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.backend == nil {
		return
	}
	l.once.Do(func() {
		if errRelease := l.backend.Release(ctx, l.key, l.owner); errRelease != nil {
			log.WithError(errRelease).WithField("key", l.key).Warn("job lock: release failed, lease will expire")
		}
	})
}

// Manager hands out leases from Redis when configured and reachable, otherwise from memory.
type Manager struct {
	provider       SettingsProvider
	nowFn          func() time.Time
	memoryLocker   Locker
	newRedisClient RedisClientFactory
	mu             sync.Mutex
	redisLocker    *RedisLocker
	redisSettings  Settings
	breakerUntil   time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = func() Settings { return Settings{} }
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		provider:       provider,
		nowFn:          nowFn,
		memoryLocker:   NewMemoryLocker(),
		newRedisClient: newRedisClient,
	}
}

// TryAcquire attempts to take the named lease; ok is false when another holder has it.
func (m *Manager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	if m == nil {
		return nil, false, errors.New("job lock: manager not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" || ttl <= 0 {
		return nil, false, errors.New("job lock: name and positive ttl are required")
	}
	owner := uuid.NewString()
	now := m.nowFn()
	cfg := m.provider()

	if cfg.RedisEnabled {
		if locker, okRedis := m.redis(ctx, cfg, now); okRedis {
			acquired, errAcquire := locker.Acquire(ctx, name, owner, ttl, now)
			if errAcquire == nil {
				return m.lease(name, owner, locker, acquired)
			}
			m.tripBreaker(errAcquire, now)
		}
	}
	acquired, errAcquire := m.memoryLocker.Acquire(ctx, name, owner, ttl, now)
	if errAcquire != nil {
		return nil, false, errAcquire
	}
	return m.lease(name, owner, m.memoryLocker, acquired)
}

func (m *Manager) lease(name, owner string, backend Locker, acquired bool) (*Lease, bool, error) {
	if !acquired {
		return nil, false, nil
	}
	return &Lease{key: name, owner: owner, backend: backend}, true, nil
}

func (m *Manager) redis(ctx context.Context, cfg Settings, now time.Time) (*RedisLocker, bool) {
	if m.isBreakerActive(now) {
		return nil, false
	}
	locker, errEnsure := m.ensureRedis(ctx, cfg)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return nil, false
	}
	return locker, locker != nil
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("job lock: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context, cfg Settings) (*RedisLocker, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("job lock redis: missing address")
	}
	next := Settings{
		RedisEnabled:  true,
		RedisAddr:     addr,
		RedisPassword: strings.TrimSpace(cfg.RedisPassword),
		RedisDB:       max(cfg.RedisDB, 0),
		RedisPrefix:   strings.TrimSpace(cfg.RedisPrefix),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisLocker != nil && m.redisSettings == next {
		return m.redisLocker, nil
	}
	if m.redisLocker != nil {
		_ = m.redisLocker.client.Close()
		m.redisLocker = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     next.RedisAddr,
		Password: next.RedisPassword,
		DB:       next.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisLocker = NewRedisLocker(client, next.RedisPrefix)
	m.redisSettings = next
	return m.redisLocker, nil
}

// Close releases the Redis client, if any.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLocker == nil {
		return nil
	}
	errClose := m.redisLocker.client.Close()
	m.redisLocker = nil
	return errClose
}
