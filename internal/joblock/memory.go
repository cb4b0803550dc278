package joblock

import (
	"context"
	"sync"
	"time"
)

type memoryLease struct {
	owner   string
	expires time.Time
}

// MemoryLocker implements a process-local Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

// NewMemoryLocker constructs a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]memoryLease),
	}
}

// Acquire takes the lease when it is free or expired.
func (l *MemoryLocker) Acquire(_ context.Context, key, owner string, ttl time.Duration, now time.Time) (bool, error) {
	if key == "" || owner == "" || ttl <= 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, ok := l.leases[key]; ok && lease.owner != owner && now.Before(lease.expires) {
		return false, nil
	}
	l.leases[key] = memoryLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release drops the lease if owner holds it.
func (l *MemoryLocker) Release(_ context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, ok := l.leases[key]; ok && lease.owner == owner {
		delete(l.leases, key)
	}
	return nil
}
