// Package joblock provides best-effort mutual exclusion for background jobs across replicas.
package joblock

import (
	"context"
	"time"
)

// Locker acquires and releases named leases.
type Locker interface {
	// Acquire takes key for owner until now+ttl; false means someone else holds it.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration, now time.Time) (bool, error)
	// Release drops key only if owner still holds it.
	Release(ctx context.Context, key, owner string) error
}
