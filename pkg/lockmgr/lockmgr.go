// Package lockmgr implements named cooperative leases backed by Redis.
//
// A lease is advisory: it reduces retry churn on hot, contended resources
// (a single section during a capacity race) but never replaces the event
// store's version fencing as the authority on correctness.
package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when Acquire could not obtain the lease within
// wait_timeout.
var ErrLockTimeout = errors.New("lockmgr: timed out waiting to acquire lease")

// ErrNotOwner is returned by Release when the caller does not hold the
// current lease on resource_id.
var ErrNotOwner = errors.New("lockmgr: caller is not the current lease owner")

const keyPrefix = "enrollcore:lock:"

// Lease represents a held, time-bounded exclusive claim on a named resource.
type Lease struct {
	ResourceID string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// releaseScript atomically checks ownership before deleting the key, so a
// caller never releases a lease it has already lost to expiry and another
// owner's acquisition.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Manager is the process-scoped named-lease registry, injected into the
// orchestrator at construction.
type Manager struct {
	rdb  *redis.Client
	poll time.Duration
}

// NewManager builds a Manager polling at the given interval while waiting
// to acquire a contended lease. A zero interval defaults to 25ms.
func NewManager(rdb *redis.Client, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 25 * time.Millisecond
	}
	return &Manager{rdb: rdb, poll: pollInterval}
}

func lockKey(resourceID string) string {
	return keyPrefix + resourceID
}

// Acquire blocks up to waitTimeout trying to obtain resourceID for owner.
// The lease auto-expires after ttl, so a crashed owner cannot wedge the
// resource. Returns ErrLockTimeout if the deadline elapses first.
func (m *Manager) Acquire(ctx context.Context, resourceID, owner string, ttl, waitTimeout time.Duration) (*Lease, error) {
	deadline := time.Now().Add(waitTimeout)
	key := lockKey(resourceID)

	for {
		ok, err := m.rdb.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lockmgr: acquiring %s: %w", resourceID, err)
		}
		if ok {
			now := time.Now()
			return &Lease{ResourceID: resourceID, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.poll):
		}
	}
}

// Release gives up a held lease. It succeeds only if owner is still the
// current holder of resourceID; otherwise ErrNotOwner (the lease already
// expired and was reacquired, or was never held by owner).
func (m *Manager) Release(ctx context.Context, resourceID, owner string) error {
	key := lockKey(resourceID)
	result, err := releaseScript.Run(ctx, m.rdb, []string{key}, owner).Int64()
	if err != nil {
		return fmt.Errorf("lockmgr: releasing %s: %w", resourceID, err)
	}
	if result == 0 {
		return ErrNotOwner
	}
	return nil
}

// NewOwnerToken generates a unique owner identity suitable for a single
// Acquire/Release pair (e.g. one request's attempt at a section lease).
func NewOwnerToken() string {
	return uuid.NewString()
}

// SectionResourceID builds the canonical named-resource key for a section's
// capacity-race lease, as used by the enrollment service's optional
// pessimistic fast path.
func SectionResourceID(sectionID string) string {
	return "section:" + sectionID
}
