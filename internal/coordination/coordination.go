package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConcurrencyLimit is returned by callers that convert a failed
	// admission into an error. Not a pipeline failure; queue or retry.
	ErrConcurrencyLimit = errors.New("tenant concurrency limit exceeded")
	// ErrLockContention is returned after bounded lock-acquire attempts all
	// found the resource held.
	ErrLockContention = errors.New("lock contention")
)

// SlotKeyFunc shapes the semaphore key. Whether admission is bounded per
// tenant or per tenant+plan is still an open product question, so the shape
// stays pluggable.
type SlotKeyFunc func(tenantID uuid.UUID, planID string) string

func TenantSlotKey(tenantID uuid.UUID, planID string) string {
	return tenantID.String()
}

func TenantPlanSlotKey(tenantID uuid.UUID, planID string) string {
	if planID == "" {
		return tenantID.String()
	}
	return fmt.Sprintf("%s:%s", tenantID, planID)
}

type SemaphoreState struct {
	ActiveCount int      `json:"active_count"`
	Limit       int      `json:"limit"`
	JobIDs      []string `json:"job_ids,omitempty"`
}

// Semaphore is the per-tenant job admission counter. Acquire never blocks:
// it answers admitted or not and the caller decides to queue or reject.
// Implementations guarantee the count never exceeds the limit nor goes
// negative, even under concurrent acquires.
type Semaphore interface {
	Acquire(ctx context.Context, slotKey, jobID string, limit int) (bool, error)
	// Release is idempotent: releasing a job not currently holding a slot is
	// a no-op, which tolerates duplicate releases during crash recovery.
	Release(ctx context.Context, slotKey, jobID string) error
	// Heartbeat refreshes the holder's liveness so the reconciler leaves the
	// slot alone. No-op when the job holds no slot.
	Heartbeat(ctx context.Context, slotKey, jobID string) error
	State(ctx context.Context, slotKey string, limit int) (SemaphoreState, error)
	// ReapStale force-releases slots whose holder has not heartbeaten within
	// olderThan, returning the evicted job IDs.
	ReapStale(ctx context.Context, slotKey string, olderThan time.Duration) ([]string, error)
	// ActiveKeys lists slot keys that currently hold at least one job.
	ActiveKeys(ctx context.Context) ([]string, error)
	Degraded() bool
}

// Locker is the distributed mutual-exclusion primitive guarding shared
// catalog/graph state. Leases expire so a crashed holder cannot block the
// resource forever.
type Locker interface {
	// Acquire returns true only when no live lock exists for the resource.
	Acquire(ctx context.Context, resourceKey, holderID string, lease time.Duration) (bool, error)
	// Release succeeds only for the current holder, so a delayed release
	// cannot rip the lock out from under a newer holder.
	Release(ctx context.Context, resourceKey, holderID string) (bool, error)
	// Renew extends the lease while held; false when the lock was lost.
	Renew(ctx context.Context, resourceKey, holderID string, lease time.Duration) (bool, error)
	Degraded() bool
}

// AcquireWithRetry attempts Acquire with doubled, jittered waits between
// bounded attempts. Indefinite blocking is disallowed: after the attempts are
// spent it surfaces ErrLockContention.
func AcquireWithRetry(ctx context.Context, locker Locker, resourceKey, holderID string, lease time.Duration, attempts int, initialWait time.Duration) error {
	if attempts <= 0 {
		attempts = 5
	}
	if initialWait <= 0 {
		initialWait = 100 * time.Millisecond
	}

	wait := initialWait
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := locker.Acquire(ctx, resourceKey, holderID, lease)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(wait)):
		}
		wait *= 2
		if wait > 5*time.Second {
			wait = 5 * time.Second
		}
	}
	return fmt.Errorf("%w: %s", ErrLockContention, resourceKey)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// +/-20%, same shape the HTTP retry helpers use.
	frac := 0.8 + 0.4*float64(time.Now().UnixNano()%1000)/1000.0
	return time.Duration(float64(d) * frac)
}
