package coordination

import (
	"context"
	"time"

	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

// Reconciler is the backstop for crashed workers: it scans slot keys for
// jobs whose heartbeat lapsed past the stale timeout and force-releases their
// slots. Not a substitute for release-on-completion.
type Reconciler struct {
	sem          Semaphore
	log          *logger.Logger
	staleTimeout time.Duration
	interval     time.Duration

	// OnForcedRelease is notified after each forced release so the caller
	// can audit it.
	OnForcedRelease func(ctx context.Context, slotKey string, jobIDs []string)
}

func NewReconciler(sem Semaphore, log *logger.Logger, staleTimeout, interval time.Duration) *Reconciler {
	if staleTimeout <= 0 {
		staleTimeout = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		sem:          sem,
		log:          log.With("component", "Reconciler"),
		staleTimeout: staleTimeout,
		interval:     interval,
	}
}

// Run blocks until ctx is done, sweeping on the configured interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SweepOnce(ctx); err != nil {
				r.log.Error("reconciler sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce performs one pass over every active slot key.
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	keys, err := r.sem.ActiveKeys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		evicted, err := r.sem.ReapStale(ctx, key, r.staleTimeout)
		if err != nil {
			r.log.Error("reap stale slots failed", "slot_key", key, "error", err)
			continue
		}
		if len(evicted) == 0 {
			continue
		}
		r.log.Warn("force-released stale semaphore slots",
			"slot_key", key,
			"job_ids", evicted,
			"stale_timeout", r.staleTimeout.String(),
		)
		if r.OnForcedRelease != nil {
			r.OnForcedRelease(ctx, key, evicted)
		}
	}
	return nil
}
