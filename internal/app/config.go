package app

import (
	"time"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	"github.com/driftmend/driftmend-backend/internal/platform/envutil"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type Config struct {
	Port string

	SlotLimit    int
	SlotKeyShape string

	LockLease         time.Duration
	LockRetryAttempts int
	LockRetryWait     time.Duration

	StaleJobTimeout   time.Duration
	ReconcileInterval time.Duration
	HITLSweepInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port: envutil.String("PORT", "8080"),

		SlotLimit:    envutil.Int("SEM_SLOT_LIMIT", 5),
		SlotKeyShape: envutil.String("SEM_SLOT_KEY_SHAPE", "tenant"),

		LockLease:         envutil.Duration("LOCK_LEASE", 30*time.Second),
		LockRetryAttempts: envutil.Int("LOCK_RETRY_ATTEMPTS", 5),
		LockRetryWait:     envutil.Duration("LOCK_RETRY_WAIT", 100*time.Millisecond),

		StaleJobTimeout:   envutil.Duration("STALE_JOB_TIMEOUT", 5*time.Minute),
		ReconcileInterval: envutil.Duration("RECONCILE_INTERVAL", time.Minute),
		HITLSweepInterval: envutil.Duration("HITL_SWEEP_INTERVAL", time.Minute),
	}
	log.Info("config loaded",
		"port", cfg.Port,
		"slot_limit", cfg.SlotLimit,
		"slot_key_shape", cfg.SlotKeyShape,
		"stale_job_timeout", cfg.StaleJobTimeout.String(),
	)
	return cfg
}

// SlotKeyFn maps the configured shape to a key function. Unknown shapes fall
// back to per-tenant.
func (c Config) SlotKeyFn() coordination.SlotKeyFunc {
	if c.SlotKeyShape == "tenant_plan" {
		return coordination.TenantPlanSlotKey
	}
	return coordination.TenantSlotKey
}
