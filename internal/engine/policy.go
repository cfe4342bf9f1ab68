package engine

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftmend/driftmend-backend/internal/platform/envutil"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

// Thresholds is the three-tier confidence policy plus the HITL TTL. The
// defaults mirror upstream documentation but are configuration, not law, and
// may differ per tenant.
type Thresholds struct {
	AutoApply float64       `json:"auto_apply"`
	HITLQueue float64       `json:"hitl_queue"`
	HITLTTL   time.Duration `json:"-"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoApply: 0.85,
		HITLQueue: 0.60,
		HITLTTL:   7 * 24 * time.Hour,
	}
}

// PolicyResolver answers the thresholds to use for a tenant.
type PolicyResolver interface {
	For(tenantID uuid.UUID) Thresholds
}

type staticResolver struct {
	def       Thresholds
	overrides map[uuid.UUID]Thresholds
}

func (r *staticResolver) For(tenantID uuid.UUID) Thresholds {
	if t, ok := r.overrides[tenantID]; ok {
		return t
	}
	return r.def
}

type policyOverride struct {
	AutoApply *float64 `json:"auto_apply,omitempty"`
	HITLQueue *float64 `json:"hitl_queue,omitempty"`
	HITLTTL   string   `json:"hitl_ttl,omitempty"`
}

// NewPolicyResolverFromEnv builds the resolver from DRIFT_AUTO_APPLY_MIN,
// DRIFT_HITL_MIN, DRIFT_HITL_TTL, with optional per-tenant overrides in
// DRIFT_TENANT_POLICY_JSON, e.g.
//
//	{"4b2e...-uuid": {"auto_apply": 0.9, "hitl_queue": 0.7, "hitl_ttl": "72h"}}
func NewPolicyResolverFromEnv(log *logger.Logger) PolicyResolver {
	def := DefaultThresholds()
	def.AutoApply = envutil.Float("DRIFT_AUTO_APPLY_MIN", def.AutoApply)
	def.HITLQueue = envutil.Float("DRIFT_HITL_MIN", def.HITLQueue)
	def.HITLTTL = envutil.Duration("DRIFT_HITL_TTL", def.HITLTTL)

	overrides := make(map[uuid.UUID]Thresholds)
	raw := strings.TrimSpace(os.Getenv("DRIFT_TENANT_POLICY_JSON"))
	if raw != "" {
		var parsed map[string]policyOverride
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			log.Warn("ignoring malformed DRIFT_TENANT_POLICY_JSON", "error", err)
		} else {
			for key, po := range parsed {
				tenantID, err := uuid.Parse(key)
				if err != nil {
					log.Warn("ignoring tenant policy override with bad tenant id", "tenant", key)
					continue
				}
				t := def
				if po.AutoApply != nil {
					t.AutoApply = *po.AutoApply
				}
				if po.HITLQueue != nil {
					t.HITLQueue = *po.HITLQueue
				}
				if po.HITLTTL != "" {
					if d, err := time.ParseDuration(po.HITLTTL); err == nil {
						t.HITLTTL = d
					}
				}
				overrides[tenantID] = t
			}
		}
	}

	return &staticResolver{def: def, overrides: overrides}
}

// NewStaticPolicyResolver is the test constructor.
func NewStaticPolicyResolver(def Thresholds, overrides map[uuid.UUID]Thresholds) PolicyResolver {
	if overrides == nil {
		overrides = map[uuid.UUID]Thresholds{}
	}
	return &staticResolver{def: def, overrides: overrides}
}
