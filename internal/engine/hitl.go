package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	"github.com/driftmend/driftmend-backend/internal/data/graph"
	driftrepos "github.com/driftmend/driftmend-backend/internal/data/repos/drift"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

// ErrHITLNotFound is returned when no pending entry exists for the key.
var ErrHITLNotFound = errors.New("no pending hitl entry")

// HITLResolution is the external approval verdict.
type HITLResolution string

const (
	HITLApprove HITLResolution = "approve"
	HITLDeny    HITLResolution = "deny"
)

type HITLConfig struct {
	LockLease         time.Duration
	LockRetryAttempts int
	LockRetryWait     time.Duration
	SweepInterval     time.Duration
}

// HITLService resolves queued suggestions and expires the ones nobody
// answered. Every entry reaches exactly one terminal decision.
type HITLService struct {
	cfg       HITLConfig
	hitl      driftrepos.HITLRepo
	suggstore driftrepos.SuggestionRepo
	decisions driftrepos.DecisionRepo
	audit     driftrepos.AuditRepo
	lineage   graph.LineageStore
	locker    coordination.Locker
	log       *logger.Logger
}

func NewHITLService(
	cfg HITLConfig,
	hitl driftrepos.HITLRepo,
	suggstore driftrepos.SuggestionRepo,
	decisions driftrepos.DecisionRepo,
	audit driftrepos.AuditRepo,
	lineage graph.LineageStore,
	locker coordination.Locker,
	log *logger.Logger,
) *HITLService {
	if cfg.LockLease <= 0 {
		cfg.LockLease = 30 * time.Second
	}
	if cfg.LockRetryAttempts <= 0 {
		cfg.LockRetryAttempts = 5
	}
	if cfg.LockRetryWait <= 0 {
		cfg.LockRetryWait = 100 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &HITLService{
		cfg:       cfg,
		hitl:      hitl,
		suggstore: suggstore,
		decisions: decisions,
		audit:     audit,
		lineage:   lineage,
		locker:    locker,
		log:       log.With("service", "HITLService"),
	}
}

func (s *HITLService) ListPending(dbc dbctx.Context, tenantID uuid.UUID) ([]*types.HITLQueueEntry, error) {
	return s.hitl.ListPending(dbc, tenantID)
}

// Resolve applies a human verdict to a pending entry. Approval mutates the
// lineage graph under the tenant's distributed lock before the entry leaves
// the queue.
func (s *HITLService) Resolve(dbc dbctx.Context, hitlKey string, resolution HITLResolution, decidedBy string) (*types.RepairDecision, error) {
	if resolution != HITLApprove && resolution != HITLDeny {
		return nil, fmt.Errorf("%w: resolution must be approve or deny", ErrValidation)
	}
	if decidedBy == "" {
		decidedBy = "human"
	}

	entry, err := s.hitl.GetByKey(dbc, hitlKey)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Status != types.HITLPending {
		return nil, ErrHITLNotFound
	}

	suggestion, err := s.suggstore.GetByID(dbc, entry.SuggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion == nil {
		return nil, fmt.Errorf("hitl entry %s references missing suggestion %s", hitlKey, entry.SuggestionID)
	}

	now := time.Now().UTC()
	decision := &types.RepairDecision{
		ID:           uuid.New(),
		SuggestionID: suggestion.ID,
		DriftEventID: entry.DriftEventID,
		TenantID:     entry.TenantID,
		DecidedBy:    decidedBy,
		DecidedAt:    now,
	}

	switch resolution {
	case HITLApprove:
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		resourceKey := entry.TenantID.String()
		holderID := "hitl-" + uuid.NewString()
		if err := coordination.AcquireWithRetry(ctx, s.locker, resourceKey, holderID, s.cfg.LockLease, s.cfg.LockRetryAttempts, s.cfg.LockRetryWait); err != nil {
			return nil, err
		}
		defer func() {
			if _, err := s.locker.Release(ctx, resourceKey, holderID); err != nil {
				s.log.Error("lock release failed", "resource", resourceKey, "error", err)
			}
		}()

		mapping := &types.FieldMapping{
			TenantID:    entry.TenantID,
			ConnectorID: entry.ConnectorID,
			EntityType:  entry.EntityType,
			FieldName:   entry.FieldName,
			Concept:     suggestion.ProposedMapping,
			Confidence:  suggestion.Confidence,
			DecidedBy:   decidedBy,
		}
		if err := s.lineage.ApplyMapping(ctx, mapping); err != nil {
			return nil, fmt.Errorf("apply approved mapping: %w", err)
		}
		decision.Action = types.ActionAutoApplied
		decision.Reason = types.ReasonHumanApproved

	case HITLDeny:
		decision.Action = types.ActionRejected
		decision.Reason = types.ReasonHumanDenied
	}

	resolvedStatus := types.HITLApproved
	if resolution == HITLDeny {
		resolvedStatus = types.HITLDenied
	}
	resolved, err := s.hitl.Resolve(dbc, hitlKey, resolvedStatus, decidedBy)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		// Lost the race with another resolver or the expiry sweep.
		return nil, ErrHITLNotFound
	}

	if err := s.decisions.Upsert(dbc, decision); err != nil {
		return nil, fmt.Errorf("persist resolved decision: %w", err)
	}
	s.auditEntry(dbc, entry.TenantID, decidedBy, types.AuditHITLResolved, decision.Reason, entry.ID, map[string]any{
		"hitl_key": hitlKey,
		"action":   string(decision.Action),
		"field":    entry.FieldName,
	})

	s.log.Info("hitl entry resolved",
		"hitl_key", hitlKey,
		"action", string(decision.Action),
		"decided_by", decidedBy,
	)
	return decision, nil
}

// SweepExpired records every lapsed pending entry as REJECTED with reason
// "expired". Returns how many entries it terminated.
func (s *HITLService) SweepExpired(dbc dbctx.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.hitl.ListExpiredPending(dbc, now, 200)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range expired {
		ok, err := s.hitl.MarkExpired(dbc, entry.ID, now)
		if err != nil {
			s.log.Error("mark expired failed", "hitl_key", entry.HitlKey, "error", err)
			continue
		}
		if !ok {
			continue
		}
		decision := &types.RepairDecision{
			ID:           uuid.New(),
			SuggestionID: entry.SuggestionID,
			DriftEventID: entry.DriftEventID,
			TenantID:     entry.TenantID,
			Action:       types.ActionRejected,
			Reason:       types.ReasonExpired,
			DecidedBy:    types.DecidedBySystem,
			DecidedAt:    now,
		}
		if err := s.decisions.Upsert(dbc, decision); err != nil {
			s.log.Error("persist expired decision failed", "hitl_key", entry.HitlKey, "error", err)
			continue
		}
		s.auditEntry(dbc, entry.TenantID, types.DecidedBySystem, types.AuditHITLExpired, types.ReasonExpired, entry.ID, map[string]any{
			"hitl_key":   entry.HitlKey,
			"field":      entry.FieldName,
			"expires_at": entry.ExpiresAt,
		})
		count++
	}
	if count > 0 {
		s.log.Info("expired hitl entries swept", "count", count)
	}
	return count, nil
}

// RunSweep blocks until ctx is done, sweeping on the configured interval.
func (s *HITLService) RunSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(dbctx.Context{Ctx: ctx}); err != nil {
				s.log.Error("hitl sweep failed", "error", err)
			}
		}
	}
}

func (s *HITLService) auditEntry(dbc dbctx.Context, tenantID uuid.UUID, actor, action, reason string, refID uuid.UUID, detail map[string]any) {
	raw, _ := json.Marshal(detail)
	entry := &types.AuditEntry{
		ID:       uuid.New(),
		TenantID: tenantID,
		Actor:    actor,
		Action:   action,
		Reason:   reason,
		RefType:  "hitl_entry",
		RefID:    &refID,
		Detail:   datatypes.JSON(raw),
	}
	if err := s.audit.Append(dbc, []*types.AuditEntry{entry}); err != nil {
		s.log.Error("audit append failed", "action", action, "error", err)
	}
}
