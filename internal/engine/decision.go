package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/driftmend/driftmend-backend/internal/data/graph"
	driftrepos "github.com/driftmend/driftmend-backend/internal/data/repos/drift"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

// DecisionEngine applies the three-tier confidence policy to one suggestion
// and executes the routed action. Auto-apply mutates the lineage graph, so
// callers must hold the tenant's distributed lock when proposalErr is nil and
// the suggestion can clear the auto-apply bar.
type DecisionEngine struct {
	policy    PolicyResolver
	decisions driftrepos.DecisionRepo
	hitl      driftrepos.HITLRepo
	audit     driftrepos.AuditRepo
	lineage   graph.LineageStore
	log       *logger.Logger
}

func NewDecisionEngine(
	policy PolicyResolver,
	decisions driftrepos.DecisionRepo,
	hitl driftrepos.HITLRepo,
	audit driftrepos.AuditRepo,
	lineage graph.LineageStore,
	log *logger.Logger,
) *DecisionEngine {
	return &DecisionEngine{
		policy:    policy,
		decisions: decisions,
		hitl:      hitl,
		audit:     audit,
		lineage:   lineage,
		log:       log.With("service", "DecisionEngine"),
	}
}

// Decide routes one suggestion. proposalErr marks a failed proposal, which is
// always REJECTED with reason proposal_unavailable.
func (e *DecisionEngine) Decide(dbc dbctx.Context, event *types.DriftEvent, suggestion *types.RepairSuggestion, proposalErr error) (*types.RepairDecision, error) {
	now := time.Now().UTC()
	thresholds := e.policy.For(event.TenantID)

	decision := &types.RepairDecision{
		ID:           uuid.New(),
		SuggestionID: suggestion.ID,
		DriftEventID: event.ID,
		TenantID:     event.TenantID,
		DecidedBy:    types.DecidedBySystem,
		DecidedAt:    now,
	}

	switch {
	case proposalErr != nil:
		decision.Action = types.ActionRejected
		decision.Reason = types.ReasonProposalUnavailable

	case suggestion.Confidence >= thresholds.AutoApply:
		mapping := &types.FieldMapping{
			TenantID:    event.TenantID,
			ConnectorID: event.ConnectorID,
			EntityType:  event.EntityType,
			FieldName:   suggestion.FieldName,
			Concept:     suggestion.ProposedMapping,
			Confidence:  suggestion.Confidence,
			DecidedBy:   types.DecidedBySystem,
		}
		ctx := dbc.Ctx
		if err := e.lineage.ApplyMapping(ctx, mapping); err != nil {
			return nil, fmt.Errorf("apply mapping: %w", err)
		}
		decision.Action = types.ActionAutoApplied
		decision.Reason = types.ReasonHighConfidence
		e.auditEntry(dbc, event.TenantID, types.DecidedBySystem, types.AuditMappingApplied, decision.Reason, "drift_event", event.ID, map[string]any{
			"field":      suggestion.FieldName,
			"mapping":    suggestion.ProposedMapping,
			"confidence": suggestion.Confidence,
		})

	case suggestion.Confidence >= thresholds.HITLQueue:
		entry := &types.HITLQueueEntry{
			ID:           uuid.New(),
			HitlKey:      types.HitlKey(event.TenantID, event.ConnectorID, event.EntityType, suggestion.FieldName),
			TenantID:     event.TenantID,
			ConnectorID:  event.ConnectorID,
			EntityType:   event.EntityType,
			FieldName:    suggestion.FieldName,
			SuggestionID: suggestion.ID,
			DriftEventID: event.ID,
			EnqueuedAt:   now,
			ExpiresAt:    now.Add(thresholds.HITLTTL),
		}
		if _, _, err := e.hitl.Upsert(dbc, entry); err != nil {
			return nil, fmt.Errorf("enqueue hitl entry: %w", err)
		}
		decision.Action = types.ActionHITLQueued
		decision.Reason = types.ReasonAwaitingHuman

	default:
		decision.Action = types.ActionRejected
		decision.Reason = types.ReasonLowConfidence
	}

	if err := e.decisions.Upsert(dbc, decision); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}
	e.auditEntry(dbc, event.TenantID, types.DecidedBySystem, types.AuditDecisionRecorded, decision.Reason, "suggestion", suggestion.ID, map[string]any{
		"action":     string(decision.Action),
		"field":      suggestion.FieldName,
		"confidence": suggestion.Confidence,
	})

	e.log.Info("repair decision",
		"tenant_id", event.TenantID,
		"field", suggestion.FieldName,
		"action", string(decision.Action),
		"reason", decision.Reason,
		"confidence", suggestion.Confidence,
	)
	return decision, nil
}

func (e *DecisionEngine) auditEntry(dbc dbctx.Context, tenantID uuid.UUID, actor, action, reason, refType string, refID uuid.UUID, detail map[string]any) {
	raw, _ := json.Marshal(detail)
	entry := &types.AuditEntry{
		ID:       uuid.New(),
		TenantID: tenantID,
		Actor:    actor,
		Action:   action,
		Reason:   reason,
		RefType:  refType,
		RefID:    &refID,
		Detail:   datatypes.JSON(raw),
	}
	if err := e.audit.Append(dbc, []*types.AuditEntry{entry}); err != nil {
		// Audit failure must not mask the decision itself, but it is loud.
		e.log.Error("audit append failed", "action", action, "error", err)
	}
}
