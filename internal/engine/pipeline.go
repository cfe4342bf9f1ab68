package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	driftrepos "github.com/driftmend/driftmend-backend/internal/data/repos/drift"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type PipelineConfig struct {
	SlotLimit         int
	SlotKeyFn         coordination.SlotKeyFunc
	LockLease         time.Duration
	LockRetryAttempts int
	LockRetryWait     time.Duration
}

// PipelineResult is what one admitted observation produced.
type PipelineResult struct {
	JobID     uuid.UUID               `json:"job_id"`
	Events    []*types.DriftEvent     `json:"events"`
	Decisions []*types.RepairDecision `json:"decisions"`
}

// PipelineService runs the full detect-propose-decide pass for one schema
// observation. Admission is a non-blocking semaphore slot; all fingerprint
// and lineage writes happen under the tenant's distributed lock.
type PipelineService struct {
	cfg        PipelineConfig
	sem        coordination.Semaphore
	locker     coordination.Locker
	classifier *Classifier
	proposer   *ProposalGenerator
	decider    *DecisionEngine
	audit      driftrepos.AuditRepo
	log        *logger.Logger
}

func NewPipelineService(
	cfg PipelineConfig,
	sem coordination.Semaphore,
	locker coordination.Locker,
	classifier *Classifier,
	proposer *ProposalGenerator,
	decider *DecisionEngine,
	audit driftrepos.AuditRepo,
	log *logger.Logger,
) *PipelineService {
	if cfg.SlotLimit <= 0 {
		cfg.SlotLimit = 5
	}
	if cfg.SlotKeyFn == nil {
		cfg.SlotKeyFn = coordination.TenantSlotKey
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 30 * time.Second
	}
	if cfg.LockRetryAttempts <= 0 {
		cfg.LockRetryAttempts = 5
	}
	if cfg.LockRetryWait <= 0 {
		cfg.LockRetryWait = 100 * time.Millisecond
	}
	return &PipelineService{
		cfg:        cfg,
		sem:        sem,
		locker:     locker,
		classifier: classifier,
		proposer:   proposer,
		decider:    decider,
		audit:      audit,
		log:        log.With("service", "PipelineService"),
	}
}

// IngestObservation admits, classifies, and decides one observed schema. A
// full semaphore returns ErrConcurrencyLimit immediately; the caller chooses
// whether to retry. Suggestion-service outages fail only the affected events.
func (p *PipelineService) IngestObservation(
	dbc dbctx.Context,
	tenantID, connectorID uuid.UUID,
	entityType, planID string,
	obs map[string]types.FieldObservation,
) (*PipelineResult, error) {
	if tenantID == uuid.Nil || connectorID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant_id and connector_id are required", ErrValidation)
	}
	if entityType == "" {
		return nil, fmt.Errorf("%w: entity_type is required", ErrValidation)
	}
	if err := ValidateObservations(obs); err != nil {
		return nil, err
	}

	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	jobID := uuid.New()
	slotKey := p.cfg.SlotKeyFn(tenantID, planID)

	admitted, err := p.sem.Acquire(ctx, slotKey, jobID.String(), p.cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("semaphore acquire: %w", err)
	}
	if !admitted {
		return nil, coordination.ErrConcurrencyLimit
	}
	defer func() {
		if err := p.sem.Release(ctx, slotKey, jobID.String()); err != nil {
			p.log.Error("semaphore release failed", "slot_key", slotKey, "job_id", jobID, "error", err)
		}
	}()

	resourceKey := tenantID.String()
	holderID := "job-" + jobID.String()
	if err := coordination.AcquireWithRetry(ctx, p.locker, resourceKey, holderID, p.cfg.LockLease, p.cfg.LockRetryAttempts, p.cfg.LockRetryWait); err != nil {
		return nil, err
	}
	defer func() {
		if _, err := p.locker.Release(ctx, resourceKey, holderID); err != nil {
			p.log.Error("lock release failed", "resource", resourceKey, "error", err)
		}
	}()

	events, err := p.classifier.Classify(dbc, tenantID, connectorID, entityType, obs)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{JobID: jobID, Events: events}
	if len(events) == 0 {
		return result, nil
	}

	siblings := make([]string, 0, len(obs))
	for name := range obs {
		siblings = append(siblings, name)
	}
	sort.Strings(siblings)

	p.auditDriftDetected(dbc, tenantID, events)

	var firstErr error
	for _, event := range events {
		// Long batches must not look stale to the reconciler or lose the
		// tenant lock mid-write.
		if err := p.sem.Heartbeat(ctx, slotKey, jobID.String()); err != nil {
			p.log.Warn("semaphore heartbeat failed", "slot_key", slotKey, "job_id", jobID, "error", err)
		}
		if ok, err := p.locker.Renew(ctx, resourceKey, holderID, p.cfg.LockLease); err != nil || !ok {
			return result, fmt.Errorf("tenant lock lost mid-batch: %w", errors.Join(err, coordination.ErrLockContention))
		}

		suggestion, proposalErr := p.proposer.Propose(dbc, event, siblings)
		if proposalErr != nil && suggestion == nil {
			p.log.Error("proposal failed hard", "event_id", event.ID, "error", proposalErr)
			if firstErr == nil {
				firstErr = proposalErr
			}
			continue
		}

		decision, err := p.decider.Decide(dbc, event, suggestion, proposalErr)
		if err != nil {
			p.log.Error("decision failed", "event_id", event.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Decisions = append(result.Decisions, decision)
	}

	p.log.Info("observation processed",
		"tenant_id", tenantID,
		"entity_type", entityType,
		"events", len(events),
		"decisions", len(result.Decisions),
	)
	return result, firstErr
}

// SemaphoreState reports current admission occupancy for a tenant.
func (p *PipelineService) SemaphoreState(ctx context.Context, tenantID uuid.UUID, planID string) (coordination.SemaphoreState, error) {
	return p.sem.State(ctx, p.cfg.SlotKeyFn(tenantID, planID), p.cfg.SlotLimit)
}

func (p *PipelineService) auditDriftDetected(dbc dbctx.Context, tenantID uuid.UUID, events []*types.DriftEvent) {
	entries := make([]*types.AuditEntry, 0, len(events))
	for _, event := range events {
		refID := event.ID
		raw, _ := json.Marshal(map[string]any{
			"drift_type": string(event.DriftType),
			"severity":   string(event.Severity),
			"field":      event.FieldName,
			"entity":     event.EntityType,
		})
		entries = append(entries, &types.AuditEntry{
			ID:       uuid.New(),
			TenantID: tenantID,
			Actor:    types.DecidedBySystem,
			Action:   types.AuditDriftDetected,
			RefType:  "drift_event",
			RefID:    &refID,
			Detail:   datatypes.JSON(raw),
		})
	}
	if err := p.audit.Append(dbc, entries); err != nil {
		p.log.Error("audit append failed", "action", types.AuditDriftDetected, "error", err)
	}
}
