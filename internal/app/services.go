package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	"github.com/driftmend/driftmend-backend/internal/data/graph"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/engine"
	httpH "github.com/driftmend/driftmend-backend/internal/http/handlers"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type Services struct {
	Semaphore  coordination.Semaphore
	Locker     coordination.Locker
	Lineage    graph.LineageStore
	Policy     engine.PolicyResolver
	Pipeline   *engine.PipelineService
	HITL       *engine.HITLService
	Reconciler *coordination.Reconciler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	var sem coordination.Semaphore
	var locker coordination.Locker
	if clients.Redis != nil {
		sem = coordination.NewRedisSemaphore(clients.Redis.RDB, log)
		locker = coordination.NewRedisLocker(clients.Redis.RDB, log)
	} else {
		sem = coordination.NewMemorySemaphore()
		locker = coordination.NewMemoryLocker()
	}

	var lineage graph.LineageStore
	if clients.Neo4j != nil {
		store, err := graph.NewNeo4jLineageStore(clients.Neo4j, log)
		if err != nil {
			return Services{}, err
		}
		lineage = store
	} else {
		lineage = graph.NewMemoryLineageStore()
	}

	policy := engine.NewPolicyResolverFromEnv(log)

	classifier := engine.NewClassifier(reposet.Fingerprints, reposet.Events, log)
	proposer := engine.NewProposalGenerator(clients.Suggest, reposet.Suggestions, lineage, log)
	decider := engine.NewDecisionEngine(policy, reposet.Decisions, reposet.HITL, reposet.Audit, lineage, log)

	pipeline := engine.NewPipelineService(
		engine.PipelineConfig{
			SlotLimit:         cfg.SlotLimit,
			SlotKeyFn:         cfg.SlotKeyFn(),
			LockLease:         cfg.LockLease,
			LockRetryAttempts: cfg.LockRetryAttempts,
			LockRetryWait:     cfg.LockRetryWait,
		},
		sem, locker, classifier, proposer, decider, reposet.Audit, log,
	)

	hitl := engine.NewHITLService(
		engine.HITLConfig{
			LockLease:         cfg.LockLease,
			LockRetryAttempts: cfg.LockRetryAttempts,
			LockRetryWait:     cfg.LockRetryWait,
			SweepInterval:     cfg.HITLSweepInterval,
		},
		reposet.HITL, reposet.Suggestions, reposet.Decisions, reposet.Audit, lineage, locker, log,
	)

	reconciler := coordination.NewReconciler(sem, log, cfg.StaleJobTimeout, cfg.ReconcileInterval)
	reconciler.OnForcedRelease = forcedReleaseAuditor(reposet, log)

	return Services{
		Semaphore:  sem,
		Locker:     locker,
		Lineage:    lineage,
		Policy:     policy,
		Pipeline:   pipeline,
		HITL:       hitl,
		Reconciler: reconciler,
	}, nil
}

// forcedReleaseAuditor records each reconciler eviction in the audit trail.
// The slot key starts with the tenant UUID under both key shapes.
func forcedReleaseAuditor(reposet Repos, log *logger.Logger) func(ctx context.Context, slotKey string, jobIDs []string) {
	return func(ctx context.Context, slotKey string, jobIDs []string) {
		tenantID, err := uuid.Parse(strings.SplitN(slotKey, ":", 2)[0])
		if err != nil {
			log.Warn("unparseable slot key in forced release", "slot_key", slotKey)
			return
		}
		entries := make([]*types.AuditEntry, 0, len(jobIDs))
		for _, jobID := range jobIDs {
			detail := datatypes.JSON([]byte(`{"job_id":"` + jobID + `","slot_key":"` + slotKey + `"}`))
			entries = append(entries, &types.AuditEntry{
				ID:       uuid.New(),
				TenantID: tenantID,
				Actor:    types.DecidedBySystem,
				Action:   types.AuditStaleSlotReleased,
				RefType:  "semaphore_slot",
				Detail:   detail,
			})
		}
		if err := reposet.Audit.Append(dbctx.Context{Ctx: ctx}, entries); err != nil {
			log.Error("audit append failed", "action", types.AuditStaleSlotReleased, "error", err)
		}
	}
}

// capabilities summarizes which concerns run on their real backing store.
func capabilities(services Services, suggestLive bool) httpH.Capabilities {
	caps := httpH.Capabilities{
		Coordination: "redis",
		Lineage:      "neo4j",
		Suggest:      "http",
	}
	if services.Semaphore.Degraded() {
		caps.Coordination = "degraded_memory"
	}
	if services.Lineage.Degraded() {
		caps.Lineage = "degraded_memory"
	}
	if !suggestLive {
		caps.Suggest = "unavailable"
	}
	return caps
}
