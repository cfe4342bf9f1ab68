package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	"github.com/driftmend/driftmend-backend/internal/data/graph"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/suggest"
)

func newTestPipeline(t *testing.T, cfg PipelineConfig, client suggest.Client) (*PipelineService, coordination.Semaphore, *fakeDecisionRepo, *fakeHITLRepo) {
	t.Helper()
	sem := coordination.NewMemorySemaphore()
	locker := coordination.NewMemoryLocker()
	lineage := graph.NewMemoryLineageStore()
	fps := &fakeFingerprintRepo{}
	events := &fakeEventRepo{}
	suggestions := newFakeSuggestionRepo()
	decisions := newFakeDecisionRepo()
	hitl := newFakeHITLRepo()
	audit := &fakeAuditRepo{}
	log := testLogger(t)

	classifier := NewClassifier(fps, events, log)
	proposer := NewProposalGenerator(client, suggestions, lineage, log)
	decider := NewDecisionEngine(NewStaticPolicyResolver(DefaultThresholds(), nil), decisions, hitl, audit, lineage, log)
	pipeline := NewPipelineService(cfg, sem, locker, classifier, proposer, decider, audit, log)
	return pipeline, sem, decisions, hitl
}

func TestIngestObservationEndToEnd(t *testing.T) {
	t.Parallel()
	client := suggest.NewMock(suggest.Suggestion{Mapping: "company.industry", Confidence: 0.92, Rationale: "exact alias"})
	pipeline, sem, decisions, _ := newTestPipeline(t, PipelineConfig{}, client)

	tenantID, connectorID := uuid.New(), uuid.New()
	dbc := dbctx.Context{Ctx: context.Background()}

	// Baseline observation: no drift yet.
	result, err := pipeline.IngestObservation(dbc, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id":   {Type: "string"},
		"name": {Type: "string", Nullable: true},
	})
	if err != nil {
		t.Fatalf("baseline ingest: %v", err)
	}
	if len(result.Events) != 0 || len(result.Decisions) != 0 {
		t.Fatalf("baseline produced events=%d decisions=%d", len(result.Events), len(result.Decisions))
	}

	// Second observation gains a field.
	result, err = pipeline.IngestObservation(dbc, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id":       {Type: "string"},
		"name":     {Type: "string", Nullable: true},
		"industry": {Type: "string", Nullable: true},
	})
	if err != nil {
		t.Fatalf("drift ingest: %v", err)
	}
	if len(result.Events) != 1 || len(result.Decisions) != 1 {
		t.Fatalf("drift produced events=%d decisions=%d", len(result.Events), len(result.Decisions))
	}
	if result.Decisions[0].Action != types.ActionAutoApplied {
		t.Fatalf("action = %s, want %s", result.Decisions[0].Action, types.ActionAutoApplied)
	}
	if got, _ := decisions.GetBySuggestionID(dbc, result.Decisions[0].SuggestionID); got == nil {
		t.Fatalf("decision not persisted")
	}

	// Slot released on completion.
	state, err := sem.State(context.Background(), tenantID.String(), 5)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.ActiveCount != 0 {
		t.Fatalf("active slots after ingest = %d, want 0", state.ActiveCount)
	}
}

func TestIngestObservationQueuesMidConfidence(t *testing.T) {
	t.Parallel()
	client := suggest.NewMock(suggest.Suggestion{Mapping: "company.industry", Confidence: 0.70})
	pipeline, _, _, hitl := newTestPipeline(t, PipelineConfig{}, client)

	tenantID, connectorID := uuid.New(), uuid.New()
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := pipeline.IngestObservation(dbc, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id": {Type: "string"},
	}); err != nil {
		t.Fatalf("baseline ingest: %v", err)
	}
	result, err := pipeline.IngestObservation(dbc, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id":       {Type: "string"},
		"industry": {Type: "string", Nullable: true},
	})
	if err != nil {
		t.Fatalf("drift ingest: %v", err)
	}
	if result.Decisions[0].Action != types.ActionHITLQueued {
		t.Fatalf("action = %s, want %s", result.Decisions[0].Action, types.ActionHITLQueued)
	}

	pending, err := hitl.ListPending(dbc, tenantID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending entries = %d, want 1", len(pending))
	}
}

func TestIngestObservationRejectsWhenSaturated(t *testing.T) {
	t.Parallel()
	client := suggest.NewMock(suggest.Suggestion{Mapping: "x", Confidence: 0.9})
	pipeline, sem, _, _ := newTestPipeline(t, PipelineConfig{SlotLimit: 1}, client)

	tenantID, connectorID := uuid.New(), uuid.New()

	// Occupy the only slot.
	ok, err := sem.Acquire(context.Background(), tenantID.String(), "job-held", 1)
	if err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}

	_, err = pipeline.IngestObservation(dbctx.Context{Ctx: context.Background()}, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id": {Type: "string"},
	})
	if !errors.Is(err, coordination.ErrConcurrencyLimit) {
		t.Fatalf("got %v, want ErrConcurrencyLimit", err)
	}

	// Another tenant is unaffected.
	otherTenant := uuid.New()
	if _, err := pipeline.IngestObservation(dbctx.Context{Ctx: context.Background()}, otherTenant, connectorID, "Account", "", map[string]types.FieldObservation{
		"id": {Type: "string"},
	}); err != nil {
		t.Fatalf("other tenant ingest: %v", err)
	}
}

func TestIngestObservationValidatesInput(t *testing.T) {
	t.Parallel()
	client := suggest.NewMock(suggest.Suggestion{Mapping: "x", Confidence: 0.9})
	pipeline, _, _, _ := newTestPipeline(t, PipelineConfig{}, client)

	dbc := dbctx.Context{Ctx: context.Background()}
	if _, err := pipeline.IngestObservation(dbc, uuid.Nil, uuid.New(), "Account", "", map[string]types.FieldObservation{"id": {Type: "string"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil tenant: got %v, want ErrValidation", err)
	}
	if _, err := pipeline.IngestObservation(dbc, uuid.New(), uuid.New(), "", "", map[string]types.FieldObservation{"id": {Type: "string"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty entity: got %v, want ErrValidation", err)
	}
	if _, err := pipeline.IngestObservation(dbc, uuid.New(), uuid.New(), "Account", "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty fields: got %v, want ErrValidation", err)
	}
}

func TestIngestObservationSurvivesSuggestOutage(t *testing.T) {
	t.Parallel()
	client := suggest.NewUnavailable()
	pipeline, _, decisions, _ := newTestPipeline(t, PipelineConfig{}, client)

	tenantID, connectorID := uuid.New(), uuid.New()
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := pipeline.IngestObservation(dbc, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id": {Type: "string"},
	}); err != nil {
		t.Fatalf("baseline ingest: %v", err)
	}
	result, err := pipeline.IngestObservation(dbc, tenantID, connectorID, "Account", "", map[string]types.FieldObservation{
		"id":       {Type: "string"},
		"industry": {Type: "string", Nullable: true},
	})
	if err != nil {
		t.Fatalf("drift ingest during outage: %v", err)
	}
	if len(result.Decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(result.Decisions))
	}
	d := result.Decisions[0]
	if d.Action != types.ActionRejected || d.Reason != types.ReasonProposalUnavailable {
		t.Fatalf("decision = %s/%s", d.Action, d.Reason)
	}
	if got, _ := decisions.GetBySuggestionID(dbc, d.SuggestionID); got == nil {
		t.Fatalf("outage decision not persisted")
	}
}
