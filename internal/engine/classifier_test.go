package engine

import (
	"testing"

	"github.com/google/uuid"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
)

func newTestClassifier(t *testing.T) (*Classifier, *fakeFingerprintRepo, *fakeEventRepo) {
	t.Helper()
	fps := &fakeFingerprintRepo{}
	events := &fakeEventRepo{}
	return NewClassifier(fps, events, testLogger(t)), fps, events
}

func classify(t *testing.T, c *Classifier, tenantID, connectorID uuid.UUID, obs map[string]types.FieldObservation) []*types.DriftEvent {
	t.Helper()
	events, err := c.Classify(dbctx.Context{}, tenantID, connectorID, "Account", obs)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	return events
}

func TestClassifyFirstObservationIsBaseline(t *testing.T) {
	t.Parallel()
	c, fps, _ := newTestClassifier(t)
	tenantID, connectorID := uuid.New(), uuid.New()

	events := classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":   {Type: "string"},
		"name": {Type: "string", Nullable: true},
	})
	if len(events) != 0 {
		t.Fatalf("baseline produced %d events, want 0", len(events))
	}
	if len(fps.fps) != 1 {
		t.Fatalf("baseline stored %d fingerprints, want 1", len(fps.fps))
	}
}

func TestClassifyUnchangedSchemaWritesNothing(t *testing.T) {
	t.Parallel()
	c, fps, _ := newTestClassifier(t)
	tenantID, connectorID := uuid.New(), uuid.New()

	obs := map[string]types.FieldObservation{
		"id":   {Type: "string"},
		"name": {Type: "string", Nullable: true},
	}
	classify(t, c, tenantID, connectorID, obs)
	events := classify(t, c, tenantID, connectorID, obs)

	if len(events) != 0 {
		t.Fatalf("unchanged schema produced %d events, want 0", len(events))
	}
	if len(fps.fps) != 1 {
		t.Fatalf("unchanged schema stored a new fingerprint: %d total", len(fps.fps))
	}
}

func TestClassifyFieldAdded(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClassifier(t)
	tenantID, connectorID := uuid.New(), uuid.New()

	classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":   {Type: "string"},
		"name": {Type: "string", Nullable: true},
	})
	events := classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":       {Type: "string"},
		"name":     {Type: "string", Nullable: true},
		"industry": {Type: "string", Nullable: true},
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.DriftType != types.DriftFieldAdded {
		t.Fatalf("drift type = %s, want %s", ev.DriftType, types.DriftFieldAdded)
	}
	if ev.FieldName != "industry" {
		t.Fatalf("field = %s, want industry", ev.FieldName)
	}
	if ev.Severity != types.SeverityMedium {
		t.Fatalf("severity = %s, want %s", ev.Severity, types.SeverityMedium)
	}
	if ev.TenantID != tenantID || ev.ConnectorID != connectorID || ev.EntityType != "Account" {
		t.Fatalf("event scope not stamped: %+v", ev)
	}
	if ev.PreviousFingerprintID == nil || ev.CurrentFingerprintID == uuid.Nil {
		t.Fatalf("fingerprint linkage missing: %+v", ev)
	}
}

func TestClassifyRemovedAndTypeChangedSeverity(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClassifier(t)
	tenantID, connectorID := uuid.New(), uuid.New()

	classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":     {Type: "string"},
		"email":  {Type: "string"},                 // required
		"phone":  {Type: "string", Nullable: true}, // optional
		"amount": {Type: "decimal"},                // required
	})
	events := classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":     {Type: "string"},
		"amount": {Type: "string"}, // type changed on required field
	})

	bySeverity := map[string]types.Severity{}
	byType := map[string]types.DriftType{}
	for _, ev := range events {
		bySeverity[ev.FieldName] = ev.Severity
		byType[ev.FieldName] = ev.DriftType
	}

	if byType["email"] != types.DriftFieldRemoved || bySeverity["email"] != types.SeverityHigh {
		t.Fatalf("required removal: type=%s severity=%s", byType["email"], bySeverity["email"])
	}
	if byType["phone"] != types.DriftFieldRemoved || bySeverity["phone"] != types.SeverityLow {
		t.Fatalf("optional removal: type=%s severity=%s", byType["phone"], bySeverity["phone"])
	}
	if byType["amount"] != types.DriftTypeChanged || bySeverity["amount"] != types.SeverityHigh {
		t.Fatalf("required type change: type=%s severity=%s", byType["amount"], bySeverity["amount"])
	}
}

func TestClassifyRenameCandidateCollapsesPair(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClassifier(t)
	tenantID, connectorID := uuid.New(), uuid.New()

	classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":           {Type: "string"},
		"account_name": {Type: "string"},
	})
	events := classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":        {Type: "string"},
		"acct_name": {Type: "string"},
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (collapsed rename)", len(events))
	}
	ev := events[0]
	if ev.DriftType != types.DriftFieldRenamedCandidate {
		t.Fatalf("drift type = %s, want %s", ev.DriftType, types.DriftFieldRenamedCandidate)
	}
	if ev.FieldName != "acct_name" || ev.RenamedFrom != "account_name" {
		t.Fatalf("rename linkage wrong: field=%s renamed_from=%s", ev.FieldName, ev.RenamedFrom)
	}
	if ev.Severity != types.SeverityMedium {
		t.Fatalf("severity = %s, want %s", ev.Severity, types.SeverityMedium)
	}
}

func TestClassifyDifferentTypesDoNotCollapseToRename(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClassifier(t)
	tenantID, connectorID := uuid.New(), uuid.New()

	classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":    {Type: "string"},
		"count": {Type: "integer"},
	})
	events := classify(t, c, tenantID, connectorID, map[string]types.FieldObservation{
		"id":    {Type: "string"},
		"label": {Type: "string", Nullable: true},
	})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (no rename collapse across types)", len(events))
	}
	for _, ev := range events {
		if ev.DriftType == types.DriftFieldRenamedCandidate {
			t.Fatalf("unexpected rename candidate for %s", ev.FieldName)
		}
	}
}
