package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
)

func TestMemoryLineageApplyAndGet(t *testing.T) {
	t.Parallel()
	store := NewMemoryLineageStore()
	ctx := context.Background()
	tenantID, connectorID := uuid.New(), uuid.New()

	if !store.Degraded() {
		t.Fatalf("memory store must report degraded")
	}

	version, err := store.GraphVersion(ctx, tenantID)
	if err != nil {
		t.Fatalf("graph version: %v", err)
	}
	if !version.IsZero() {
		t.Fatalf("fresh tenant has a graph version: %s", version)
	}

	mapping := &types.FieldMapping{
		TenantID:    tenantID,
		ConnectorID: connectorID,
		EntityType:  "Account",
		FieldName:   "industry",
		Concept:     "company.industry",
		Confidence:  0.9,
		DecidedBy:   "system",
	}
	if err := store.ApplyMapping(ctx, mapping); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := store.GetMapping(ctx, tenantID, connectorID, "Account", "industry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Concept != "company.industry" {
		t.Fatalf("got = %+v", got)
	}

	version, err = store.GraphVersion(ctx, tenantID)
	if err != nil {
		t.Fatalf("graph version: %v", err)
	}
	if version.IsZero() {
		t.Fatalf("version not bumped after apply")
	}

	// Re-mapping the same field replaces the concept.
	mapping.Concept = "organization.sector"
	if err := store.ApplyMapping(ctx, mapping); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	got, err = store.GetMapping(ctx, tenantID, connectorID, "Account", "industry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Concept != "organization.sector" {
		t.Fatalf("concept not replaced: %+v", got)
	}

	// Other tenants see nothing.
	other, err := store.GetMapping(ctx, uuid.New(), connectorID, "Account", "industry")
	if err != nil {
		t.Fatalf("get other: %v", err)
	}
	if other != nil {
		t.Fatalf("cross-tenant leak: %+v", other)
	}
}
