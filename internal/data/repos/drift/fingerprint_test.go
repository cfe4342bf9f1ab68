package drift

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/driftmend/driftmend-backend/internal/data/repos/testutil"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
)

func seedFingerprint(tenantID, connectorID uuid.UUID, hash string, observedAt time.Time) *types.SchemaFingerprint {
	return &types.SchemaFingerprint{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ConnectorID: connectorID,
		EntityType:  "Account",
		Hash:        hash,
		Fields:      datatypes.JSON([]byte(`[{"name":"id","type":"string","nullable":false}]`)),
		ObservedAt:  observedAt,
	}
}

func TestFingerprintGetCurrentReturnsLatest(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewFingerprintRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	tenantID, connectorID := uuid.New(), uuid.New()

	current, err := repo.GetCurrent(dbc, tenantID, connectorID, "Account")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current != nil {
		t.Fatalf("unseen entity has a fingerprint: %+v", current)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i, hash := range []string{"hash-old", "hash-mid", "hash-new"} {
		fp := seedFingerprint(tenantID, connectorID, hash, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(dbc, fp); err != nil {
			t.Fatalf("create %s: %v", hash, err)
		}
	}

	current, err = repo.GetCurrent(dbc, tenantID, connectorID, "Account")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current == nil || current.Hash != "hash-new" {
		t.Fatalf("current = %+v, want hash-new", current)
	}

	history, err := repo.History(dbc, tenantID, connectorID, "Account", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Hash != "hash-new" || history[1].Hash != "hash-mid" {
		t.Fatalf("history order wrong: %+v", history)
	}
}

func TestFingerprintScopeIsolation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewFingerprintRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	tenantA, tenantB := uuid.New(), uuid.New()
	connectorID := uuid.New()
	now := time.Now().UTC()

	if err := repo.Create(dbc, seedFingerprint(tenantA, connectorID, "hash-a", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(dbc, seedFingerprint(tenantB, connectorID, "hash-b", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	current, err := repo.GetCurrent(dbc, tenantA, connectorID, "Account")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current == nil || current.Hash != "hash-a" {
		t.Fatalf("tenant A sees %+v", current)
	}
}

func TestDecisionUpsertOverwritesBySuggestion(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewDecisionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	suggestionID := uuid.New()
	first := &types.RepairDecision{
		ID:           uuid.New(),
		SuggestionID: suggestionID,
		DriftEventID: uuid.New(),
		TenantID:     uuid.New(),
		Action:       types.ActionHITLQueued,
		Reason:       types.ReasonAwaitingHuman,
		DecidedBy:    types.DecidedBySystem,
		DecidedAt:    time.Now().UTC(),
	}
	if err := repo.Upsert(dbc, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// The waiting state resolves to a terminal action on the same row.
	second := &types.RepairDecision{
		ID:           uuid.New(),
		SuggestionID: suggestionID,
		DriftEventID: first.DriftEventID,
		TenantID:     first.TenantID,
		Action:       types.ActionAutoApplied,
		Reason:       types.ReasonHumanApproved,
		DecidedBy:    "ops@example.com",
		DecidedAt:    time.Now().UTC(),
	}
	if err := repo.Upsert(dbc, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	stored, err := repo.GetBySuggestionID(dbc, suggestionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored == nil || stored.Action != types.ActionAutoApplied || stored.DecidedBy != "ops@example.com" {
		t.Fatalf("stored = %+v", stored)
	}

	all, err := repo.ListByTenant(dbc, first.TenantID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("decisions per suggestion = %d, want 1", len(all))
	}
}
