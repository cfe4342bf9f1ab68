package engine

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

// -------------------- in-memory repo fakes --------------------

type fakeFingerprintRepo struct {
	mu  sync.Mutex
	fps []*types.SchemaFingerprint
}

func (r *fakeFingerprintRepo) Create(_ dbctx.Context, fp *types.SchemaFingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *fp
	r.fps = append(r.fps, &cp)
	return nil
}

func (r *fakeFingerprintRepo) GetCurrent(_ dbctx.Context, tenantID, connectorID uuid.UUID, entityType string) (*types.SchemaFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.SchemaFingerprint
	for _, fp := range r.fps {
		if fp.TenantID != tenantID || fp.ConnectorID != connectorID || fp.EntityType != entityType {
			continue
		}
		if latest == nil || fp.ObservedAt.After(latest.ObservedAt) {
			latest = fp
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeFingerprintRepo) History(_ dbctx.Context, tenantID, connectorID uuid.UUID, entityType string, limit int) ([]*types.SchemaFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.SchemaFingerprint
	for _, fp := range r.fps {
		if fp.TenantID == tenantID && fp.ConnectorID == connectorID && fp.EntityType == entityType {
			cp := *fp
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*types.DriftEvent
}

func (r *fakeEventRepo) Create(_ dbctx.Context, events []*types.DriftEvent) ([]*types.DriftEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return events, nil
}

func (r *fakeEventRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.DriftEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) ListByTenant(_ dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.DriftEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.DriftEvent
	for _, ev := range r.events {
		if ev.TenantID == tenantID {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSuggestionRepo struct {
	mu          sync.Mutex
	suggestions map[uuid.UUID]*types.RepairSuggestion
}

func newFakeSuggestionRepo() *fakeSuggestionRepo {
	return &fakeSuggestionRepo{suggestions: make(map[uuid.UUID]*types.RepairSuggestion)}
}

func (r *fakeSuggestionRepo) Create(_ dbctx.Context, s *types.RepairSuggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.suggestions[s.ID] = &cp
	return nil
}

func (r *fakeSuggestionRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.RepairSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

type fakeDecisionRepo struct {
	mu        sync.Mutex
	decisions map[uuid.UUID]*types.RepairDecision
}

func newFakeDecisionRepo() *fakeDecisionRepo {
	return &fakeDecisionRepo{decisions: make(map[uuid.UUID]*types.RepairDecision)}
}

func (r *fakeDecisionRepo) Upsert(_ dbctx.Context, d *types.RepairDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.decisions[d.SuggestionID] = &cp
	return nil
}

func (r *fakeDecisionRepo) GetBySuggestionID(_ dbctx.Context, suggestionID uuid.UUID) (*types.RepairDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decisions[suggestionID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDecisionRepo) ListByTenant(_ dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.RepairDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.RepairDecision
	for _, d := range r.decisions {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeHITLRepo struct {
	mu      sync.Mutex
	entries map[string]*types.HITLQueueEntry
}

func newFakeHITLRepo() *fakeHITLRepo {
	return &fakeHITLRepo{entries: make(map[string]*types.HITLQueueEntry)}
}

func (r *fakeHITLRepo) Upsert(_ dbctx.Context, entry *types.HITLQueueEntry) (*types.HITLQueueEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := r.entries[entry.HitlKey]
	if ok && existing.Status == types.HITLPending && existing.ExpiresAt.After(now) {
		existing.ExpiresAt = entry.ExpiresAt
		cp := *existing
		return &cp, false, nil
	}
	cp := *entry
	if ok {
		cp.ID = existing.ID
	}
	cp.Status = types.HITLPending
	cp.ResolvedAt = nil
	cp.ResolvedBy = ""
	r.entries[entry.HitlKey] = &cp
	out := cp
	return &out, true, nil
}

func (r *fakeHITLRepo) GetByKey(_ dbctx.Context, hitlKey string) (*types.HITLQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[hitlKey]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (r *fakeHITLRepo) ListPending(_ dbctx.Context, tenantID uuid.UUID) ([]*types.HITLQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.HITLQueueEntry
	for _, entry := range r.entries {
		if entry.TenantID == tenantID && entry.Status == types.HITLPending {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeHITLRepo) Resolve(_ dbctx.Context, hitlKey string, status types.HITLStatus, resolvedBy string) (*types.HITLQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[hitlKey]
	if !ok || entry.Status != types.HITLPending {
		return nil, nil
	}
	now := time.Now().UTC()
	entry.Status = status
	entry.ResolvedAt = &now
	entry.ResolvedBy = resolvedBy
	cp := *entry
	return &cp, nil
}

func (r *fakeHITLRepo) ListExpiredPending(_ dbctx.Context, now time.Time, limit int) ([]*types.HITLQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.HITLQueueEntry
	for _, entry := range r.entries {
		if entry.Status == types.HITLPending && !entry.ExpiresAt.After(now) {
			cp := *entry
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeHITLRepo) MarkExpired(_ dbctx.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.ID == id && entry.Status == types.HITLPending {
			entry.Status = types.HITLExpired
			entry.ResolvedAt = &now
			return true, nil
		}
	}
	return false, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*types.AuditEntry
}

func (r *fakeAuditRepo) Append(_ dbctx.Context, entries []*types.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *fakeAuditRepo) ListByTenant(_ dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.AuditEntry
	for _, entry := range r.entries {
		if entry.TenantID == tenantID {
			out = append(out, entry)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Action)
	}
	return out
}
