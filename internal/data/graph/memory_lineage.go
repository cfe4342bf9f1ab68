package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
)

// memoryLineageStore is the process-local fallback used in tests and in
// degraded mode when no graph backend is configured. Not durable.
type memoryLineageStore struct {
	mu       sync.RWMutex
	mappings map[uuid.UUID]map[string]types.FieldMapping
	versions map[uuid.UUID]time.Time
}

func NewMemoryLineageStore() LineageStore {
	return &memoryLineageStore{
		mappings: make(map[uuid.UUID]map[string]types.FieldMapping),
		versions: make(map[uuid.UUID]time.Time),
	}
}

func (s *memoryLineageStore) Degraded() bool { return true }

func fieldKey(connectorID uuid.UUID, entityType, fieldName string) string {
	return fmt.Sprintf("%s/%s/%s", connectorID, entityType, fieldName)
}

func (s *memoryLineageStore) ApplyMapping(ctx context.Context, m *types.FieldMapping) error {
	_ = ctx
	if m == nil || m.TenantID == uuid.Nil {
		return fmt.Errorf("memory lineage: missing tenant")
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	byField := s.mappings[m.TenantID]
	if byField == nil {
		byField = make(map[string]types.FieldMapping)
		s.mappings[m.TenantID] = byField
	}
	m.UpdatedAt = now
	byField[fieldKey(m.ConnectorID, m.EntityType, m.FieldName)] = *m
	s.versions[m.TenantID] = now
	return nil
}

func (s *memoryLineageStore) GetMapping(ctx context.Context, tenantID, connectorID uuid.UUID, entityType, fieldName string) (*types.FieldMapping, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	byField := s.mappings[tenantID]
	if byField == nil {
		return nil, nil
	}
	m, ok := byField[fieldKey(connectorID, entityType, fieldName)]
	if !ok {
		return nil, nil
	}
	out := m
	return &out, nil
}

func (s *memoryLineageStore) GraphVersion(ctx context.Context, tenantID uuid.UUID) (time.Time, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[tenantID], nil
}
