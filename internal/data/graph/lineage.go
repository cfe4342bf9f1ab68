package graph

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
)

// LineageStore is the per-tenant lineage graph. Mutation happens only while
// the tenant's distributed lock is held; ApplyMapping persists durably before
// the caller releases the lock.
type LineageStore interface {
	// ApplyMapping upserts the MAPS_TO edge from a source field to a canonical
	// concept and bumps the tenant graph's last-write timestamp.
	ApplyMapping(ctx context.Context, m *types.FieldMapping) error
	// GetMapping returns the current mapping for a field, or nil when the
	// field is unmapped.
	GetMapping(ctx context.Context, tenantID, connectorID uuid.UUID, entityType, fieldName string) (*types.FieldMapping, error)
	// GraphVersion returns the tenant graph's last-write timestamp (zero when
	// the tenant has no graph yet).
	GraphVersion(ctx context.Context, tenantID uuid.UUID) (time.Time, error)
	// Degraded reports whether this store is the in-memory fallback rather
	// than the durable backend.
	Degraded() bool
}
