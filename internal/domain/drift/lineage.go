package drift

import (
	"time"

	"github.com/google/uuid"
)

// FieldMapping is one lineage edge from a source field to a canonical concept.
// Mutated only while the tenant's distributed lock is held.
type FieldMapping struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	ConnectorID uuid.UUID `json:"connector_id"`
	EntityType  string    `json:"entity_type"`
	FieldName   string    `json:"field_name"`
	Concept     string    `json:"concept"`
	Confidence  float64   `json:"confidence"`
	DecidedBy   string    `json:"decided_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}
