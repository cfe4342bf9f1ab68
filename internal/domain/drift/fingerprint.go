package drift

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FieldObservation is one observed field from a connector snapshot. Input only,
// never persisted directly.
type FieldObservation struct {
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// FieldSignature is the canonical per-field entry inside a fingerprint,
// ordered by name.
type FieldSignature struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// SchemaFingerprint is the stored structural signature of an entity's schema.
// Rows are append-only: a new observation supersedes the previous row, it never
// mutates it.
type SchemaFingerprint struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_fingerprint_scope" json:"tenant_id"`
	ConnectorID uuid.UUID      `gorm:"type:uuid;not null;index:idx_fingerprint_scope" json:"connector_id"`
	EntityType  string         `gorm:"column:entity_type;not null;index:idx_fingerprint_scope" json:"entity_type"`
	Hash        string         `gorm:"column:hash;not null;index" json:"hash"`
	Fields      datatypes.JSON `gorm:"column:fields;type:jsonb;not null" json:"fields"`
	ObservedAt  time.Time      `gorm:"column:observed_at;not null;index" json:"observed_at"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (SchemaFingerprint) TableName() string { return "schema_fingerprint" }
