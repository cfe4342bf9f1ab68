package drift

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type HITLStatus string

const (
	HITLPending  HITLStatus = "pending"
	HITLApproved HITLStatus = "approved"
	HITLDenied   HITLStatus = "denied"
	HITLExpired  HITLStatus = "expired"
)

// HITLQueueEntry holds a suggestion awaiting human judgment. One row per
// hitl_key; enqueueing again while pending refreshes expires_at instead of
// duplicating, and a later drift on the same key reuses the row.
type HITLQueueEntry struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	HitlKey      string     `gorm:"column:hitl_key;not null;uniqueIndex" json:"hitl_key"`
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ConnectorID  uuid.UUID  `gorm:"type:uuid;not null" json:"connector_id"`
	EntityType   string     `gorm:"column:entity_type;not null" json:"entity_type"`
	FieldName    string     `gorm:"column:field_name;not null" json:"field_name"`
	SuggestionID uuid.UUID  `gorm:"type:uuid;not null" json:"suggestion_id"`
	DriftEventID uuid.UUID  `gorm:"type:uuid;not null" json:"drift_event_id"`
	Status       HITLStatus `gorm:"column:status;not null;index" json:"status"`
	EnqueuedAt   time.Time  `gorm:"column:enqueued_at;not null" json:"enqueued_at"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`
	ResolvedAt   *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy   string     `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (HITLQueueEntry) TableName() string { return "hitl_queue_entry" }

// HitlKey derives the deterministic queue key for a drifted field.
func HitlKey(tenantID, connectorID uuid.UUID, entityType, fieldName string) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenantID, connectorID, entityType, fieldName)
}
