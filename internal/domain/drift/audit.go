package drift

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit actions.
const (
	AuditDriftDetected      = "drift_detected"
	AuditDecisionRecorded   = "decision_recorded"
	AuditHITLResolved       = "hitl_resolved"
	AuditHITLExpired        = "hitl_expired"
	AuditMappingApplied     = "mapping_applied"
	AuditStaleSlotReleased  = "stale_slot_released"
	AuditStaleLockRecovered = "stale_lock_recovered"
)

// AuditEntry is the append-only audit trail row. Never updated or deleted.
type AuditEntry struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Actor     string         `gorm:"column:actor;not null" json:"actor"`
	Action    string         `gorm:"column:action;not null;index" json:"action"`
	Reason    string         `gorm:"column:reason" json:"reason,omitempty"`
	RefType   string         `gorm:"column:ref_type;index" json:"ref_type,omitempty"`
	RefID     *uuid.UUID     `gorm:"type:uuid;column:ref_id;index" json:"ref_id,omitempty"`
	Detail    datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditEntry) TableName() string { return "drift_audit" }
