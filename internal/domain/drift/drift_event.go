package drift

import (
	"time"

	"github.com/google/uuid"
)

type DriftType string

const (
	DriftFieldAdded            DriftType = "FIELD_ADDED"
	DriftFieldRemoved          DriftType = "FIELD_REMOVED"
	DriftTypeChanged           DriftType = "TYPE_CHANGED"
	DriftFieldRenamedCandidate DriftType = "FIELD_RENAMED_CANDIDATE"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// DriftEvent records one detected structural change for one field. Immutable
// after creation; retained indefinitely for audit.
type DriftEvent struct {
	ID                    uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID              uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ConnectorID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"connector_id"`
	EntityType            string     `gorm:"column:entity_type;not null;index" json:"entity_type"`
	FieldName             string     `gorm:"column:field_name;not null" json:"field_name"`
	DriftType             DriftType  `gorm:"column:drift_type;not null;index" json:"drift_type"`
	Severity              Severity   `gorm:"column:severity;not null" json:"severity"`
	PreviousFingerprintID *uuid.UUID `gorm:"type:uuid;column:previous_fingerprint_id" json:"previous_fingerprint_id,omitempty"`
	CurrentFingerprintID  uuid.UUID  `gorm:"type:uuid;column:current_fingerprint_id;not null" json:"current_fingerprint_id"`
	PreviousType          string     `gorm:"column:previous_type" json:"previous_type,omitempty"`
	CurrentType           string     `gorm:"column:current_type" json:"current_type,omitempty"`
	RenamedFrom           string     `gorm:"column:renamed_from" json:"renamed_from,omitempty"`
	DetectedAt            time.Time  `gorm:"column:detected_at;not null;index" json:"detected_at"`
	CreatedAt             time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (DriftEvent) TableName() string { return "drift_event" }
