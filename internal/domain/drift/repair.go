package drift

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RepairSuggestion is the suggestion capability's answer for one drift event.
// Consumed exactly once by the decision engine.
type RepairSuggestion struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DriftEventID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"drift_event_id"`
	TenantID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	FieldName       string         `gorm:"column:field_name;not null" json:"field_name"`
	ProposedMapping string         `gorm:"column:proposed_mapping;not null" json:"proposed_mapping"`
	Confidence      float64        `gorm:"column:confidence;not null" json:"confidence"`
	SourceRationale string         `gorm:"column:source_rationale" json:"source_rationale,omitempty"`
	Context         datatypes.JSON `gorm:"column:context;type:jsonb" json:"context,omitempty"`
	ProducedAt      time.Time      `gorm:"column:produced_at;not null" json:"produced_at"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (RepairSuggestion) TableName() string { return "repair_suggestion" }

type DecisionAction string

const (
	ActionAutoApplied DecisionAction = "AUTO_APPLIED"
	ActionHITLQueued  DecisionAction = "HITL_QUEUED"
	ActionRejected    DecisionAction = "REJECTED"
)

// Reason strings recorded on terminal decisions. Every terminal decision
// carries one; a suggestion never disappears without an auditable outcome.
const (
	ReasonHighConfidence      = "high_confidence"
	ReasonAwaitingHuman       = "awaiting_human_review"
	ReasonLowConfidence       = "low_confidence"
	ReasonProposalUnavailable = "proposal_unavailable"
	ReasonHumanApproved       = "human_approved"
	ReasonHumanDenied         = "human_denied"
	ReasonExpired             = "expired"
)

// RepairDecision is tied 1:1 to a RepairSuggestion. AUTO_APPLIED and REJECTED
// are terminal; HITL_QUEUED is a waiting state updated in place on resolution.
type RepairDecision struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SuggestionID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"suggestion_id"`
	DriftEventID uuid.UUID      `gorm:"type:uuid;not null;index" json:"drift_event_id"`
	TenantID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Action       DecisionAction `gorm:"column:action;not null;index" json:"action"`
	Reason       string         `gorm:"column:reason;not null" json:"reason"`
	DecidedBy    string         `gorm:"column:decided_by;not null" json:"decided_by"`
	DecidedAt    time.Time      `gorm:"column:decided_at;not null" json:"decided_at"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (RepairDecision) TableName() string { return "repair_decision" }

// DecidedBySystem is the decided_by value for engine-made decisions.
const DecidedBySystem = "system"

// Terminal reports whether the decision can no longer change.
func (d *RepairDecision) Terminal() bool {
	return d != nil && (d.Action == ActionAutoApplied || d.Action == ActionRejected)
}
