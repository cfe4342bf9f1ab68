package db

import (
	"gorm.io/gorm"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Fingerprint history
		&types.SchemaFingerprint{},

		// Drift + repair lifecycle
		&types.DriftEvent{},
		&types.RepairSuggestion{},
		&types.RepairDecision{},

		// HITL queue
		&types.HITLQueueEntry{},

		// Audit trail
		&types.AuditEntry{},
	)
}
