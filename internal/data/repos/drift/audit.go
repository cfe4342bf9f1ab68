package drift

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type AuditRepo interface {
	Append(dbc dbctx.Context, entries []*types.AuditEntry) error
	ListByTenant(dbc dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.AuditEntry, error)
}

type auditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
	return &auditRepo{
		db:  db,
		log: baseLog.With("repo", "AuditRepo"),
	}
}

func (r *auditRepo) Append(dbc dbctx.Context, entries []*types.AuditEntry) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entries) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&entries).Error
}

func (r *auditRepo) ListByTenant(dbc dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.AuditEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	var out []*types.AuditEntry
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
