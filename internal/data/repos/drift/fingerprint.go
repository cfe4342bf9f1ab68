package drift

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type FingerprintRepo interface {
	Create(dbc dbctx.Context, fp *types.SchemaFingerprint) error
	GetCurrent(dbc dbctx.Context, tenantID, connectorID uuid.UUID, entityType string) (*types.SchemaFingerprint, error)
	History(dbc dbctx.Context, tenantID, connectorID uuid.UUID, entityType string, limit int) ([]*types.SchemaFingerprint, error)
}

type fingerprintRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFingerprintRepo(db *gorm.DB, baseLog *logger.Logger) FingerprintRepo {
	return &fingerprintRepo{
		db:  db,
		log: baseLog.With("repo", "FingerprintRepo"),
	}
}

func (r *fingerprintRepo) Create(dbc dbctx.Context, fp *types.SchemaFingerprint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(fp).Error
}

// GetCurrent returns the latest stored fingerprint for the scope, or nil when
// the entity has never been observed.
func (r *fingerprintRepo) GetCurrent(dbc dbctx.Context, tenantID, connectorID uuid.UUID, entityType string) (*types.SchemaFingerprint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tenantID == uuid.Nil || connectorID == uuid.Nil || entityType == "" {
		return nil, nil
	}
	var fp types.SchemaFingerprint
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND connector_id = ? AND entity_type = ?", tenantID, connectorID, entityType).
		Order("observed_at DESC").
		Limit(1).
		Find(&fp).Error
	if err != nil {
		return nil, err
	}
	if fp.ID == uuid.Nil {
		return nil, nil
	}
	return &fp, nil
}

func (r *fingerprintRepo) History(dbc dbctx.Context, tenantID, connectorID uuid.UUID, entityType string, limit int) ([]*types.SchemaFingerprint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.SchemaFingerprint
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND connector_id = ? AND entity_type = ?", tenantID, connectorID, entityType).
		Order("observed_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
