package drift

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type DriftEventRepo interface {
	Create(dbc dbctx.Context, events []*types.DriftEvent) ([]*types.DriftEvent, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DriftEvent, error)
	ListByTenant(dbc dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.DriftEvent, error)
}

type driftEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDriftEventRepo(db *gorm.DB, baseLog *logger.Logger) DriftEventRepo {
	return &driftEventRepo{
		db:  db,
		log: baseLog.With("repo", "DriftEventRepo"),
	}
}

func (r *driftEventRepo) Create(dbc dbctx.Context, events []*types.DriftEvent) ([]*types.DriftEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.DriftEvent{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *driftEventRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DriftEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var ev types.DriftEvent
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&ev).Error
	if err != nil {
		return nil, err
	}
	if ev.ID == uuid.Nil {
		return nil, nil
	}
	return &ev, nil
}

func (r *driftEventRepo) ListByTenant(dbc dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.DriftEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.DriftEvent
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ?", tenantID).
		Order("detected_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
