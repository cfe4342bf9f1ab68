package drift

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type SuggestionRepo interface {
	Create(dbc dbctx.Context, s *types.RepairSuggestion) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RepairSuggestion, error)
}

type suggestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSuggestionRepo(db *gorm.DB, baseLog *logger.Logger) SuggestionRepo {
	return &suggestionRepo{
		db:  db,
		log: baseLog.With("repo", "SuggestionRepo"),
	}
}

func (r *suggestionRepo) Create(dbc dbctx.Context, s *types.RepairSuggestion) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(s).Error
}

func (r *suggestionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RepairSuggestion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.RepairSuggestion
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

type DecisionRepo interface {
	// Upsert writes the decision for a suggestion. A HITL_QUEUED row is
	// overwritten when the waiting state resolves; terminal rows never change.
	Upsert(dbc dbctx.Context, d *types.RepairDecision) error
	GetBySuggestionID(dbc dbctx.Context, suggestionID uuid.UUID) (*types.RepairDecision, error)
	ListByTenant(dbc dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.RepairDecision, error)
}

type decisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecisionRepo(db *gorm.DB, baseLog *logger.Logger) DecisionRepo {
	return &decisionRepo{
		db:  db,
		log: baseLog.With("repo", "DecisionRepo"),
	}
}

func (r *decisionRepo) Upsert(dbc dbctx.Context, d *types.RepairDecision) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	d.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "suggestion_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"action", "reason", "decided_by", "decided_at", "updated_at"}),
		}).
		Create(d).Error
}

func (r *decisionRepo) GetBySuggestionID(dbc dbctx.Context, suggestionID uuid.UUID) (*types.RepairDecision, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if suggestionID == uuid.Nil {
		return nil, nil
	}
	var d types.RepairDecision
	err := transaction.WithContext(dbc.Ctx).
		Where("suggestion_id = ?", suggestionID).
		Limit(1).
		Find(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == uuid.Nil {
		return nil, nil
	}
	return &d, nil
}

func (r *decisionRepo) ListByTenant(dbc dbctx.Context, tenantID uuid.UUID, limit int) ([]*types.RepairDecision, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.RepairDecision
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ?", tenantID).
		Order("decided_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
