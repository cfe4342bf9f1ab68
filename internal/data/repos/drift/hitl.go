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

type HITLRepo interface {
	// Upsert enqueues an entry keyed by hitl_key. An existing pending,
	// unexpired entry only has its expires_at refreshed (no duplicate); a
	// terminal or expired row is reused for the new suggestion. Returns the
	// live entry and whether a new pending entry came into existence.
	Upsert(dbc dbctx.Context, entry *types.HITLQueueEntry) (*types.HITLQueueEntry, bool, error)
	GetByKey(dbc dbctx.Context, hitlKey string) (*types.HITLQueueEntry, error)
	ListPending(dbc dbctx.Context, tenantID uuid.UUID) ([]*types.HITLQueueEntry, error)
	// Resolve transitions a pending entry to approved/denied. Returns nil when
	// no pending entry exists for the key.
	Resolve(dbc dbctx.Context, hitlKey string, status types.HITLStatus, resolvedBy string) (*types.HITLQueueEntry, error)
	// ListExpiredPending returns pending entries whose expires_at is past.
	ListExpiredPending(dbc dbctx.Context, now time.Time, limit int) ([]*types.HITLQueueEntry, error)
	// MarkExpired flips a pending entry to expired; false when the entry was
	// resolved or refreshed concurrently.
	MarkExpired(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error)
}

type hitlRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHITLRepo(db *gorm.DB, baseLog *logger.Logger) HITLRepo {
	return &hitlRepo{
		db:  db,
		log: baseLog.With("repo", "HITLRepo"),
	}
}

func (r *hitlRepo) Upsert(dbc dbctx.Context, entry *types.HITLQueueEntry) (*types.HITLQueueEntry, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now().UTC()
	var out *types.HITLQueueEntry
	created := false

	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var existing types.HITLQueueEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("hitl_key = ?", entry.HitlKey).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return err
		}

		if existing.ID == uuid.Nil {
			entry.Status = types.HITLPending
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
			out = entry
			created = true
			return nil
		}

		if existing.Status == types.HITLPending && existing.ExpiresAt.After(now) {
			// Live entry: refresh the TTL, keep the original suggestion.
			updates := map[string]interface{}{
				"expires_at": entry.ExpiresAt,
				"updated_at": now,
			}
			if err := tx.Model(&types.HITLQueueEntry{}).
				Where("id = ?", existing.ID).
				Updates(updates).Error; err != nil {
				return err
			}
			existing.ExpiresAt = entry.ExpiresAt
			out = &existing
			return nil
		}

		// Terminal or lapsed row: reuse it for the new suggestion.
		updates := map[string]interface{}{
			"suggestion_id":  entry.SuggestionID,
			"drift_event_id": entry.DriftEventID,
			"status":         types.HITLPending,
			"enqueued_at":    entry.EnqueuedAt,
			"expires_at":     entry.ExpiresAt,
			"resolved_at":    nil,
			"resolved_by":    "",
			"updated_at":     now,
		}
		if err := tx.Model(&types.HITLQueueEntry{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		existing.SuggestionID = entry.SuggestionID
		existing.DriftEventID = entry.DriftEventID
		existing.Status = types.HITLPending
		existing.EnqueuedAt = entry.EnqueuedAt
		existing.ExpiresAt = entry.ExpiresAt
		existing.ResolvedAt = nil
		existing.ResolvedBy = ""
		out = &existing
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (r *hitlRepo) GetByKey(dbc dbctx.Context, hitlKey string) (*types.HITLQueueEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if hitlKey == "" {
		return nil, nil
	}
	var entry types.HITLQueueEntry
	err := transaction.WithContext(dbc.Ctx).
		Where("hitl_key = ?", hitlKey).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry, nil
}

func (r *hitlRepo) ListPending(dbc dbctx.Context, tenantID uuid.UUID) ([]*types.HITLQueueEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HITLQueueEntry
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND status = ?", tenantID, types.HITLPending).
		Order("enqueued_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hitlRepo) Resolve(dbc dbctx.Context, hitlKey string, status types.HITLStatus, resolvedBy string) (*types.HITLQueueEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now().UTC()
	var out *types.HITLQueueEntry

	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var entry types.HITLQueueEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("hitl_key = ? AND status = ?", hitlKey, types.HITLPending).
			Limit(1).
			Find(&entry).Error
		if err != nil {
			return err
		}
		if entry.ID == uuid.Nil {
			return nil
		}

		updates := map[string]interface{}{
			"status":      status,
			"resolved_at": now,
			"resolved_by": resolvedBy,
			"updated_at":  now,
		}
		if err := tx.Model(&types.HITLQueueEntry{}).
			Where("id = ?", entry.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		entry.Status = status
		entry.ResolvedAt = &now
		entry.ResolvedBy = resolvedBy
		out = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hitlRepo) ListExpiredPending(dbc dbctx.Context, now time.Time, limit int) ([]*types.HITLQueueEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	var out []*types.HITLQueueEntry
	err := transaction.WithContext(dbc.Ctx).
		Where("status = ? AND expires_at <= ?", types.HITLPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hitlRepo) MarkExpired(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.HITLQueueEntry{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, types.HITLPending, now).
		Updates(map[string]interface{}{
			"status":      types.HITLExpired,
			"resolved_at": now,
			"resolved_by": types.DecidedBySystem,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
