package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	driftrepos "github.com/driftmend/driftmend-backend/internal/data/repos/drift"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

// Classifier compares an entity's new fingerprint with its stored one and
// emits typed drift events. Callers must hold the tenant's distributed lock:
// classification reads and writes shared fingerprint history.
type Classifier struct {
	fingerprints driftrepos.FingerprintRepo
	events       driftrepos.DriftEventRepo
	log          *logger.Logger
}

func NewClassifier(fingerprints driftrepos.FingerprintRepo, events driftrepos.DriftEventRepo, log *logger.Logger) *Classifier {
	return &Classifier{
		fingerprints: fingerprints,
		events:       events,
		log:          log.With("service", "Classifier"),
	}
}

// Classify persists the new fingerprint as current and returns one DriftEvent
// per affected field. First observation is baseline, not drift; an unchanged
// hash returns no events and writes nothing.
func (c *Classifier) Classify(dbc dbctx.Context, tenantID, connectorID uuid.UUID, entityType string, obs map[string]types.FieldObservation) ([]*types.DriftEvent, error) {
	fields, hash, err := ComputeFingerprint(obs)
	if err != nil {
		return nil, err
	}

	prev, err := c.fingerprints.GetCurrent(dbc, tenantID, connectorID, entityType)
	if err != nil {
		return nil, fmt.Errorf("load current fingerprint: %w", err)
	}

	if prev != nil && prev.Hash == hash {
		return nil, nil
	}

	now := time.Now().UTC()
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	current := &types.SchemaFingerprint{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ConnectorID: connectorID,
		EntityType:  entityType,
		Hash:        hash,
		Fields:      datatypes.JSON(raw),
		ObservedAt:  now,
	}
	if err := c.fingerprints.Create(dbc, current); err != nil {
		return nil, fmt.Errorf("persist fingerprint: %w", err)
	}

	if prev == nil {
		c.log.Info("baseline fingerprint stored",
			"tenant_id", tenantID,
			"entity_type", entityType,
			"hash", hash,
		)
		return nil, nil
	}

	var prevFields []types.FieldSignature
	if err := json.Unmarshal(prev.Fields, &prevFields); err != nil {
		return nil, fmt.Errorf("decode stored fields: %w", err)
	}

	events := diffFields(prevFields, fields)
	for _, ev := range events {
		ev.TenantID = tenantID
		ev.ConnectorID = connectorID
		ev.EntityType = entityType
		ev.PreviousFingerprintID = &prev.ID
		ev.CurrentFingerprintID = current.ID
		ev.DetectedAt = now
	}
	if _, err := c.events.Create(dbc, events); err != nil {
		return nil, fmt.Errorf("persist drift events: %w", err)
	}

	c.log.Info("drift detected",
		"tenant_id", tenantID,
		"entity_type", entityType,
		"events", len(events),
	)
	return events, nil
}

func diffFields(prev, cur []types.FieldSignature) []*types.DriftEvent {
	prevByName := make(map[string]types.FieldSignature, len(prev))
	for _, f := range prev {
		prevByName[f.Name] = f
	}
	curByName := make(map[string]types.FieldSignature, len(cur))
	for _, f := range cur {
		curByName[f.Name] = f
	}

	var added, removed []types.FieldSignature
	var events []*types.DriftEvent

	for _, f := range cur {
		if _, ok := prevByName[f.Name]; !ok {
			added = append(added, f)
		}
	}
	for _, f := range prev {
		if _, ok := curByName[f.Name]; !ok {
			removed = append(removed, f)
		}
	}

	// A lone removal paired with a lone addition of the same type is most
	// likely a rename; flag it as a candidate instead of two events.
	if len(added) == 1 && len(removed) == 1 && added[0].Type == removed[0].Type {
		events = append(events, &types.DriftEvent{
			ID:          uuid.New(),
			FieldName:   added[0].Name,
			DriftType:   types.DriftFieldRenamedCandidate,
			Severity:    types.SeverityMedium,
			CurrentType: added[0].Type,
			RenamedFrom: removed[0].Name,
		})
		added, removed = nil, nil
	}

	for _, f := range added {
		events = append(events, &types.DriftEvent{
			ID:          uuid.New(),
			FieldName:   f.Name,
			DriftType:   types.DriftFieldAdded,
			Severity:    types.SeverityMedium,
			CurrentType: f.Type,
		})
	}
	for _, f := range removed {
		severity := types.SeverityLow
		if !f.Nullable {
			severity = types.SeverityHigh
		}
		events = append(events, &types.DriftEvent{
			ID:           uuid.New(),
			FieldName:    f.Name,
			DriftType:    types.DriftFieldRemoved,
			Severity:     severity,
			PreviousType: f.Type,
		})
	}

	for _, f := range cur {
		old, ok := prevByName[f.Name]
		if !ok || old.Type == f.Type {
			continue
		}
		severity := types.SeverityMedium
		if !old.Nullable {
			severity = types.SeverityHigh
		}
		events = append(events, &types.DriftEvent{
			ID:           uuid.New(),
			FieldName:    f.Name,
			DriftType:    types.DriftTypeChanged,
			Severity:     severity,
			PreviousType: old.Type,
			CurrentType:  f.Type,
		})
	}

	return events
}
