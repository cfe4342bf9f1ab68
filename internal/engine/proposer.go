package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftmend/driftmend-backend/internal/data/graph"
	driftrepos "github.com/driftmend/driftmend-backend/internal/data/repos/drift"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
	"github.com/driftmend/driftmend-backend/internal/platform/suggest"
)

// ProposalGenerator asks the semantic-suggestion capability for a candidate
// mapping for one drift event. When the capability fails it persists a
// zero-confidence sentinel suggestion and returns suggest.ErrUnavailable
// rather than invent a plausible default.
type ProposalGenerator struct {
	client      suggest.Client
	suggestions driftrepos.SuggestionRepo
	lineage     graph.LineageStore
	log         *logger.Logger
}

func NewProposalGenerator(client suggest.Client, suggestions driftrepos.SuggestionRepo, lineage graph.LineageStore, log *logger.Logger) *ProposalGenerator {
	return &ProposalGenerator{
		client:      client,
		suggestions: suggestions,
		lineage:     lineage,
		log:         log.With("service", "ProposalGenerator"),
	}
}

func (g *ProposalGenerator) Propose(dbc dbctx.Context, event *types.DriftEvent, siblingFields []string) (*types.RepairSuggestion, error) {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	req := suggest.Request{
		TenantID:      event.TenantID.String(),
		EntityType:    event.EntityType,
		FieldName:     event.FieldName,
		FieldType:     event.CurrentType,
		DriftType:     string(event.DriftType),
		SiblingFields: siblingFields,
	}
	if prior, err := g.lineage.GetMapping(ctx, event.TenantID, event.ConnectorID, event.EntityType, priorFieldName(event)); err != nil {
		g.log.Warn("prior mapping lookup failed", "field", event.FieldName, "error", err)
	} else if prior != nil {
		req.PriorMapping = prior.Concept
	}

	now := time.Now().UTC()
	s := &types.RepairSuggestion{
		ID:           uuid.New(),
		DriftEventID: event.ID,
		TenantID:     event.TenantID,
		FieldName:    event.FieldName,
		ProducedAt:   now,
	}

	answer, err := g.client.Suggest(ctx, req)
	if err != nil {
		s.Confidence = 0
		s.SourceRationale = fmt.Sprintf("proposal unavailable: %v", err)
		if persistErr := g.suggestions.Create(dbc, s); persistErr != nil {
			return nil, fmt.Errorf("persist sentinel suggestion: %w", persistErr)
		}
		return s, fmt.Errorf("%w: %v", suggest.ErrUnavailable, err)
	}

	s.ProposedMapping = answer.Mapping
	s.Confidence = answer.Confidence
	s.SourceRationale = answer.Rationale
	if err := g.suggestions.Create(dbc, s); err != nil {
		return nil, fmt.Errorf("persist suggestion: %w", err)
	}
	return s, nil
}

// priorFieldName resolves which field's existing mapping is relevant context:
// for rename candidates that's the old name, otherwise the drifted field
// itself.
func priorFieldName(event *types.DriftEvent) string {
	if event.DriftType == types.DriftFieldRenamedCandidate && event.RenamedFrom != "" {
		return event.RenamedFrom
	}
	return event.FieldName
}
