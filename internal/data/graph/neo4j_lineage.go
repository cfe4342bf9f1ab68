package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
	"github.com/driftmend/driftmend-backend/internal/platform/neo4jdb"
)

type neo4jLineageStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jLineageStore(client *neo4jdb.Client, log *logger.Logger) (LineageStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("neo4j lineage store: client required")
	}
	s := &neo4jLineageStore{
		client: client,
		log:    log.With("store", "Neo4jLineageStore"),
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		// Schema helpers may fail for restricted users; queries still work.
		s.log.Warn("neo4j schema init failed (continuing)", "error", err)
	}
	return s, nil
}

func (s *neo4jLineageStore) Degraded() bool { return false }

func (s *neo4jLineageStore) ensureSchema(ctx context.Context) error {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT tenant_id_unique IF NOT EXISTS FOR (t:Tenant) REQUIRE t.id IS UNIQUE`,
		`CREATE CONSTRAINT concept_name_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.name IS UNIQUE`,
		`CREATE INDEX source_field_scope_idx IF NOT EXISTS FOR (f:SourceField) ON (f.tenant_id, f.connector_id, f.entity_type, f.name)`,
	}
	for _, stmt := range stmts {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return err
		}
		if _, err := res.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *neo4jLineageStore) ApplyMapping(ctx context.Context, m *types.FieldMapping) error {
	if m == nil || m.TenantID == uuid.Nil {
		return fmt.Errorf("neo4j lineage: missing tenant")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC()
	params := map[string]any{
		"tenant_id":    m.TenantID.String(),
		"connector_id": m.ConnectorID.String(),
		"entity_type":  m.EntityType,
		"field_name":   m.FieldName,
		"concept":      m.Concept,
		"confidence":   m.Confidence,
		"decided_by":   m.DecidedBy,
		"updated_at":   now.Format(time.RFC3339Nano),
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (t:Tenant {id: $tenant_id})
SET t.graph_version = $updated_at
MERGE (e:Entity {tenant_id: $tenant_id, connector_id: $connector_id, entity_type: $entity_type})
MERGE (t)-[:OWNS]->(e)
MERGE (f:SourceField {tenant_id: $tenant_id, connector_id: $connector_id, entity_type: $entity_type, name: $field_name})
MERGE (e)-[:HAS_FIELD]->(f)
MERGE (c:Concept {name: $concept})
WITH f, c
OPTIONAL MATCH (f)-[old:MAPS_TO]->(prev:Concept)
WHERE prev.name <> $concept
DELETE old
MERGE (f)-[r:MAPS_TO]->(c)
SET r.confidence = $confidence,
    r.decided_by = $decided_by,
    r.updated_at = $updated_at
`, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j lineage: apply mapping: %w", err)
	}
	m.UpdatedAt = now
	return nil
}

func (s *neo4jLineageStore) GetMapping(ctx context.Context, tenantID, connectorID uuid.UUID, entityType, fieldName string) (*types.FieldMapping, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	params := map[string]any{
		"tenant_id":    tenantID.String(),
		"connector_id": connectorID.String(),
		"entity_type":  entityType,
		"field_name":   fieldName,
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	record, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:SourceField {tenant_id: $tenant_id, connector_id: $connector_id, entity_type: $entity_type, name: $field_name})-[r:MAPS_TO]->(c:Concept)
RETURN c.name AS concept, r.confidence AS confidence, r.decided_by AS decided_by, r.updated_at AS updated_at
LIMIT 1
`, params)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, nil
		}
		return recs[0], nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j lineage: get mapping: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	rec := record.(*neo4j.Record)
	out := &types.FieldMapping{
		TenantID:    tenantID,
		ConnectorID: connectorID,
		EntityType:  entityType,
		FieldName:   fieldName,
	}
	if v, ok := rec.Get("concept"); ok {
		out.Concept, _ = v.(string)
	}
	if v, ok := rec.Get("confidence"); ok {
		out.Confidence, _ = v.(float64)
	}
	if v, ok := rec.Get("decided_by"); ok {
		out.DecidedBy, _ = v.(string)
	}
	if v, ok := rec.Get("updated_at"); ok {
		if raw, ok := v.(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				out.UpdatedAt = ts
			}
		}
	}
	return out, nil
}

func (s *neo4jLineageStore) GraphVersion(ctx context.Context, tenantID uuid.UUID) (time.Time, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	record, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (t:Tenant {id: $tenant_id})
RETURN t.graph_version AS graph_version
LIMIT 1
`, map[string]any{"tenant_id": tenantID.String()})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, nil
		}
		return recs[0], nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("neo4j lineage: graph version: %w", err)
	}
	if record == nil {
		return time.Time{}, nil
	}

	rec := record.(*neo4j.Record)
	if v, ok := rec.Get("graph_version"); ok {
		if raw, ok := v.(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				return ts, nil
			}
		}
	}
	return time.Time{}, nil
}
