package app

import (
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
	"github.com/driftmend/driftmend-backend/internal/platform/neo4jdb"
	"github.com/driftmend/driftmend-backend/internal/platform/redisdb"
	"github.com/driftmend/driftmend-backend/internal/platform/suggest"
)

type Clients struct {
	Redis       *redisdb.Client
	Neo4j       *neo4jdb.Client
	Suggest     suggest.Client
	SuggestLive bool
}

// wireClients connects the optional backing stores. A missing store is not
// fatal here: the service layer substitutes in-process fallbacks and the
// healthcheck reports the degradation.
func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	rds, err := redisdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, err
	}
	if rds == nil {
		log.Warn("REDIS_ADDR unset; coordination will run in-process only")
	}

	n4j, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, err
	}
	if n4j == nil {
		log.Warn("NEO4J_URI unset; lineage graph will run in-memory only")
	}

	sg, err := suggest.NewClient(log)
	live := err == nil
	if err != nil {
		log.Warn("suggestion client unavailable; proposals will be rejected", "error", err)
		sg = suggest.NewUnavailable()
	}

	return Clients{Redis: rds, Neo4j: n4j, Suggest: sg, SuggestLive: live}, nil
}
