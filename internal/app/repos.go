package app

import (
	"gorm.io/gorm"

	driftrepos "github.com/driftmend/driftmend-backend/internal/data/repos/drift"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type Repos struct {
	Fingerprints driftrepos.FingerprintRepo
	Events       driftrepos.DriftEventRepo
	Suggestions  driftrepos.SuggestionRepo
	Decisions    driftrepos.DecisionRepo
	HITL         driftrepos.HITLRepo
	Audit        driftrepos.AuditRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Fingerprints: driftrepos.NewFingerprintRepo(db, log),
		Events:       driftrepos.NewDriftEventRepo(db, log),
		Suggestions:  driftrepos.NewSuggestionRepo(db, log),
		Decisions:    driftrepos.NewDecisionRepo(db, log),
		HITL:         driftrepos.NewHITLRepo(db, log),
		Audit:        driftrepos.NewAuditRepo(db, log),
	}
}
