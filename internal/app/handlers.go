package app

import (
	httpH "github.com/driftmend/driftmend-backend/internal/http/handlers"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type Handlers struct {
	Observation *httpH.ObservationHandler
	HITL        *httpH.HITLHandler
	Semaphore   *httpH.SemaphoreHandler
	Health      *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, services Services, clients Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Observation: httpH.NewObservationHandler(services.Pipeline),
		HITL:        httpH.NewHITLHandler(services.HITL),
		Semaphore:   httpH.NewSemaphoreHandler(services.Pipeline),
		Health:      httpH.NewHealthHandler(capabilities(services, clients.SuggestLive)),
	}
}
