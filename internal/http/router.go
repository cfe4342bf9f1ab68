package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/driftmend/driftmend-backend/internal/http/handlers"
	httpMW "github.com/driftmend/driftmend-backend/internal/http/middleware"
	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

type RouterConfig struct {
	ObservationHandler *httpH.ObservationHandler
	HITLHandler        *httpH.HITLHandler
	SemaphoreHandler   *httpH.SemaphoreHandler
	HealthHandler      *httpH.HealthHandler

	Log *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Observations
		if cfg.ObservationHandler != nil {
			api.POST("/tenants/:id/observations", cfg.ObservationHandler.Ingest)
		}

		// HITL queue
		if cfg.HITLHandler != nil {
			api.POST("/hitl/:key/resolve", cfg.HITLHandler.Resolve)
			api.GET("/tenants/:id/hitl", cfg.HITLHandler.ListPending)
		}

		// Admission
		if cfg.SemaphoreHandler != nil {
			api.GET("/tenants/:id/semaphore", cfg.SemaphoreHandler.State)
		}
	}

	return r
}
