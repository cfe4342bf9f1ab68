package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
	"github.com/driftmend/driftmend-backend/internal/engine"
	"github.com/driftmend/driftmend-backend/internal/http/response"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
)

type ObservationHandler struct {
	pipeline *engine.PipelineService
}

func NewObservationHandler(pipeline *engine.PipelineService) *ObservationHandler {
	return &ObservationHandler{pipeline: pipeline}
}

type ingestObservationRequest struct {
	ConnectorID uuid.UUID                         `json:"connector_id"`
	EntityType  string                            `json:"entity_type"`
	PlanID      string                            `json:"plan_id"`
	Fields      map[string]types.FieldObservation `json:"fields"`
}

// Ingest runs one observed schema through the drift pipeline. A saturated
// tenant gets 429; lock contention after retries gets 409.
func (h *ObservationHandler) Ingest(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_tenant_id", err)
		return
	}
	var req ingestObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	result, err := h.pipeline.IngestObservation(dbc, tenantID, req.ConnectorID, req.EntityType, req.PlanID, req.Fields)
	switch {
	case errors.Is(err, coordination.ErrConcurrencyLimit):
		response.RespondError(c, http.StatusTooManyRequests, "concurrency_limit", err)
		return
	case errors.Is(err, coordination.ErrLockContention):
		response.RespondError(c, http.StatusConflict, "lock_contention", err)
		return
	case errors.Is(err, engine.ErrValidation):
		response.RespondError(c, http.StatusBadRequest, "invalid_observation", err)
		return
	case err != nil && result == nil:
		response.RespondError(c, http.StatusInternalServerError, "ingest_failed", err)
		return
	}

	payload := gin.H{
		"job_id":    result.JobID,
		"events":    result.Events,
		"decisions": result.Decisions,
	}
	if err != nil {
		// Partial batch: some events decided, some failed.
		payload["partial_error"] = err.Error()
	}
	response.RespondOK(c, payload)
}
