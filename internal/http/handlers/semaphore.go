package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/driftmend/driftmend-backend/internal/engine"
	"github.com/driftmend/driftmend-backend/internal/http/response"
)

type SemaphoreHandler struct {
	pipeline *engine.PipelineService
}

func NewSemaphoreHandler(pipeline *engine.PipelineService) *SemaphoreHandler {
	return &SemaphoreHandler{pipeline: pipeline}
}

func (h *SemaphoreHandler) State(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_tenant_id", err)
		return
	}
	state, err := h.pipeline.SemaphoreState(c.Request.Context(), tenantID, c.Query("plan"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "semaphore_state_failed", err)
		return
	}
	response.RespondOK(c, state)
}
