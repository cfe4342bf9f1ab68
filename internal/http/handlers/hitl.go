package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/driftmend/driftmend-backend/internal/coordination"
	"github.com/driftmend/driftmend-backend/internal/engine"
	"github.com/driftmend/driftmend-backend/internal/http/response"
	"github.com/driftmend/driftmend-backend/internal/pkg/dbctx"
)

type HITLHandler struct {
	hitl *engine.HITLService
}

func NewHITLHandler(hitl *engine.HITLService) *HITLHandler {
	return &HITLHandler{hitl: hitl}
}

type resolveHITLRequest struct {
	Resolution string `json:"resolution"`
	DecidedBy  string `json:"decided_by"`
}

func (h *HITLHandler) Resolve(c *gin.Context) {
	hitlKey := c.Param("key")
	if hitlKey == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_hitl_key", nil)
		return
	}
	var req resolveHITLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	decision, err := h.hitl.Resolve(dbc, hitlKey, engine.HITLResolution(req.Resolution), req.DecidedBy)
	switch {
	case errors.Is(err, engine.ErrHITLNotFound):
		response.RespondError(c, http.StatusNotFound, "hitl_not_found", err)
		return
	case errors.Is(err, engine.ErrValidation):
		response.RespondError(c, http.StatusBadRequest, "invalid_resolution", err)
		return
	case errors.Is(err, coordination.ErrLockContention):
		response.RespondError(c, http.StatusConflict, "lock_contention", err)
		return
	case err != nil:
		response.RespondError(c, http.StatusInternalServerError, "hitl_resolve_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"decision": decision})
}

func (h *HITLHandler) ListPending(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_tenant_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	entries, err := h.hitl.ListPending(dbc, tenantID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "hitl_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries})
}
