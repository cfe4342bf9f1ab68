package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Capabilities reports which backing stores are live. A degraded entry means
// the in-process fallback is serving that concern.
type Capabilities struct {
	Coordination string `json:"coordination"`
	Lineage      string `json:"lineage"`
	Suggest      string `json:"suggest"`
}

type HealthHandler struct {
	caps Capabilities
}

func NewHealthHandler(caps Capabilities) *HealthHandler {
	return &HealthHandler{caps: caps}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"capabilities": h.caps,
	})
}
