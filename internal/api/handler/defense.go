package handler

import (
	"net/http"

	"github.com/aegis-secops/aegis/internal/defense"
	"github.com/gin-gonic/gin"
)

// DefenseHandler exposes read-only views of the defense guard state for
// audit and inspection.
type DefenseHandler struct {
	guard *defense.Guard
}

// NewDefenseHandler creates a DefenseHandler.
func NewDefenseHandler(guard *defense.Guard) *DefenseHandler {
	return &DefenseHandler{guard: guard}
}

// Register mounts the defense routes on the given router group.
func (h *DefenseHandler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/defense")
	{
		d.GET("/blocked-ips", h.BlockedIPs)
		d.GET("/rules", h.Rules)
	}
}

// BlockedIPs handles GET /defense/blocked-ips.
func (h *DefenseHandler) BlockedIPs(c *gin.Context) {
	ips := h.guard.BlockedIPs()
	c.JSON(http.StatusOK, gin.H{
		"count":       len(ips),
		"blocked_ips": ips,
	})
}

// Rules handles GET /defense/rules.
func (h *DefenseHandler) Rules(c *gin.Context) {
	rules := h.guard.Rules()
	c.JSON(http.StatusOK, gin.H{
		"count": len(rules),
		"rules": rules,
	})
}
