// Package handler exposes the mitigation engine over HTTP. Handlers are
// thin: request parsing and status mapping here, everything else in the
// engine and its collaborators.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aegis-secops/aegis/internal/engine"
	"github.com/aegis-secops/aegis/internal/ledger"
	"github.com/aegis-secops/aegis/internal/plan"
	"github.com/aegis-secops/aegis/internal/scoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MitigationHandler serves threat submission and mitigation history.
type MitigationHandler struct {
	engine *engine.Engine
	auth   gin.HandlerFunc
	logger *zap.Logger
}

// NewMitigationHandler creates a MitigationHandler. auth guards the
// mutating routes and may be nil when authentication is disabled.
func NewMitigationHandler(eng *engine.Engine, auth gin.HandlerFunc, logger *zap.Logger) *MitigationHandler {
	return &MitigationHandler{engine: eng, auth: auth, logger: logger}
}

// Register mounts the mitigation routes on the given router group.
func (h *MitigationHandler) Register(rg *gin.RouterGroup) {
	threats := rg.Group("/threats")
	if h.auth != nil {
		threats.Use(h.auth)
	}
	threats.POST("/mitigate", h.Mitigate)

	m := rg.Group("/mitigations")
	{
		m.GET("", h.History)
		m.GET("/effectiveness", h.Effectiveness)
	}
}

// mitigateRequest is the payload for POST /threats/mitigate.
type mitigateRequest struct {
	ID        string            `json:"id"`
	Type      string            `json:"type" binding:"required"`
	RiskScore float64           `json:"risk_score"`
	Details   map[string]string `json:"details"`
}

// Mitigate handles POST /threats/mitigate — runs the full mitigation
// flow and returns the recorded run with per-action outcomes.
func (h *MitigationHandler) Mitigate(c *gin.Context) {
	var req mitigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	record, err := h.engine.Mitigate(c.Request.Context(), plan.Threat{
		ID:        req.ID,
		Type:      req.Type,
		RiskScore: req.RiskScore,
		Details:   req.Details,
	})
	if err != nil {
		if errors.Is(err, engine.ErrInvalidThreat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("mitigation run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mitigation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"mitigation_record": record,
	})
}

// History handles GET /mitigations — returns recorded runs, newest
// first, filtered by the optional limit, threat_type, and severity
// query parameters.
func (h *MitigationHandler) History(c *gin.Context) {
	filter := ledger.Filter{
		ThreatType: c.Query("threat_type"),
		Severity:   scoring.Severity(c.Query("severity")),
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be one of low, medium, high, critical"})
		return
	}

	records := h.engine.History(c.Request.Context(), filter)
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// Effectiveness handles GET /mitigations/effectiveness.
func (h *MitigationHandler) Effectiveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Effectiveness(c.Request.Context()))
}
