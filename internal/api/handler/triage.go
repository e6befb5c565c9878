package handler

import (
	"net/http"

	"github.com/aegis-secops/aegis/internal/health"
	"github.com/aegis-secops/aegis/internal/triage"
	"github.com/gin-gonic/gin"
)

// TriageHandler serves threat indicator analysis and effector health.
type TriageHandler struct {
	analyzer triage.Analyzer
	checker  *health.Checker
}

// NewTriageHandler creates a TriageHandler. checker may be nil when no
// effector endpoints are configured.
func NewTriageHandler(analyzer triage.Analyzer, checker *health.Checker) *TriageHandler {
	return &TriageHandler{analyzer: analyzer, checker: checker}
}

// Register mounts the triage routes on the given router group.
func (h *TriageHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/threats/analyze", h.Analyze)
	rg.GET("/effectors/health", h.EffectorHealth)
}

// analyzeRequest is the payload for POST /threats/analyze.
type analyzeRequest struct {
	Type    string            `json:"type" binding:"required"`
	Details map[string]string `json:"details"`
}

// Analyze handles POST /threats/analyze — runs the triage rules over a
// threat report without executing any mitigation.
func (h *TriageHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	report, err := h.analyzer.Analyze(c.Request.Context(), req.Type, req.Details)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// EffectorHealth handles GET /effectors/health.
func (h *TriageHandler) EffectorHealth(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusOK, gin.H{"count": 0, "effectors": []health.Status{}})
		return
	}
	statuses := h.checker.Statuses()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(statuses),
		"effectors": statuses,
	})
}
