package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/aegis-secops/aegis/internal/scoring"
	"github.com/gin-gonic/gin"
)

// RiskHandler serves standalone risk score computation.
type RiskHandler struct {
	scorer     *scoring.Scorer
	thresholds scoring.Thresholds
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(scorer *scoring.Scorer, thresholds scoring.Thresholds) *RiskHandler {
	return &RiskHandler{scorer: scorer, thresholds: thresholds}
}

// Register mounts the risk routes on the given router group.
func (h *RiskHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/risk/score", h.Score)
}

// scoreRequest is the payload for POST /risk/score.
type scoreRequest struct {
	Likelihood float64 `json:"likelihood" binding:"required"`
	Impact     float64 `json:"impact" binding:"required"`
	LastSeen   string  `json:"last_seen" binding:"required"`
}

// Score handles POST /risk/score — computes the time-decayed risk score
// and its severity tier.
func (h *RiskHandler) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	lastSeen, err := time.Parse(time.RFC3339, req.LastSeen)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "last_seen must be an RFC 3339 timestamp"})
		return
	}

	score, err := h.scorer.Score(req.Likelihood, req.Impact, lastSeen)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scoring failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"risk_score": score,
		"severity":   h.thresholds.Classify(score),
	})
}
