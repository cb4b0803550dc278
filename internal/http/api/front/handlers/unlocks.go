package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/http/api"
	"github.com/pathway-hq/credits/internal/metrics"
	"github.com/pathway-hq/credits/internal/unlock"
)

// UnlockFrontHandler serves early access unlocks.
type UnlockFrontHandler struct {
	unlocker *unlock.Unlocker
	metrics  *metrics.Recorder
}

// NewUnlockFrontHandler constructs an UnlockFrontHandler.
func NewUnlockFrontHandler(unlocker *unlock.Unlocker, recorder *metrics.Recorder) *UnlockFrontHandler {
	return &UnlockFrontHandler{unlocker: unlocker, metrics: recorder}
}

// unlockRequest defines the optional request body for unlocking.
type unlockRequest struct {
	OpportunityType string `json:"opportunity_type"`
}

// Unlock grants early access to the opportunity in the path.
func (h *UnlockFrontHandler) Unlock(c *gin.Context) {
	var body unlockRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	res, errUnlock := h.unlocker.Unlock(c.Request.Context(), getUserID(c), c.Param("id"), strings.TrimSpace(body.OpportunityType))
	if errUnlock != nil {
		outcome := metrics.OutcomeError
		if errors.Is(errUnlock, credits.ErrInsufficientCredits) {
			outcome = metrics.OutcomeInsufficient
		}
		h.metrics.RecordUnlock(outcome)
		api.WriteError(c, errUnlock)
		return
	}

	switch {
	case res.AlreadyUnlocked:
		h.metrics.RecordUnlock(metrics.OutcomeAlreadyUnlocked)
	case res.FeeWaived:
		h.metrics.RecordUnlock(metrics.OutcomeWaived)
	default:
		h.metrics.RecordUnlock(metrics.OutcomeOK)
	}
	c.JSON(http.StatusOK, res)
}

// Status reports whether the caller has unlocked the opportunity.
func (h *UnlockFrontHandler) Status(c *gin.Context) {
	unlocked, errCheck := h.unlocker.IsUnlocked(c.Request.Context(), getUserID(c), c.Param("id"))
	if errCheck != nil {
		api.WriteError(c, errCheck)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": unlocked})
}

// List returns the caller's unlocks.
func (h *UnlockFrontHandler) List(c *gin.Context) {
	rows, errList := h.unlocker.List(c.Request.Context(), getUserID(c))
	if errList != nil {
		api.WriteError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"opportunity_id":   row.OpportunityID,
			"opportunity_type": row.OpportunityType,
			"used_credit":      row.UsedCredit,
			"credits_spent":    row.CreditsSpent,
			"created_at":       row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"unlocks": out})
}
