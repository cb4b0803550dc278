package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/http/api"
	"github.com/pathway-hq/credits/internal/metrics"
	"github.com/pathway-hq/credits/internal/streak"
)

// StreakFrontHandler serves the caller's daily streak.
type StreakFrontHandler struct {
	engine  *streak.Engine
	metrics *metrics.Recorder
}

// NewStreakFrontHandler constructs a StreakFrontHandler.
func NewStreakFrontHandler(engine *streak.Engine, recorder *metrics.Recorder) *StreakFrontHandler {
	return &StreakFrontHandler{engine: engine, metrics: recorder}
}

// Get returns the caller's streak state.
func (h *StreakFrontHandler) Get(c *gin.Context) {
	state, errState := h.engine.GetStreak(c.Request.Context(), getUserID(c))
	if errState != nil {
		api.WriteError(c, errState)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Update counts today toward the caller's streak. "No activity yet" is a normal
// 200 response with success=false.
func (h *StreakFrontHandler) Update(c *gin.Context) {
	res, errUpdate := h.engine.UpdateStreak(c.Request.Context(), getUserID(c))
	if errUpdate != nil {
		h.metrics.RecordStreak(metrics.OutcomeError)
		api.WriteError(c, errUpdate)
		return
	}
	if res.Success {
		h.metrics.RecordStreak(metrics.OutcomeOK)
	} else {
		h.metrics.RecordStreak(metrics.OutcomeNoActivity)
	}
	c.JSON(http.StatusOK, res)
}
