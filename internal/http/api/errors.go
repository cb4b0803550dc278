// Package api holds helpers shared by the front and admin HTTP surfaces.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/pricing"
	"github.com/pathway-hq/credits/internal/streak"
	"github.com/pathway-hq/credits/internal/unlock"
	log "github.com/sirupsen/logrus"
)

// WriteError maps domain errors onto HTTP responses.
func WriteError(c *gin.Context, err error) {
	if insufficient, ok := credits.AsInsufficientCredits(err); ok {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":    "insufficient credits",
			"required": insufficient.Required,
			"current":  insufficient.Current,
		})
		return
	}
	switch {
	case errors.Is(err, pricing.ErrUnknownActionKind),
		errors.Is(err, pricing.ErrUnknownPlan),
		errors.Is(err, pricing.ErrNegativeValue),
		errors.Is(err, credits.ErrInvalidAmount),
		errors.Is(err, unlock.ErrInvalidOpportunity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, credits.ErrUserNotFound), errors.Is(err, streak.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, credits.ErrPersistenceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, retry the request"})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
