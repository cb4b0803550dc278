package front

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	handlers "github.com/pathway-hq/credits/internal/http/api/front/handlers"
	"github.com/pathway-hq/credits/internal/metrics"
	"github.com/pathway-hq/credits/internal/pricing"
	"github.com/pathway-hq/credits/internal/streak"
	"github.com/pathway-hq/credits/internal/unlock"
)

// Services bundles the domain components the front routes call.
type Services struct {
	Ledger   *credits.Ledger
	Unlocker *unlock.Unlocker
	Streak   *streak.Engine
	Pricing  *pricing.Service
	Metrics  *metrics.Recorder
}

// RegisterFrontRoutes registers user-facing routes. Identity comes from userHeader,
// which the gateway in front of this service sets after authenticating the caller.
func RegisterFrontRoutes(r *gin.Engine, svc Services, userHeader string) {
	if r == nil || svc.Ledger == nil {
		return
	}

	frontGroup := r.Group("/v0/front")

	pricingHandler := handlers.NewPricingFrontHandler(svc.Pricing)
	frontGroup.GET("/pricing", pricingHandler.Get)

	authed := frontGroup.Group("")
	authed.Use(userIdentityMiddleware(userHeader))

	creditHandler := handlers.NewCreditFrontHandler(svc.Ledger, svc.Metrics)
	authed.GET("/credits", creditHandler.Balance)
	authed.GET("/credits/transactions", creditHandler.Transactions)
	authed.POST("/credits/spend", creditHandler.Spend)

	unlockHandler := handlers.NewUnlockFrontHandler(svc.Unlocker, svc.Metrics)
	authed.POST("/opportunities/:id/unlock", unlockHandler.Unlock)
	authed.GET("/opportunities/:id/unlock", unlockHandler.Status)
	authed.GET("/unlocks", unlockHandler.List)

	streakHandler := handlers.NewStreakFrontHandler(svc.Streak, svc.Metrics)
	authed.GET("/streak", streakHandler.Get)
	authed.POST("/streak", streakHandler.Update)
}

// userIdentityMiddleware resolves the acting user from the trusted gateway header.
func userIdentityMiddleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(header))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		userID, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}
		c.Set(handlers.UserIDKey, userID)
		c.Next()
	}
}
