package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	handlers "github.com/pathway-hq/credits/internal/http/api/admin/handlers"
	"github.com/pathway-hq/credits/internal/metrics"
	"github.com/pathway-hq/credits/internal/pricing"
	"gorm.io/gorm"
)

// Services bundles the components the admin routes call.
type Services struct {
	DB      *gorm.DB
	Ledger  *credits.Ledger
	Pricing *pricing.Service
	Metrics *metrics.Recorder
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, svc Services, adminToken string) {
	if r == nil || svc.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(svc.DB)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(adminToken))

	pricingHandler := handlers.NewPricingHandler(svc.Pricing)
	authed.GET("/pricing", pricingHandler.Get)
	authed.PUT("/pricing", pricingHandler.Update)

	creditHandler := handlers.NewCreditHandler(svc.Ledger, svc.Metrics)
	authed.POST("/credits/refresh", creditHandler.Refresh)
	authed.POST("/users/:id/credits/refund", creditHandler.Refund)
	authed.POST("/users/:id/credits/purchase", creditHandler.Purchase)
	authed.GET("/users/:id/credits", creditHandler.Account)
	authed.GET("/users/:id/credits/transactions", creditHandler.Transactions)
	authed.GET("/users/:id/credits/audit", creditHandler.Audit)
}

// adminAuthMiddleware validates the static admin bearer token.
func adminAuthMiddleware(adminToken string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(adminToken))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
