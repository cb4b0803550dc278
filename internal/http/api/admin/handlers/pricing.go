package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/http/api"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
)

// PricingHandler manages the pricing singleton.
type PricingHandler struct {
	pricing *pricing.Service
}

// NewPricingHandler constructs a PricingHandler.
func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

// Get returns the current pricing.
func (h *PricingHandler) Get(c *gin.Context) {
	snap, errSnap := h.pricing.Snapshot(c.Request.Context())
	if errSnap != nil {
		api.WriteError(c, errSnap)
		return
	}
	c.JSON(http.StatusOK, api.FormatPricing(snap))
}

// updatePricingRequest captures a partial pricing change.
type updatePricingRequest struct {
	Costs          map[models.ActionKind]int64       `json:"costs"`            // Action costs to change.
	Allowances     map[models.SubscriptionPlan]int64 `json:"allowances"`       // Plan allowances to change.
	FeeWaivedPlans *[]models.SubscriptionPlan        `json:"fee_waived_plans"` // Replacement waived plan list.
}

// Update applies a partial pricing change.
func (h *PricingHandler) Update(c *gin.Context) {
	var body updatePricingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	snap, errUpdate := h.pricing.Update(c.Request.Context(), pricing.Update{
		Costs:       body.Costs,
		Allowances:  body.Allowances,
		WaivedPlans: body.FeeWaivedPlans,
	})
	if errUpdate != nil {
		api.WriteError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, api.FormatPricing(snap))
}
