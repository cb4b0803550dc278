package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/http/api"
	"github.com/pathway-hq/credits/internal/pricing"
)

// PricingFrontHandler exposes the public price list.
type PricingFrontHandler struct {
	pricing *pricing.Service
}

// NewPricingFrontHandler constructs a PricingFrontHandler.
func NewPricingFrontHandler(svc *pricing.Service) *PricingFrontHandler {
	return &PricingFrontHandler{pricing: svc}
}

// Get returns action costs, plan allowances and fee-waived plans.
func (h *PricingFrontHandler) Get(c *gin.Context) {
	snap, errSnap := h.pricing.Snapshot(c.Request.Context())
	if errSnap != nil {
		api.WriteError(c, errSnap)
		return
	}
	c.JSON(http.StatusOK, api.FormatPricing(snap))
}
