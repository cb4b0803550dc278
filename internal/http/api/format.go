package api

import (
	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
)

// FormatPricing renders a pricing snapshot.
func FormatPricing(snap pricing.Snapshot) gin.H {
	return gin.H{
		"costs":            snap.Costs(),
		"allowances":       snap.Allowances(),
		"fee_waived_plans": snap.WaivedPlans(),
		"updated_at":       snap.UpdatedAt(),
	}
}

// FormatTransaction renders a ledger entry without its user association.
func FormatTransaction(row *models.CreditTransaction) gin.H {
	out := gin.H{
		"id":             row.ID,
		"user_id":        row.UserID,
		"type":           row.Type,
		"amount":         row.Amount,
		"balance_before": row.BalanceBefore,
		"balance_after":  row.BalanceAfter,
		"description":    row.Description,
		"created_at":     row.CreatedAt,
	}
	if row.Action != nil {
		out["action"] = *row.Action
	}
	if row.RelatedID != nil {
		out["related_id"] = *row.RelatedID
	}
	return out
}
