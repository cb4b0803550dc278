package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/http/api"
	"github.com/pathway-hq/credits/internal/metrics"
	"github.com/pathway-hq/credits/internal/models"
)

// CreditFrontHandler serves the caller's balance, history and spends.
type CreditFrontHandler struct {
	ledger  *credits.Ledger
	metrics *metrics.Recorder
}

// NewCreditFrontHandler constructs a CreditFrontHandler.
func NewCreditFrontHandler(ledger *credits.Ledger, recorder *metrics.Recorder) *CreditFrontHandler {
	return &CreditFrontHandler{ledger: ledger, metrics: recorder}
}

// Balance returns the caller's credit account.
func (h *CreditFrontHandler) Balance(c *gin.Context) {
	account, errAccount := h.ledger.GetAccount(c.Request.Context(), getUserID(c))
	if errAccount != nil {
		api.WriteError(c, errAccount)
		return
	}
	c.JSON(http.StatusOK, account)
}

// Transactions lists the caller's most recent ledger entries.
func (h *CreditFrontHandler) Transactions(c *gin.Context) {
	rows, errHistory := h.ledger.History(c.Request.Context(), getUserID(c), queryLimit(c, 50))
	if errHistory != nil {
		api.WriteError(c, errHistory)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, api.FormatTransaction(&row))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// spendRequest defines the request body for spending credits.
type spendRequest struct {
	Action      string `json:"action"`
	RelatedID   string `json:"related_id"`
	Description string `json:"description"`
}

// Spend charges the caller for an action.
func (h *CreditFrontHandler) Spend(c *gin.Context) {
	var body spendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	action, ok := models.ParseActionKind(body.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}

	res, errSpend := h.ledger.Spend(c.Request.Context(), credits.SpendRequest{
		UserID:      getUserID(c),
		Action:      action,
		RelatedID:   strings.TrimSpace(body.RelatedID),
		Description: strings.TrimSpace(body.Description),
	})
	if errSpend != nil {
		outcome := metrics.OutcomeError
		if errors.Is(errSpend, credits.ErrInsufficientCredits) {
			outcome = metrics.OutcomeInsufficient
		}
		h.metrics.RecordSpend(string(action), outcome, 0)
		api.WriteError(c, errSpend)
		return
	}
	h.metrics.RecordSpend(string(action), metrics.OutcomeOK, -res.Amount)
	c.JSON(http.StatusOK, res)
}
