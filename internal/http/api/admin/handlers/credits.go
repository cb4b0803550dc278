package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/http/api"
	"github.com/pathway-hq/credits/internal/metrics"
	internalsettings "github.com/pathway-hq/credits/internal/settings"
)

// CreditHandler exposes privileged ledger operations.
type CreditHandler struct {
	ledger  *credits.Ledger
	metrics *metrics.Recorder
}

// NewCreditHandler constructs a CreditHandler.
func NewCreditHandler(ledger *credits.Ledger, recorder *metrics.Recorder) *CreditHandler {
	return &CreditHandler{ledger: ledger, metrics: recorder}
}

// refreshRequest selects users for a manual refresh run.
type refreshRequest struct {
	UserIDs []uint64 `json:"user_ids"` // Explicit users; empty means due users.
	Limit   int      `json:"limit"`    // Batch size when UserIDs is empty.
}

// Refresh runs the monthly refresh for explicit users or the next due batch.
func (h *CreditHandler) Refresh(c *gin.Context) {
	var body refreshRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	started := time.Now()
	var (
		report    credits.RefreshReport
		errReport error
	)
	if len(body.UserIDs) > 0 {
		report, errReport = h.ledger.MonthlyRefresh(c.Request.Context(), body.UserIDs...)
	} else {
		limit := body.Limit
		if limit <= 0 {
			limit = internalsettings.DefaultRefreshBatchSize
		}
		report, errReport = h.ledger.RefreshDue(c.Request.Context(), limit)
	}
	if errReport != nil {
		api.WriteError(c, errReport)
		return
	}
	h.metrics.RecordRefresh(len(report.Refreshed), len(report.Skipped), len(report.Failed), time.Since(started))

	failed := make([]gin.H, 0, len(report.Failed))
	for _, f := range report.Failed {
		failed = append(failed, gin.H{"user_id": f.UserID, "error": f.Err.Error()})
	}
	c.JSON(http.StatusOK, gin.H{
		"refreshed": report.Refreshed,
		"skipped":   report.Skipped,
		"failed":    failed,
	})
}

// adjustRequest defines the body for refunds and purchases.
type adjustRequest struct {
	Amount      int64  `json:"amount"`      // Credits to add; must be positive.
	RelatedID   string `json:"related_id"`  // Resource reference, e.g. a payment ID.
	Description string `json:"description"` // Optional note.
}

// Refund returns credits to a user.
func (h *CreditHandler) Refund(c *gin.Context) {
	h.adjust(c, h.ledger.Refund)
}

// Purchase records bought credits for a user.
func (h *CreditHandler) Purchase(c *gin.Context) {
	h.adjust(c, h.ledger.Purchase)
}

func (h *CreditHandler) adjust(c *gin.Context, apply func(ctx context.Context, req credits.AdjustRequest) (credits.Result, error)) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	var body adjustRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errApply := apply(c.Request.Context(), credits.AdjustRequest{
		UserID:      userID,
		Amount:      body.Amount,
		RelatedID:   strings.TrimSpace(body.RelatedID),
		Description: strings.TrimSpace(body.Description),
	})
	if errApply != nil {
		api.WriteError(c, errApply)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Account returns a user's credit account.
func (h *CreditHandler) Account(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	account, errAccount := h.ledger.GetAccount(c.Request.Context(), userID)
	if errAccount != nil {
		api.WriteError(c, errAccount)
		return
	}
	c.JSON(http.StatusOK, account)
}

// Transactions lists a user's ledger entries.
func (h *CreditHandler) Transactions(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	rows, errHistory := h.ledger.History(c.Request.Context(), userID, limit)
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

// Audit replays a user's ledger against the stored balance.
func (h *CreditHandler) Audit(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	result, errAudit := h.ledger.Audit(c.Request.Context(), userID)
	if errAudit != nil {
		api.WriteError(c, errAudit)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseUserID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}
