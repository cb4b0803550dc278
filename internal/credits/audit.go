package credits

import (
	"context"
	"fmt"

	"github.com/pathway-hq/credits/internal/models"
)

// AuditResult compares the stored balance with a replay of the ledger.
type AuditResult struct {
	UserID          uint64 `json:"user_id"`
	StoredBalance   int64  `json:"stored_balance"`
	ReplayedBalance int64  `json:"replayed_balance"`
	Entries         int    `json:"entries"`
	Consistent      bool   `json:"consistent"`
	// FirstBrokenEntryID is the first entry whose before/after does not chain, or 0.
	FirstBrokenEntryID uint64 `json:"first_broken_entry_id,omitempty"`
}

// auditPageSize bounds how many ledger rows are held in memory at once.
const auditPageSize = 500

// Audit folds the user's ledger from zero in write order.
func (l *Ledger) Audit(ctx context.Context, userID uint64) (AuditResult, error) {
	if errInit := l.ready(); errInit != nil {
		return AuditResult{}, errInit
	}
	account, errAccount := loadAccount(l.db.WithContext(ctx), userID)
	if errAccount != nil {
		return AuditResult{}, errAccount
	}

	result := AuditResult{UserID: userID, StoredBalance: account.Credits}
	var running int64
	var lastID uint64
	for {
		var page []models.CreditTransaction
		if errFind := l.db.WithContext(ctx).
			Where("user_id = ? AND id > ?", userID, lastID).
			Order("id ASC").
			Limit(auditPageSize).
			Find(&page).Error; errFind != nil {
			return AuditResult{}, fmt.Errorf("credits: audit: %w", errFind)
		}
		for _, entry := range page {
			if result.FirstBrokenEntryID == 0 &&
				(entry.BalanceBefore != running || entry.BalanceAfter != entry.BalanceBefore+entry.Amount) {
				result.FirstBrokenEntryID = entry.ID
			}
			running += entry.Amount
			lastID = entry.ID
			result.Entries++
		}
		if len(page) < auditPageSize {
			break
		}
	}

	result.ReplayedBalance = running
	result.Consistent = running == account.Credits && result.FirstBrokenEntryID == 0
	return result, nil
}
