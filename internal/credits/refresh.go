package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RefreshOutcome describes one refreshed user.
type RefreshOutcome struct {
	UserID        uint64 `json:"user_id"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
}

// RefreshFailure describes a user whose refresh was rolled back.
type RefreshFailure struct {
	UserID uint64 `json:"user_id"`
	Err    error  `json:"-"`
}

// RefreshReport summarizes a batch refresh.
type RefreshReport struct {
	Refreshed []RefreshOutcome `json:"refreshed"`
	Skipped   []uint64         `json:"skipped"`
	Failed    []RefreshFailure `json:"failed"`
}

// errNotDue marks a user whose refresh date has not been reached.
var errNotDue = errors.New("credits: refresh not due")

// MonthlyRefresh resets each listed user's balance to their plan allowance.
// Every user runs in its own transaction; one failure never affects another user.
// With no IDs, every due user is refreshed.
func (l *Ledger) MonthlyRefresh(ctx context.Context, userIDs ...uint64) (RefreshReport, error) {
	if errInit := l.ready(); errInit != nil {
		return RefreshReport{}, errInit
	}
	if len(userIDs) == 0 {
		ids, errDue := l.dueUserIDs(ctx, 0, 0)
		if errDue != nil {
			return RefreshReport{}, errDue
		}
		userIDs = ids
	}
	snap, errSnap := l.pricing.Snapshot(ctx)
	if errSnap != nil {
		return RefreshReport{}, errSnap
	}

	report := RefreshReport{}
	for i, userID := range userIDs {
		if errCtx := ctx.Err(); errCtx != nil {
			for _, rest := range userIDs[i:] {
				report.Failed = append(report.Failed, RefreshFailure{UserID: rest, Err: errCtx})
			}
			break
		}

		var outcome RefreshOutcome
		errRun := l.Run(ctx, func(tx *gorm.DB) error {
			res, errRefresh := l.refreshTx(tx, snap, userID)
			if errRefresh != nil {
				return errRefresh
			}
			outcome = res
			return nil
		})
		switch {
		case errRun == nil:
			report.Refreshed = append(report.Refreshed, outcome)
		case errors.Is(errRun, errNotDue):
			report.Skipped = append(report.Skipped, userID)
		default:
			log.WithError(errRun).WithField("user_id", userID).Warn("credits: monthly refresh failed")
			report.Failed = append(report.Failed, RefreshFailure{UserID: userID, Err: errRun})
		}
	}

	log.WithFields(log.Fields{
		"refreshed": len(report.Refreshed),
		"skipped":   len(report.Skipped),
		"failed":    len(report.Failed),
	}).Info("credits: monthly refresh finished")
	return report, nil
}

// RefreshDue refreshes up to limit users whose refresh date has passed.
func (l *Ledger) RefreshDue(ctx context.Context, limit int) (RefreshReport, error) {
	report, _, err := l.RefreshDueAfter(ctx, 0, limit)
	return report, err
}

// RefreshDueAfter refreshes up to limit due users with an id above afterID, in id order.
// next is the highest id examined, or 0 when no due user was left; passing it back as
// afterID pages past users whose refresh failed instead of picking them again.
func (l *Ledger) RefreshDueAfter(ctx context.Context, afterID uint64, limit int) (report RefreshReport, next uint64, err error) {
	if errInit := l.ready(); errInit != nil {
		return RefreshReport{}, 0, errInit
	}
	if limit <= 0 {
		return RefreshReport{}, 0, fmt.Errorf("credits: refresh due: limit must be positive, got %d", limit)
	}
	ids, errDue := l.dueUserIDs(ctx, afterID, limit)
	if errDue != nil {
		return RefreshReport{}, 0, errDue
	}
	if len(ids) == 0 {
		return RefreshReport{}, 0, nil
	}
	report, err = l.MonthlyRefresh(ctx, ids...)
	if err != nil {
		return RefreshReport{}, 0, err
	}
	return report, ids[len(ids)-1], nil
}

func (l *Ledger) dueUserIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	query := l.db.WithContext(ctx).
		Model(&models.User{}).
		Where("(credits_refresh_date IS NULL OR credits_refresh_date <= ?)", l.nowFn().UTC()).
		Order("id ASC")
	if afterID > 0 {
		query = query.Where("id > ?", afterID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ids []uint64
	if errFind := query.Pluck("id", &ids).Error; errFind != nil {
		return nil, fmt.Errorf("credits: list due users: %w", errFind)
	}
	return ids, nil
}

// refreshTx locks the user row, re-checks eligibility and replaces the balance.
func (l *Ledger) refreshTx(tx *gorm.DB, snap pricing.Snapshot, userID uint64) (RefreshOutcome, error) {
	now := l.nowFn().UTC()

	var user models.User
	if errFind := db.LockForUpdate(tx).
		Select("id", "subscription_plan", "credits", "credits_refresh_date").
		Where("id = ?", userID).
		Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return RefreshOutcome{}, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return RefreshOutcome{}, classify("refresh lock", fmt.Errorf("credits: refresh lock: %w", errFind))
	}
	if user.CreditsRefreshDate != nil && user.CreditsRefreshDate.After(now) {
		return RefreshOutcome{}, errNotDue
	}

	allowance, errAllowance := snap.Allowance(user.SubscriptionPlan)
	if errAllowance != nil {
		return RefreshOutcome{}, errAllowance
	}
	next := now.AddDate(0, 1, 0)

	res := tx.Model(&models.User{}).
		Where("id = ? AND credits = ?", userID, user.Credits).
		Updates(map[string]any{
			"credits":              allowance,
			"credits_refresh_date": next,
			"updated_at":           now,
		})
	if res.Error != nil {
		return RefreshOutcome{}, classify("refresh", res.Error)
	}
	if res.RowsAffected == 0 {
		return RefreshOutcome{}, fmt.Errorf("%w: balance of user %d changed during refresh", ErrPersistenceConflict, userID)
	}

	entry := models.CreditTransaction{
		UserID:        userID,
		Type:          models.TransactionMonthlyRefresh,
		Amount:        allowance - user.Credits,
		BalanceBefore: user.Credits,
		BalanceAfter:  allowance,
		Description:   fmt.Sprintf("Monthly refresh: %d credits (%s plan)", allowance, user.SubscriptionPlan),
		CreatedAt:     now,
	}
	if errAppend := appendEntry(tx, &entry); errAppend != nil {
		return RefreshOutcome{}, errAppend
	}
	return RefreshOutcome{UserID: userID, BalanceBefore: user.Credits, BalanceAfter: allowance}, nil
}

