// Package unlock grants per-opportunity early access, charging credits at most once.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidOpportunity is returned for an empty opportunity reference.
var ErrInvalidOpportunity = errors.New("unlock: opportunity id is required")

// errAlreadyUnlocked rolls back a transaction that lost the insert race.
var errAlreadyUnlocked = errors.New("unlock: already unlocked")

// Result reports the outcome of an unlock request.
type Result struct {
	AlreadyUnlocked bool  `json:"already_unlocked"`
	CreditsSpent    int64 `json:"credits_spent"`
	FeeWaived       bool  `json:"fee_waived"`
}

// Unlocker records early access unlocks and charges the ledger.
type Unlocker struct {
	db      *gorm.DB
	ledger  *credits.Ledger
	pricing *pricing.Service
}

// NewUnlocker constructs an Unlocker.
func NewUnlocker(db *gorm.DB, ledger *credits.Ledger, pricingSvc *pricing.Service) *Unlocker {
	return &Unlocker{db: db, ledger: ledger, pricing: pricingSvc}
}

// Unlock grants early access to an opportunity. Repeated and concurrent calls for the
// same user and opportunity charge at most once; later callers get AlreadyUnlocked.
func (u *Unlocker) Unlock(ctx context.Context, userID uint64, opportunityID, opportunityType string) (Result, error) {
	if u == nil || u.db == nil || u.ledger == nil || u.pricing == nil {
		return Result{}, errors.New("unlock: not initialized")
	}
	opportunityID = strings.TrimSpace(opportunityID)
	if opportunityID == "" {
		return Result{}, ErrInvalidOpportunity
	}
	opportunityType = strings.TrimSpace(opportunityType)

	unlocked, errCheck := u.IsUnlocked(ctx, userID, opportunityID)
	if errCheck != nil {
		return Result{}, errCheck
	}
	if unlocked {
		return Result{AlreadyUnlocked: true}, nil
	}

	account, errAccount := u.ledger.GetAccount(ctx, userID)
	if errAccount != nil {
		return Result{}, errAccount
	}
	snap, errSnap := u.pricing.Snapshot(ctx)
	if errSnap != nil {
		return Result{}, errSnap
	}
	waived := snap.FeeWaived(account.SubscriptionPlan)
	var cost int64
	if !waived {
		c, errCost := snap.Cost(models.ActionEarlyAccess)
		if errCost != nil {
			return Result{}, errCost
		}
		cost = c
	}

	errRun := u.ledger.Run(ctx, func(tx *gorm.DB) error {
		record := models.EarlyAccessUnlock{
			UserID:          userID,
			OpportunityID:   opportunityID,
			OpportunityType: opportunityType,
			UsedCredit:      !waived,
			CreditsSpent:    cost,
		}
		if errCreate := tx.Omit(clause.Associations).Create(&record).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return errAlreadyUnlocked
			}
			return fmt.Errorf("unlock: create record: %w", errCreate)
		}
		if waived {
			return nil
		}
		_, errSpend := u.ledger.SpendTx(tx, credits.SpendRequest{
			UserID:      userID,
			Action:      models.ActionEarlyAccess,
			RelatedID:   opportunityID,
			Description: fmt.Sprintf("Early access unlock: %s", opportunityID),
		}, cost)
		return errSpend
	})
	if errors.Is(errRun, errAlreadyUnlocked) {
		return Result{AlreadyUnlocked: true}, nil
	}
	if errRun != nil {
		return Result{}, errRun
	}

	log.WithFields(log.Fields{
		"user_id":        userID,
		"opportunity_id": opportunityID,
		"credits_spent":  cost,
		"fee_waived":     waived,
	}).Info("unlock: early access granted")
	return Result{CreditsSpent: cost, FeeWaived: waived}, nil
}

// IsUnlocked reports whether the user already holds early access to the opportunity.
func (u *Unlocker) IsUnlocked(ctx context.Context, userID uint64, opportunityID string) (bool, error) {
	var count int64
	if errCount := u.db.WithContext(ctx).
		Model(&models.EarlyAccessUnlock{}).
		Where("user_id = ? AND opportunity_id = ?", userID, strings.TrimSpace(opportunityID)).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("unlock: check record: %w", errCount)
	}
	return count > 0, nil
}

// List returns the user's unlocks, newest first.
func (u *Unlocker) List(ctx context.Context, userID uint64) ([]models.EarlyAccessUnlock, error) {
	var rows []models.EarlyAccessUnlock
	if errFind := u.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("unlock: list: %w", errFind)
	}
	return rows, nil
}
