package models

import "time"

// EarlyAccessUnlock records that a user has paid for (or been granted) early access.
type EarlyAccessUnlock struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64 `gorm:"not null;uniqueIndex:idx_early_access_unlocks_user_opportunity,priority:1"`                   // Unlocking user ID.
	OpportunityID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_early_access_unlocks_user_opportunity,priority:2"` // Unlocked opportunity ID.

	OpportunityType string `gorm:"type:varchar(64);not null"` // Opportunity category.
	UsedCredit      bool   `gorm:"not null;default:false"`    // Whether credits were charged.
	CreditsSpent    int64  `gorm:"not null;default:0"`        // Credits charged for the unlock.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Unlock timestamp.
}
