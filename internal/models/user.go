package models

import (
	"time"

	"gorm.io/datatypes"
)

// User holds the credit and streak state of a platform account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email string `gorm:"type:text;uniqueIndex"` // Email address.
	Name  string `gorm:"type:text"`             // Display name.

	SubscriptionPlan SubscriptionPlan `gorm:"type:varchar(32);not null;default:'FREE'"` // Active subscription tier.

	Credits             int64      `gorm:"not null;default:0;check:chk_users_credits_non_negative,credits >= 0"` // Current spendable balance.
	LifetimeCreditsUsed int64      `gorm:"not null;default:0"`                                                   // Total credits ever spent.
	CreditsRefreshDate  *time.Time `gorm:"index"`                                                                // Next scheduled allowance refresh.

	CurrentStreak  int             `gorm:"not null;default:0"` // Consecutive active days ending at LastStreakDate.
	LongestStreak  int             `gorm:"not null;default:0"` // Best streak ever reached.
	LastStreakDate *datatypes.Date `gorm:"type:date"`          // Last calendar day (UTC) counted toward the streak.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
