package models

import "time"

// OpportunityApplication tracks a user marking an external opportunity as applied.
type OpportunityApplication struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64 `gorm:"not null;index:idx_opportunity_applications_user_applied,priority:1"` // Applicant user ID.
	OpportunityID string `gorm:"type:varchar(255);not null"`                                          // Opportunity reference.

	Applied   bool       `gorm:"not null;default:false"`                                     // Whether the user marked it applied.
	AppliedAt *time.Time `gorm:"index:idx_opportunity_applications_user_applied,priority:2"` // When it was marked applied.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// InternalApplication tracks an application submitted through the platform.
type InternalApplication struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64 `gorm:"not null;index:idx_internal_applications_user_created,priority:1"` // Applicant user ID.
	OpportunityID string `gorm:"type:varchar(255);not null"`                                       // Opportunity reference.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_internal_applications_user_created,priority:2"` // Submission timestamp.
}
