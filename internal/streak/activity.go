package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/pathway-hq/credits/internal/models"
	"gorm.io/gorm"
)

// ActivitySource counts qualifying activity events for a user in [start, end).
type ActivitySource interface {
	CountQualifying(ctx context.Context, userID uint64, start, end time.Time) (int64, error)
}

// GormActivitySource counts applications recorded by the platform's tracking tables.
type GormActivitySource struct {
	db *gorm.DB
}

// NewGormActivitySource constructs a GormActivitySource.
func NewGormActivitySource(db *gorm.DB) *GormActivitySource {
	return &GormActivitySource{db: db}
}

// CountQualifying sums external opportunities marked applied and internal applications.
func (s *GormActivitySource) CountQualifying(ctx context.Context, userID uint64, start, end time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("streak: activity source not initialized")
	}
	var applied int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.OpportunityApplication{}).
		Where("user_id = ? AND applied = ? AND applied_at >= ? AND applied_at < ?", userID, true, start, end).
		Count(&applied).Error; errCount != nil {
		return 0, fmt.Errorf("streak: count opportunity applications: %w", errCount)
	}
	var internal int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.InternalApplication{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Count(&internal).Error; errCount != nil {
		return 0, fmt.Errorf("streak: count internal applications: %w", errCount)
	}
	return applied + internal, nil
}
