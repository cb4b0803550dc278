package app

import (
	"fmt"

	"github.com/pathway-hq/credits/internal/models"
	"gorm.io/gorm"
)

// IsMigrated reports whether the schema exists and the pricing row has been seeded.
func IsMigrated(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	migrator := conn.Migrator()
	if !migrator.HasTable(&models.User{}) || !migrator.HasTable(&models.PricingConfig{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.PricingConfig{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
