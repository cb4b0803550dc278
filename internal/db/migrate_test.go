package db

import (
	"path/filepath"
	"testing"

	"github.com/pathway-hq/credits/internal/models"
)

func TestMigrateSeedsPricingOnce(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "credits-test.db")
	conn, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}

	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate run %d: %v", i+1, errMigrate)
		}
	}

	var count int64
	if errCount := conn.Model(&models.PricingConfig{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count pricing: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 pricing row, got %d", count)
	}

	var cfg models.PricingConfig
	if errFind := conn.First(&cfg, models.PricingConfigID).Error; errFind != nil {
		t.Fatalf("load pricing: %v", errFind)
	}
	if cfg.EarlyAccessCost != models.DefaultPricingConfig().EarlyAccessCost {
		t.Fatalf("expected default early access cost, got %d", cfg.EarlyAccessCost)
	}
}

func TestMigrateEnforcesUniqueUnlock(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "credits-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	user := models.User{Email: "unique@example.com", SubscriptionPlan: models.PlanFree}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}

	first := models.EarlyAccessUnlock{UserID: user.ID, OpportunityID: "opp-1", OpportunityType: "job"}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create first unlock: %v", errCreate)
	}
	second := models.EarlyAccessUnlock{UserID: user.ID, OpportunityID: "opp-1", OpportunityType: "job"}
	errDup := conn.Create(&second).Error
	if errDup == nil {
		t.Fatalf("expected unique violation, got nil")
	}
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected unique violation classification, got %v", errDup)
	}
}

func TestMigrateRejectsNegativeCredits(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "credits-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	user := models.User{Email: "negative@example.com", SubscriptionPlan: models.PlanFree}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	errUpdate := conn.Model(&models.User{}).Where("id = ?", user.ID).Update("credits", -1).Error
	if errUpdate == nil {
		t.Fatalf("expected check constraint error, got nil")
	}
	if !IsCheckViolation(errUpdate) {
		t.Fatalf("expected check violation classification, got %v", errUpdate)
	}
}
