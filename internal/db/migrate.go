package db

import (
	"errors"
	"fmt"

	"github.com/pathway-hq/credits/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migrationModels lists every table owned or read by the credit core.
func migrationModels() []any {
	return []any{
		&models.User{},
		&models.PricingConfig{},
		&models.CreditTransaction{},
		&models.EarlyAccessUnlock{},
		&models.OpportunityApplication{},
		&models.InternalApplication{},
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(migrationModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines a raw schema statement.
	type ddl struct {
		name string // Logical statement name.
		sql  string // Statement SQL.
	}
	ddls := []ddl{
		{
			name: "idx_credit_transactions_user_id_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id_id
				ON credit_transactions (user_id, id)
			`,
		},
		{
			name: "idx_users_refresh_due",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_users_refresh_due
				ON users (credits_refresh_date NULLS FIRST, id)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return ensureDefaultPricing(conn)
}

// migrateSQLite applies SQLite schema updates.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(migrationModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id_id
		ON credit_transactions (user_id, id)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create index idx_credit_transactions_user_id_id: %w", errIdx)
	}
	return ensureDefaultPricing(conn)
}

// ensureDefaultPricing seeds the pricing singleton when it does not exist yet.
func ensureDefaultPricing(conn *gorm.DB) error {
	var existing models.PricingConfig
	errFind := conn.Where("id = ?", models.PricingConfigID).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query pricing config: %w", errFind)
	}

	seed := models.DefaultPricingConfig()
	if errCreate := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; errCreate != nil {
		return fmt.Errorf("db: create pricing config: %w", errCreate)
	}
	return nil
}
