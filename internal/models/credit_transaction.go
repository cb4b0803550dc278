package models

import "time"

// TransactionType classifies a ledger entry.
type TransactionType string

// TransactionType constants define ledger entry kinds.
const (
	// TransactionMonthlyRefresh replaces the balance with the plan allowance.
	TransactionMonthlyRefresh TransactionType = "monthly_refresh"
	// TransactionPurchase adds bought credits.
	TransactionPurchase TransactionType = "purchase"
	// TransactionSpent deducts the cost of an action.
	TransactionSpent TransactionType = "spent"
	// TransactionRefund returns credits to the user.
	TransactionRefund TransactionType = "refund"
)

// CreditTransaction is an append-only record of a balance change.
type CreditTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key; defines ledger order.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	Type   TransactionType `gorm:"type:varchar(32);not null;index"` // Entry kind.
	Action *ActionKind     `gorm:"type:varchar(64)"`                // Action charged, when Type is spent.

	Amount        int64 `gorm:"not null"` // Signed change; negative for spends.
	BalanceBefore int64 `gorm:"not null"` // Balance before the change.
	BalanceAfter  int64 `gorm:"not null"` // Balance after the change.

	RelatedID   *string `gorm:"type:varchar(255);index"` // Resource the change concerns.
	Description string  `gorm:"type:text"`               // Human readable note.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Write timestamp.
}
