package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// conflictBackoff is the base delay between retries of a conflicted unit.
	conflictBackoff        = 20 * time.Millisecond
	defaultConflictRetries = 2
)

// Ledger owns user balances and their append-only transaction log.
type Ledger struct {
	db              *gorm.DB
	pricing         *pricing.Service
	nowFn           func() time.Time
	conflictRetries int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(l *Ledger) {
		if nowFn != nil {
			l.nowFn = nowFn
		}
	}
}

// WithConflictRetries retries a rolled-back unit up to n extra times on ErrPersistenceConflict.
func WithConflictRetries(n int) Option {
	return func(l *Ledger) {
		if n < 0 {
			n = 0
		}
		l.conflictRetries = n
	}
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB, pricingSvc *pricing.Service, opts ...Option) *Ledger {
	l := &Ledger{
		db:              db,
		pricing:         pricingSvc,
		nowFn:           time.Now,
		conflictRetries: defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Account is the credit state of a user.
type Account struct {
	UserID              uint64                  `json:"user_id"`
	SubscriptionPlan    models.SubscriptionPlan `json:"subscription_plan"`
	Credits             int64                   `json:"credits"`
	LifetimeCreditsUsed int64                   `json:"lifetime_credits_used"`
	CreditsRefreshDate  *time.Time              `json:"credits_refresh_date"`
}

// SpendRequest describes a charge for an action.
type SpendRequest struct {
	UserID      uint64
	Action      models.ActionKind
	RelatedID   string
	Description string
}

// AdjustRequest describes a refund or purchase.
type AdjustRequest struct {
	UserID      uint64
	Amount      int64
	RelatedID   string
	Description string
}

// Result describes a committed balance change.
type Result struct {
	TransactionID uint64 `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
}

// GetAccount returns the credit state of a user.
func (l *Ledger) GetAccount(ctx context.Context, userID uint64) (Account, error) {
	if errInit := l.ready(); errInit != nil {
		return Account{}, errInit
	}
	return loadAccount(l.db.WithContext(ctx), userID)
}

// GetBalance returns the current spendable balance.
func (l *Ledger) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	account, err := l.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Credits, nil
}

// Spend charges the configured cost of an action.
func (l *Ledger) Spend(ctx context.Context, req SpendRequest) (Result, error) {
	if errInit := l.ready(); errInit != nil {
		return Result{}, errInit
	}
	cost, errCost := l.pricing.Cost(ctx, req.Action)
	if errCost != nil {
		return Result{}, errCost
	}

	var out Result
	errRun := l.Run(ctx, func(tx *gorm.DB) error {
		res, errSpend := l.SpendTx(tx, req, cost)
		if errSpend != nil {
			return errSpend
		}
		out = res
		return nil
	})
	if errRun != nil {
		return Result{}, errRun
	}

	log.WithFields(log.Fields{
		"user_id": req.UserID,
		"action":  req.Action,
		"cost":    cost,
		"balance": out.BalanceAfter,
	}).Debug("credits: spent")
	return out, nil
}

// SpendTx deducts cost inside the caller's transaction. The decrement is a single
// conditional update, so concurrent spends can never drive the balance negative.
func (l *Ledger) SpendTx(tx *gorm.DB, req SpendRequest, cost int64) (Result, error) {
	if tx == nil {
		return Result{}, errors.New("credits: nil tx")
	}
	if cost < 0 {
		return Result{}, fmt.Errorf("credits: negative cost %d", cost)
	}
	now := l.nowFn().UTC()

	res := tx.Model(&models.User{}).
		Where("id = ? AND credits >= ?", req.UserID, cost).
		Updates(map[string]any{
			"credits":               gorm.Expr("credits - ?", cost),
			"lifetime_credits_used": gorm.Expr("lifetime_credits_used + ?", cost),
			"updated_at":            now,
		})
	if res.Error != nil {
		if db.IsCheckViolation(res.Error) {
			// PostgreSQL has aborted the transaction, so the balance cannot be read back.
			return Result{}, &InsufficientCreditsError{Required: cost, Current: -1}
		}
		return Result{}, classify("spend", res.Error)
	}
	if res.RowsAffected == 0 {
		current, errBalance := loadBalance(tx, req.UserID)
		if errBalance != nil {
			return Result{}, errBalance
		}
		return Result{}, &InsufficientCreditsError{Required: cost, Current: current}
	}

	after, errBalance := loadBalance(tx, req.UserID)
	if errBalance != nil {
		return Result{}, errBalance
	}

	action := req.Action
	entry := models.CreditTransaction{
		UserID:        req.UserID,
		Type:          models.TransactionSpent,
		Action:        &action,
		Amount:        -cost,
		BalanceBefore: after + cost,
		BalanceAfter:  after,
		RelatedID:     optionalString(req.RelatedID),
		Description:   describe(req.Description, fmt.Sprintf("Spent %d credits on %s", cost, req.Action)),
		CreatedAt:     now,
	}
	if errAppend := appendEntry(tx, &entry); errAppend != nil {
		return Result{}, errAppend
	}
	return resultFromEntry(entry), nil
}

// Refund returns credits to a user; lifetime usage is left untouched.
func (l *Ledger) Refund(ctx context.Context, req AdjustRequest) (Result, error) {
	return l.adjust(ctx, req, models.TransactionRefund, "Refunded %d credits")
}

// Purchase adds bought credits to a user.
func (l *Ledger) Purchase(ctx context.Context, req AdjustRequest) (Result, error) {
	return l.adjust(ctx, req, models.TransactionPurchase, "Purchased %d credits")
}

func (l *Ledger) adjust(ctx context.Context, req AdjustRequest, kind models.TransactionType, defaultDescription string) (Result, error) {
	if errInit := l.ready(); errInit != nil {
		return Result{}, errInit
	}
	if req.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}

	var out Result
	errRun := l.Run(ctx, func(tx *gorm.DB) error {
		res, errAdjust := l.creditTx(tx, req, kind, defaultDescription)
		if errAdjust != nil {
			return errAdjust
		}
		out = res
		return nil
	})
	if errRun != nil {
		return Result{}, errRun
	}

	log.WithFields(log.Fields{
		"user_id": req.UserID,
		"type":    kind,
		"amount":  req.Amount,
		"balance": out.BalanceAfter,
	}).Info("credits: balance increased")
	return out, nil
}

// creditTx increments the balance and appends the matching entry.
func (l *Ledger) creditTx(tx *gorm.DB, req AdjustRequest, kind models.TransactionType, defaultDescription string) (Result, error) {
	now := l.nowFn().UTC()
	res := tx.Model(&models.User{}).
		Where("id = ?", req.UserID).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits + ?", req.Amount),
			"updated_at": now,
		})
	if res.Error != nil {
		return Result{}, classify(string(kind), res.Error)
	}
	if res.RowsAffected == 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrUserNotFound, req.UserID)
	}

	after, errBalance := loadBalance(tx, req.UserID)
	if errBalance != nil {
		return Result{}, errBalance
	}
	entry := models.CreditTransaction{
		UserID:        req.UserID,
		Type:          kind,
		Amount:        req.Amount,
		BalanceBefore: after - req.Amount,
		BalanceAfter:  after,
		RelatedID:     optionalString(req.RelatedID),
		Description:   describe(req.Description, fmt.Sprintf(defaultDescription, req.Amount)),
		CreatedAt:     now,
	}
	if errAppend := appendEntry(tx, &entry); errAppend != nil {
		return Result{}, errAppend
	}
	return resultFromEntry(entry), nil
}

// History returns the most recent ledger entries of a user, newest first.
func (l *Ledger) History(ctx context.Context, userID uint64, limit int) ([]models.CreditTransaction, error) {
	if errInit := l.ready(); errInit != nil {
		return nil, errInit
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []models.CreditTransaction
	if errFind := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("credits: history: %w", errFind)
	}
	return rows, nil
}

func (l *Ledger) ready() error {
	if l == nil || l.db == nil || l.pricing == nil {
		return errors.New("credits: ledger not initialized")
	}
	return nil
}

// Run executes fn in one database transaction. Transient failures roll the whole
// unit back and surface as ErrPersistenceConflict after the configured retries.
// fn must only use tx; on SQLite the pool holds a single connection.
func (l *Ledger) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if errInit := l.ready(); errInit != nil {
		return errInit
	}
	return l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(fn)
	})
}

// withRetry repeats fn while it fails with a persistence conflict.
func (l *Ledger) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= l.conflictRetries; attempt++ {
		err = classify("commit", fn())
		if !errors.Is(err, ErrPersistenceConflict) || attempt == l.conflictRetries {
			return err
		}
		log.WithError(err).WithField("attempt", attempt+1).Debug("credits: retrying after conflict")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * conflictBackoff):
		}
	}
	return err
}

// classify maps transient database failures onto ErrPersistenceConflict.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, ErrPersistenceConflict) {
		return err
	}
	if db.IsConflict(err) {
		return fmt.Errorf("%w: %s: %v", ErrPersistenceConflict, op, err)
	}
	return err
}

func loadAccount(conn *gorm.DB, userID uint64) (Account, error) {
	var user models.User
	if errFind := conn.
		Select("id", "subscription_plan", "credits", "lifetime_credits_used", "credits_refresh_date").
		Where("id = ?", userID).
		Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Account{}, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return Account{}, fmt.Errorf("credits: load account: %w", errFind)
	}
	plan := user.SubscriptionPlan
	if plan == "" {
		plan = models.PlanFree
	}
	return Account{
		UserID:              user.ID,
		SubscriptionPlan:    plan,
		Credits:             user.Credits,
		LifetimeCreditsUsed: user.LifetimeCreditsUsed,
		CreditsRefreshDate:  user.CreditsRefreshDate,
	}, nil
}

func loadBalance(tx *gorm.DB, userID uint64) (int64, error) {
	account, err := loadAccount(tx, userID)
	if err != nil {
		return 0, err
	}
	return account.Credits, nil
}

func appendEntry(tx *gorm.DB, entry *models.CreditTransaction) error {
	if errCreate := tx.Omit(clause.Associations).Create(entry).Error; errCreate != nil {
		return classify("append transaction", fmt.Errorf("credits: append transaction: %w", errCreate))
	}
	return nil
}

func resultFromEntry(entry models.CreditTransaction) Result {
	return Result{
		TransactionID: entry.ID,
		Amount:        entry.Amount,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func describe(description, fallback string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return fallback
}
