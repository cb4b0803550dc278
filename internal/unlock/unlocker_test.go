package unlock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
	"gorm.io/gorm"
)

type fixture struct {
	conn     *gorm.DB
	pricing  *pricing.Service
	ledger   *credits.Ledger
	unlocker *Unlocker
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "unlock-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	svc := pricing.NewService(conn)
	ledger := credits.NewLedger(conn, svc)
	return fixture{conn: conn, pricing: svc, ledger: ledger, unlocker: NewUnlocker(conn, ledger, svc)}
}

func (f fixture) createUser(t *testing.T, plan models.SubscriptionPlan, balance int64) uint64 {
	t.Helper()
	user := models.User{Email: fmt.Sprintf("%s-%d@example.com", plan, balance), SubscriptionPlan: plan, Credits: balance}
	if errCreate := f.conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user.ID
}

func (f fixture) count(t *testing.T, model any, userID uint64) int64 {
	t.Helper()
	var n int64
	if errCount := f.conn.Model(model).Where("user_id = ?", userID).Count(&n).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	return n
}

func TestUnlockChargesOnce(t *testing.T) {
	f := setup(t)
	userID := f.createUser(t, models.PlanFree, 12)
	ctx := context.Background()

	first, err := f.unlocker.Unlock(ctx, userID, "opp-1", "job")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if first.AlreadyUnlocked || first.CreditsSpent != 5 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := f.unlocker.Unlock(ctx, userID, "opp-1", "job")
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if !second.AlreadyUnlocked || second.CreditsSpent != 0 {
		t.Fatalf("unexpected second result %+v", second)
	}

	balance, err := f.ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 7 {
		t.Fatalf("expected balance 7, got %d", balance)
	}
	if n := f.count(t, &models.CreditTransaction{}, userID); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
	unlocked, err := f.unlocker.IsUnlocked(ctx, userID, "opp-1")
	if err != nil || !unlocked {
		t.Fatalf("expected unlocked, got %v (err=%v)", unlocked, err)
	}
}

func TestConcurrentUnlockChargesOnce(t *testing.T) {
	f := setup(t)
	userID := f.createUser(t, models.PlanFree, 20)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan Result, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.unlocker.Unlock(context.Background(), userID, "opp-race", "job")
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	charged := 0
	for res := range results {
		if !res.AlreadyUnlocked {
			charged++
			if res.CreditsSpent != 5 {
				t.Fatalf("expected cost 5, got %d", res.CreditsSpent)
			}
		}
	}
	if charged != 1 {
		t.Fatalf("expected exactly 1 charged unlock, got %d", charged)
	}
	if n := f.count(t, &models.EarlyAccessUnlock{}, userID); n != 1 {
		t.Fatalf("expected 1 unlock record, got %d", n)
	}
	if balance, _ := f.ledger.GetBalance(context.Background(), userID); balance != 15 {
		t.Fatalf("expected balance 15, got %d", balance)
	}
}

func TestUnlockFeeWaived(t *testing.T) {
	f := setup(t)
	userID := f.createUser(t, models.PlanStudentPro, 0)

	res, err := f.unlocker.Unlock(context.Background(), userID, "opp-free", "internship")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !res.FeeWaived || res.CreditsSpent != 0 || res.AlreadyUnlocked {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := f.count(t, &models.CreditTransaction{}, userID); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}

	rows, err := f.unlocker.List(context.Background(), userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].UsedCredit || rows[0].OpportunityType != "internship" {
		t.Fatalf("unexpected unlock rows %+v", rows)
	}
}

func TestUnlockInsufficientThenRefundAndRetry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if _, err := f.pricing.Update(ctx, pricing.Update{
		Costs: map[models.ActionKind]int64{models.ActionEarlyAccess: 7},
	}); err != nil {
		t.Fatalf("update pricing: %v", err)
	}
	userID := f.createUser(t, models.PlanFree, 0)

	_, err := f.unlocker.Unlock(ctx, userID, "opp-7", "job")
	insufficient, ok := credits.AsInsufficientCredits(err)
	if !ok {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if insufficient.Required != 7 || insufficient.Current != 0 {
		t.Fatalf("unexpected error payload %+v", insufficient)
	}
	if n := f.count(t, &models.EarlyAccessUnlock{}, userID); n != 0 {
		t.Fatalf("failed unlock must leave no record, got %d", n)
	}

	if _, err = f.ledger.Refund(ctx, credits.AdjustRequest{UserID: userID, Amount: 7}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	res, err := f.unlocker.Unlock(ctx, userID, "opp-7", "job")
	if err != nil {
		t.Fatalf("retry unlock: %v", err)
	}
	if res.AlreadyUnlocked || res.CreditsSpent != 7 {
		t.Fatalf("unexpected retry result %+v", res)
	}
	if balance, _ := f.ledger.GetBalance(ctx, userID); balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
	if n := f.count(t, &models.EarlyAccessUnlock{}, userID); n != 1 {
		t.Fatalf("expected exactly 1 unlock record, got %d", n)
	}
}

func TestUnlockValidation(t *testing.T) {
	f := setup(t)
	if _, err := f.unlocker.Unlock(context.Background(), 999999, "opp", "job"); !errors.Is(err, credits.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	userID := f.createUser(t, models.PlanFree, 5)
	if _, err := f.unlocker.Unlock(context.Background(), userID, "  ", "job"); !errors.Is(err, ErrInvalidOpportunity) {
		t.Fatalf("expected ErrInvalidOpportunity, got %v", err)
	}
}
