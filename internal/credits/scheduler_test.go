package credits

import (
	"context"
	"testing"
	"time"

	"github.com/pathway-hq/credits/internal/joblock"
	"github.com/pathway-hq/credits/internal/models"
	internalsettings "github.com/pathway-hq/credits/internal/settings"
)

func TestSchedulerRunOnceRefreshesDueUsers(t *testing.T) {
	conn, ledger := setupLedger(t)
	user := createUser(t, conn, models.PlanFree, 0)

	scheduler := NewScheduler(ledger, joblock.NewManager(nil, nil, nil), nil, SchedulerConfig{BatchSize: 10})
	report, ran, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !ran || len(report.Refreshed) != 1 || report.Refreshed[0].UserID != user.ID {
		t.Fatalf("unexpected report ran=%v %+v", ran, report)
	}
	if stored := loadUser(t, conn, user.ID); stored.Credits != 5 {
		t.Fatalf("expected balance 5, got %d", stored.Credits)
	}

	report, ran, err = scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !ran || len(report.Refreshed) != 0 {
		t.Fatalf("expected nothing due on second run, got %+v", report)
	}
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	conn, ledger := setupLedger(t)
	user := createUser(t, conn, models.PlanFree, 0)

	locks := joblock.NewManager(nil, nil, nil)
	lease, ok, err := locks.TryAcquire(context.Background(), internalsettings.RefreshJobName, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	defer lease.Release(context.Background())

	scheduler := NewScheduler(ledger, locks, nil, SchedulerConfig{})
	_, ran, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if ran {
		t.Fatalf("expected tick to be skipped while lock is held")
	}
	if stored := loadUser(t, conn, user.ID); stored.Credits != 0 {
		t.Fatalf("expected balance untouched, got %d", stored.Credits)
	}
}

func TestSchedulerPagesPastFailingUsers(t *testing.T) {
	conn, ledger := setupLedger(t)
	legacyA := createUser(t, conn, models.SubscriptionPlan("LEGACY"), 1)
	legacyB := createUser(t, conn, models.SubscriptionPlan("LEGACY"), 2)
	free := createUser(t, conn, models.PlanFree, 0)

	scheduler := NewScheduler(ledger, joblock.NewManager(nil, nil, nil), nil, SchedulerConfig{BatchSize: 2})
	for tick := 1; tick <= 2; tick++ {
		report, ran, err := scheduler.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if !ran || len(report.Failed) != 2 {
			t.Fatalf("tick %d: expected both legacy users to fail, got %+v", tick, report)
		}
		if tick == 1 && (len(report.Refreshed) != 1 || report.Refreshed[0].UserID != free.ID) {
			t.Fatalf("expected FREE user refreshed behind failing users, got %+v", report)
		}
	}

	if stored := loadUser(t, conn, free.ID); stored.Credits != 5 {
		t.Fatalf("expected FREE user balance 5, got %d", stored.Credits)
	}
	for _, id := range []uint64{legacyA.ID, legacyB.ID} {
		if stored := loadUser(t, conn, id); stored.CreditsRefreshDate != nil {
			t.Fatalf("failed user %d must stay due, got %+v", id, stored)
		}
	}
}
