package streak

import (
	"context"
	"testing"
	"time"

	"github.com/pathway-hq/credits/internal/models"
)

func TestGormActivitySourceCountsBothTables(t *testing.T) {
	conn := openTestDB(t)
	userID := createUser(t, conn, 0, 0, nil)

	today := civilDay(testNow)
	morning := today.Add(8 * time.Hour)
	lastNight := today.Add(-time.Hour)
	rows := []any{
		&models.OpportunityApplication{UserID: userID, OpportunityID: "ext-1", Applied: true, AppliedAt: &morning},
		&models.OpportunityApplication{UserID: userID, OpportunityID: "ext-2", Applied: true, AppliedAt: &lastNight},
		&models.OpportunityApplication{UserID: userID, OpportunityID: "ext-3", Applied: false, AppliedAt: &morning},
		&models.InternalApplication{UserID: userID, OpportunityID: "int-1", CreatedAt: morning},
		&models.InternalApplication{UserID: userID + 1, OpportunityID: "int-2", CreatedAt: morning},
	}
	for _, row := range rows {
		if errCreate := conn.Create(row).Error; errCreate != nil {
			t.Fatalf("create activity: %v", errCreate)
		}
	}

	source := NewGormActivitySource(conn)
	count, err := source.CountQualifying(context.Background(), userID, today, today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 qualifying events today, got %d", count)
	}

	res, err := newEngine(conn, source).UpdateStreak(context.Background(), userID)
	if err != nil {
		t.Fatalf("update streak: %v", err)
	}
	if !res.Success || res.Streak != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}
