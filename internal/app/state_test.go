package app

import (
	"path/filepath"
	"testing"

	"github.com/pathway-hq/credits/internal/db"
)

func TestIsMigrated(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "credits-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	migrated, err := IsMigrated(conn)
	if err != nil {
		t.Fatalf("IsMigrated: %v", err)
	}
	if migrated {
		t.Fatalf("expected migrated=false before migrate")
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	migrated, err = IsMigrated(conn)
	if err != nil {
		t.Fatalf("IsMigrated after migrate: %v", err)
	}
	if !migrated {
		t.Fatalf("expected migrated=true after migrate")
	}
}
