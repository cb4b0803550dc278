package app

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pathway-hq/credits/internal/config"
	"github.com/pathway-hq/credits/internal/db"
	"gorm.io/gorm"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(InitRequest{
		DatabaseType: "postgres",
		DatabaseHost: "localhost",
		DatabasePort: 5432,
		DatabaseUser: "credits",
		DatabaseName: "credits",
	})
	if err != nil {
		t.Fatalf("BuildDSN: %v", err)
	}
	if dsn != "postgres://credits:@localhost:5432/credits?sslmode=disable" {
		t.Fatalf("unexpected postgres dsn %q", dsn)
	}

	dsn, err = BuildDSN(InitRequest{DatabaseType: "sqlite"})
	if err != nil {
		t.Fatalf("BuildDSN sqlite: %v", err)
	}
	if dsn != "file:"+defaultSQLitePath {
		t.Fatalf("unexpected sqlite dsn %q", dsn)
	}

	if _, err = BuildDSN(InitRequest{DatabaseType: "oracle"}); err == nil {
		t.Fatalf("expected unsupported database type error")
	}
}

func TestBuildDSNEscapesCredentials(t *testing.T) {
	password := "p@ss/w:rd?#%"
	dsn, err := BuildDSN(InitRequest{
		DatabaseHost:     "db.internal",
		DatabasePort:     6543,
		DatabaseUser:     "app user",
		DatabasePassword: password,
		DatabaseName:     "credits",
		DatabaseSSLMode:  "require",
	})
	if err != nil {
		t.Fatalf("BuildDSN: %v", err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if got, _ := u.User.Password(); got != password {
		t.Fatalf("password round trip: got %q", got)
	}
	if u.User.Username() != "app user" || u.Host != "db.internal:6543" || u.Path != "/credits" {
		t.Fatalf("unexpected dsn parts %+v", u)
	}
	if u.Query().Get("sslmode") != "require" {
		t.Fatalf("unexpected sslmode in %q", dsn)
	}
	if strings.Contains(describeDSN(dsn), "w:rd") {
		t.Fatalf("describeDSN leaked the password: %q", describeDSN(dsn))
	}
}

func TestInitRequestNormalize(t *testing.T) {
	req := InitRequest{DatabaseType: " Postgres ", DatabasePort: 5432}
	err := req.normalize()
	if err == nil || err.Error() != "database host, name, user required" {
		t.Fatalf("unexpected error %v", err)
	}

	req = InitRequest{DatabaseHost: "h", DatabaseUser: "u", DatabaseName: "n", DatabasePort: 70000}
	if err = req.normalize(); err == nil {
		t.Fatalf("expected port error")
	}

	req = InitRequest{DatabaseType: "sqlite", AdminToken: "  tok  "}
	if err = req.normalize(); err != nil {
		t.Fatalf("normalize sqlite: %v", err)
	}
	if req.DatabasePath != defaultSQLitePath || req.AdminToken != "tok" {
		t.Fatalf("unexpected sqlite request %+v", req)
	}

	req = InitRequest{DatabaseType: "sqlite"}
	if err = req.normalize(); err != nil || len(req.AdminToken) != 32 {
		t.Fatalf("expected generated token, got %q (%v)", req.AdminToken, err)
	}
}

func TestWithDatabaseClosesPool(t *testing.T) {
	var opened *gorm.DB
	dsn := buildSQLiteDSN(filepath.Join(t.TempDir(), "credits.db"))
	if err := withDatabase(dsn, func(conn *gorm.DB) error {
		opened = conn
		return db.Migrate(conn)
	}); err != nil {
		t.Fatalf("withDatabase: %v", err)
	}
	sqlDB, err := opened.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	if errPing := sqlDB.Ping(); errPing == nil {
		t.Fatalf("expected closed pool after withDatabase")
	}
}

func TestRunInitWritesConfigAndMigrates(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "credits.db")

	if err := RunInit(configPath, InitRequest{DatabaseType: "sqlite", DatabasePath: dbPath, Port: 9090}); err != nil {
		t.Fatalf("RunInit: %v", err)
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		t.Fatalf("LoadDatabaseDSN: %v", err)
	}
	if !strings.HasSuffix(dsn, dbPath) {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	serverCfg, err := config.LoadServerConfig(configPath, 8080)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if serverCfg.Port != 9090 || serverCfg.AdminToken == "" {
		t.Fatalf("unexpected server config %+v", serverCfg)
	}
	refreshCfg, err := config.LoadRefreshConfig(configPath)
	if err != nil {
		t.Fatalf("LoadRefreshConfig: %v", err)
	}
	if !refreshCfg.IsEnabled() || refreshCfg.BatchSize <= 0 {
		t.Fatalf("unexpected refresh config %+v", refreshCfg)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if migrated, errState := IsMigrated(conn); errState != nil || !migrated {
		t.Fatalf("expected migrated database, got %v (%v)", migrated, errState)
	}

	if err = RunInit(configPath, InitRequest{DatabaseType: "sqlite", DatabasePath: dbPath}); err == nil {
		t.Fatalf("expected error when config already exists")
	}
}

func TestRunInitRejectsInvalidRequest(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := RunInit(configPath, InitRequest{DatabaseType: "postgres"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if ConfigExists(configPath) {
		t.Fatalf("config must not be written on validation failure")
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Fatalf("expected no config file, got %v", err)
	}
}
