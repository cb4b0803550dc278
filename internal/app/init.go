package app

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pathway-hq/credits/internal/db"
	internalsettings "github.com/pathway-hq/credits/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// InitRequest contains parameters for writing the initial config file.
type InitRequest struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabasePath     string
	DatabaseSSLMode  string
	Port             int
	AdminToken       string
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "credits.db"

// BuildDSN builds a database DSN from the init request. Credentials are
// URL-escaped so passwords may contain any character.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(req.DatabaseUser, req.DatabasePassword),
			Host:     net.JoinHostPort(req.DatabaseHost, strconv.Itoa(req.DatabasePort)),
			Path:     "/" + req.DatabaseName,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return u.String(), nil
	case "sqlite":
		return buildSQLiteDSN(req.DatabasePath), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", req.DatabaseType)
	}
}

// buildSQLiteDSN constructs a file: DSN; db.Open appends the pragmas.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	return dsn
}

// withDatabase opens dsn, runs fn and closes the pool again.
func withDatabase(dsn string, fn func(conn *gorm.DB) error) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("close database: %v", errClose)
		}
	}()
	return fn(conn)
}

func pingDatabase(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// normalize fills defaults and rejects requests that cannot produce a DSN.
func (r *InitRequest) normalize() error {
	r.DatabaseType = strings.ToLower(strings.TrimSpace(r.DatabaseType))
	switch r.DatabaseType {
	case "", "postgres":
		r.DatabaseType = "postgres"
		var missing []string
		for name, value := range map[string]string{"host": r.DatabaseHost, "user": r.DatabaseUser, "name": r.DatabaseName} {
			if strings.TrimSpace(value) == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("database %s required", strings.Join(missing, ", "))
		}
		if r.DatabasePort <= 0 || r.DatabasePort > 65535 {
			return fmt.Errorf("invalid database port %d", r.DatabasePort)
		}
	case "sqlite":
		if strings.TrimSpace(r.DatabasePath) == "" {
			r.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type %q", r.DatabaseType)
	}
	if r.AdminToken = strings.TrimSpace(r.AdminToken); r.AdminToken == "" {
		r.AdminToken = generateAdminToken()
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	DatabaseDSN     string     `yaml:"database-dsn"`
	LogLevel        string     `yaml:"log-level"`
	PricingCacheTTL string     `yaml:"pricing-cache-ttl"`
	Server          serverCfg  `yaml:"server"`
	Refresh         refreshCfg `yaml:"refresh"`
	JobLock         jobLockCfg `yaml:"job-lock"`
}

// serverCfg holds listener settings for the generated config file.
type serverCfg struct {
	Port       int    `yaml:"port"`
	UserHeader string `yaml:"user-header"`
	AdminToken string `yaml:"admin-token"`
}

// refreshCfg holds scheduler settings for the generated config file.
type refreshCfg struct {
	Enabled   bool   `yaml:"enabled"`
	Interval  string `yaml:"interval"`
	BatchSize int    `yaml:"batch-size"`
	LockTTL   string `yaml:"lock-ttl"`
}

// jobLockCfg holds job lock settings for the generated config file.
type jobLockCfg struct {
	RedisEnabled bool   `yaml:"redis-enabled"`
	RedisAddr    string `yaml:"redis-addr"`
	RedisPrefix  string `yaml:"redis-prefix"`
}

// generateAdminToken creates a random admin bearer token.
func generateAdminToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, req InitRequest) error {
	cfg := configFile{
		DatabaseDSN:     dsn,
		LogLevel:        "info",
		PricingCacheTTL: internalsettings.DefaultPricingCacheTTL.String(),
		Server: serverCfg{
			Port:       req.Port,
			UserHeader: internalsettings.DefaultUserHeader,
			AdminToken: req.AdminToken,
		},
		Refresh: refreshCfg{
			Enabled:   true,
			Interval:  internalsettings.DefaultRefreshInterval.String(),
			BatchSize: internalsettings.DefaultRefreshBatchSize,
			LockTTL:   (10 * time.Minute).String(),
		},
		JobLock: jobLockCfg{
			RedisPrefix: internalsettings.DefaultJobLockPrefix,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// RunInit validates the request, checks the database, writes the config file, and migrates.
func RunInit(configPath string, req InitRequest) error {
	if ConfigExists(configPath) {
		return fmt.Errorf("config already exists at %s", configPath)
	}
	if errValidate := req.normalize(); errValidate != nil {
		return errValidate
	}

	dsn, errBuild := BuildDSN(req)
	if errBuild != nil {
		return errBuild
	}
	if errPing := withDatabase(dsn, pingDatabase); errPing != nil {
		return fmt.Errorf("database connection failed: %w", errPing)
	}
	if errWrite := WriteConfigFile(configPath, dsn, req); errWrite != nil {
		return errWrite
	}

	if errMigrate := withDatabase(dsn, db.Migrate); errMigrate != nil {
		if errRemove := os.Remove(configPath); errRemove != nil {
			log.Errorf("remove config file error: %v", errRemove)
		}
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	log.Infof("wrote %s (db=%s)", configPath, describeDSN(dsn))
	return nil
}
