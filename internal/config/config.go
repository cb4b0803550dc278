package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	internalsettings "github.com/pathway-hq/credits/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvLogLevel     = "LOG_LEVEL"
	EnvAdminToken   = "ADMIN_TOKEN"
	EnvRedisAddr    = "REDIS_ADDR"
	EnvDBPassword   = "DB_PASSWORD"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ServerConfig holds HTTP listener and identity settings.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	UserHeader string `yaml:"user-header"`
	AdminToken string `yaml:"admin-token"`
}

// RefreshConfig controls the monthly refresh scheduler.
type RefreshConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch-size"`
	LockTTL   time.Duration `yaml:"lock-ttl"`
}

// IsEnabled reports whether the scheduler should run; it defaults to on.
func (c RefreshConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PricingConfig controls the pricing snapshot cache.
type PricingConfig struct {
	CacheTTL time.Duration
}

// JobLockConfig selects the backend that dedupes scheduled jobs across replicas.
type JobLockConfig struct {
	RedisEnabled  bool   `yaml:"redis-enabled"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	RedisPrefix   string `yaml:"redis-prefix"`
}

// fileConfig maps the whole YAML config file.
type fileConfig struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	LogLevel        string        `yaml:"log-level"`
	PricingCacheTTL *string       `yaml:"pricing-cache-ttl"`
	Server          ServerConfig  `yaml:"server"`
	Refresh         RefreshConfig `yaml:"refresh"`
	JobLock         JobLockConfig `yaml:"job-lock"`
}

// readFileConfig parses the config file; a missing file yields an empty config.
func readFileConfig(configPath string) (fileConfig, error) {
	var cfg fileConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadLogLevel resolves the logrus level; invalid values fall back to info.
func LoadLogLevel(configPath string) log.Level {
	raw := strings.TrimSpace(os.Getenv(EnvLogLevel))
	if raw == "" {
		if cfg, errRead := readFileConfig(configPath); errRead == nil {
			raw = strings.TrimSpace(cfg.LogLevel)
		}
	}
	if raw == "" {
		return log.InfoLevel
	}
	level, errParse := log.ParseLevel(raw)
	if errParse != nil {
		return log.InfoLevel
	}
	return level
}

// LoadServerConfig loads listener settings; defaultPort applies when the file has none.
func LoadServerConfig(configPath string, defaultPort int) (ServerConfig, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return ServerConfig{}, errRead
	}
	result := cfg.Server
	if result.Port <= 0 {
		result.Port = defaultPort
	}
	result.UserHeader = strings.TrimSpace(result.UserHeader)
	if result.UserHeader == "" {
		result.UserHeader = internalsettings.DefaultUserHeader
	}
	if token := strings.TrimSpace(os.Getenv(EnvAdminToken)); token != "" {
		result.AdminToken = token
	}
	result.AdminToken = strings.TrimSpace(result.AdminToken)
	return result, nil
}

// defaultRefreshLockTTL bounds how long one replica may hold the refresh job.
const defaultRefreshLockTTL = 10 * time.Minute

// LoadRefreshConfig loads scheduler settings with defaults.
func LoadRefreshConfig(configPath string) (RefreshConfig, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return RefreshConfig{}, errRead
	}
	result := cfg.Refresh
	if result.Interval <= 0 {
		result.Interval = internalsettings.DefaultRefreshInterval
	}
	if result.BatchSize <= 0 {
		result.BatchSize = internalsettings.DefaultRefreshBatchSize
	}
	if result.LockTTL <= 0 {
		result.LockTTL = defaultRefreshLockTTL
	}
	return result, nil
}

// LoadPricingConfig loads the pricing cache TTL. An explicit "0" disables caching.
func LoadPricingConfig(configPath string) (PricingConfig, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return PricingConfig{}, errRead
	}
	result := PricingConfig{CacheTTL: internalsettings.DefaultPricingCacheTTL}
	if cfg.PricingCacheTTL == nil {
		return result, nil
	}
	raw := strings.TrimSpace(*cfg.PricingCacheTTL)
	if raw == "0" {
		result.CacheTTL = 0
		return result, nil
	}
	ttl, errParse := time.ParseDuration(raw)
	if errParse != nil {
		if seconds, errAtoi := strconv.Atoi(raw); errAtoi == nil && seconds >= 0 {
			result.CacheTTL = time.Duration(seconds) * time.Second
			return result, nil
		}
		return PricingConfig{}, fmt.Errorf("parse pricing-cache-ttl %q: %w", raw, errParse)
	}
	if ttl < 0 {
		return PricingConfig{}, fmt.Errorf("pricing-cache-ttl must not be negative, got %s", ttl)
	}
	result.CacheTTL = ttl
	return result, nil
}

// LoadJobLockConfig loads the job lock backend settings.
func LoadJobLockConfig(configPath string) (JobLockConfig, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return JobLockConfig{}, errRead
	}
	result := cfg.JobLock
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.RedisAddr = addr
		result.RedisEnabled = true
	}
	result.RedisAddr = strings.TrimSpace(result.RedisAddr)
	if strings.TrimSpace(result.RedisPrefix) == "" {
		result.RedisPrefix = internalsettings.DefaultJobLockPrefix
	}
	if result.RedisDB < 0 {
		result.RedisDB = 0
	}
	return result, nil
}
