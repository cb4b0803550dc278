package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/config"
	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/http/api/admin"
	"github.com/pathway-hq/credits/internal/http/api/front"
	"github.com/pathway-hq/credits/internal/joblock"
	"github.com/pathway-hq/credits/internal/metrics"
	"github.com/pathway-hq/credits/internal/pricing"
	"github.com/pathway-hq/credits/internal/streak"
	"github.com/pathway-hq/credits/internal/unlock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	metricsNamespace = "credits"
	shutdownTimeout  = 10 * time.Second
)

// ErrNotMigrated is returned by commands that expect an existing schema.
var ErrNotMigrated = errors.New("database not migrated, run the migrate command first")

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, _, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// components holds the wired domain services.
type components struct {
	conn      *gorm.DB
	pricing   *pricing.Service
	ledger    *credits.Ledger
	unlocker  *unlock.Unlocker
	streak    *streak.Engine
	metrics   *metrics.Recorder
	locks     *joblock.Manager
	scheduler *credits.Scheduler
}

// buildComponents wires every service against an open, migrated connection.
func buildComponents(conn *gorm.DB, configPath string) (*components, error) {
	pricingCfg, errPricing := config.LoadPricingConfig(configPath)
	if errPricing != nil {
		return nil, errPricing
	}
	refreshCfg, errRefresh := config.LoadRefreshConfig(configPath)
	if errRefresh != nil {
		return nil, errRefresh
	}
	lockCfg, errLock := config.LoadJobLockConfig(configPath)
	if errLock != nil {
		return nil, errLock
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, errMetrics := metrics.NewRecorder(metricsNamespace, registry)
	if errMetrics != nil {
		return nil, errMetrics
	}

	pricingSvc := pricing.NewService(conn, pricing.WithCacheTTL(pricingCfg.CacheTTL))
	ledger := credits.NewLedger(conn, pricingSvc)
	locks := joblock.NewManager(func() joblock.Settings {
		return joblock.Settings{
			RedisEnabled:  lockCfg.RedisEnabled,
			RedisAddr:     lockCfg.RedisAddr,
			RedisPassword: lockCfg.RedisPassword,
			RedisDB:       lockCfg.RedisDB,
			RedisPrefix:   lockCfg.RedisPrefix,
		}
	}, nil, nil)

	c := &components{
		conn:     conn,
		pricing:  pricingSvc,
		ledger:   ledger,
		unlocker: unlock.NewUnlocker(conn, ledger, pricingSvc),
		streak:   streak.NewEngine(conn, streak.NewGormActivitySource(conn)),
		metrics:  recorder,
		locks:    locks,
	}
	if refreshCfg.IsEnabled() {
		c.scheduler = credits.NewScheduler(ledger, locks, recorder, credits.SchedulerConfig{
			Interval:  refreshCfg.Interval,
			BatchSize: refreshCfg.BatchSize,
			LockTTL:   refreshCfg.LockTTL,
		})
	}
	return c, nil
}

// newEngine builds the gin engine serving the front and admin APIs.
func newEngine(c *components, serverCfg config.ServerConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	front.RegisterFrontRoutes(engine, front.Services{
		Ledger:   c.ledger,
		Unlocker: c.unlocker,
		Streak:   c.streak,
		Pricing:  c.pricing,
		Metrics:  c.metrics,
	}, serverCfg.UserHeader)
	admin.RegisterAdminRoutes(engine, admin.Services{
		DB:      c.conn,
		Ledger:  c.ledger,
		Pricing: c.pricing,
		Metrics: c.metrics,
	}, serverCfg.AdminToken)
	return engine
}

// RunServer boots the credits API and the refresh scheduler.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	log.SetLevel(config.LoadLogLevel(configPath))

	conn, dsn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	serverCfg, errServer := config.LoadServerConfig(configPath, defaultPort)
	if errServer != nil {
		return errServer
	}
	c, errBuild := buildComponents(conn, configPath)
	if errBuild != nil {
		return errBuild
	}
	defer func() {
		if errClose := c.locks.Close(); errClose != nil {
			log.WithError(errClose).Warn("job lock close failed")
		}
	}()
	if serverCfg.AdminToken == "" {
		log.Warn("admin token not configured, admin API is disabled")
	}

	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverCfg.Port),
		Handler:           newEngine(c, serverCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("starting credits server on %s (config=%s, db=%s)", srv.Addr, configPath, describeDSN(dsn))
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			return errListen
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
		return nil
	})
	if c.scheduler != nil {
		g.Go(func() error { return c.scheduler.Run(gctx) })
	} else {
		log.Info("refresh scheduler disabled")
	}
	return g.Wait()
}

// RunRefresh runs a single refresh batch and logs the report.
func RunRefresh(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	log.SetLevel(config.LoadLogLevel(configPath))

	conn, _, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	migrated, errState := IsMigrated(conn)
	if errState != nil {
		return errState
	}
	if !migrated {
		return ErrNotMigrated
	}
	c, errBuild := buildComponents(conn, configPath)
	if errBuild != nil {
		return errBuild
	}
	defer func() {
		if errClose := c.locks.Close(); errClose != nil {
			log.WithError(errClose).Warn("job lock close failed")
		}
	}()
	scheduler := c.scheduler
	if scheduler == nil {
		refreshCfg, errRefresh := config.LoadRefreshConfig(configPath)
		if errRefresh != nil {
			return errRefresh
		}
		scheduler = credits.NewScheduler(c.ledger, c.locks, c.metrics, credits.SchedulerConfig{
			BatchSize: refreshCfg.BatchSize,
			LockTTL:   refreshCfg.LockTTL,
		})
	}

	report, ran, errRun := scheduler.RunOnce(ctx)
	if errRun != nil {
		return errRun
	}
	if !ran {
		log.Info("refresh skipped, another run holds the job lock")
		return nil
	}
	log.WithFields(log.Fields{
		"refreshed": len(report.Refreshed),
		"skipped":   len(report.Skipped),
		"failed":    len(report.Failed),
	}).Info("refresh finished")
	return nil
}

// openDatabase resolves the DSN and opens the connection.
func openDatabase(cfg config.AppConfig) (*gorm.DB, string, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return nil, "", err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, "", err
	}
	return conn, dsn, nil
}
