package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pathway-hq/credits/internal/app"
	"github.com/pathway-hq/credits/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run dispatches to serve (default), migrate, refresh, or init.
func run(ctx context.Context, args []string) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8318, "server port (used when the config file sets none)")
	dbType := fs.String("db-type", "sqlite", "init: database type (sqlite or postgres)")
	dbPath := fs.String("db-path", "", "init: sqlite database file")
	dbHost := fs.String("db-host", "localhost", "init: postgres host")
	dbPort := fs.Int("db-port", 5432, "init: postgres port")
	dbUser := fs.String("db-user", "", "init: postgres user")
	dbName := fs.String("db-name", "", "init: postgres database name")
	dbSSLMode := fs.String("db-sslmode", "", "init: postgres sslmode")
	adminToken := fs.String("admin-token", "", "init: admin bearer token (generated when empty)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)

	switch command {
	case "serve":
		if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
			return fmt.Errorf("config not found at %s, run the init command first", configPath)
		}
		return app.RunServer(ctx, appCfg, *port)
	case "migrate":
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migration completed")
		return nil
	case "refresh":
		return app.RunRefresh(ctx, appCfg)
	case "init":
		return app.RunInit(configPath, app.InitRequest{
			DatabaseType:     *dbType,
			DatabaseHost:     *dbHost,
			DatabasePort:     *dbPort,
			DatabaseUser:     *dbUser,
			DatabasePassword: os.Getenv(config.EnvDBPassword),
			DatabaseName:     *dbName,
			DatabasePath:     *dbPath,
			DatabaseSSLMode:  *dbSSLMode,
			Port:             *port,
			AdminToken:       *adminToken,
		})
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate, refresh, or init)", command)
	}
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
