// Package main is the entry point for the web server.
//
// main only assembles: configuration, logger, database, server. All actual
// logic lives in the internal packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/htmx-starter/internal/config"
	"github.com/sakif/htmx-starter/internal/repository/sqlstore"
	"github.com/sakif/htmx-starter/internal/server"
)

func main() {
	configFile := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	// === 1. CONFIGURATION ===
	// Defaults, then .env, then the TOML file, then the environment.
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("secret key loaded", slog.String("prefix", cfg.SecretPrefix()+"..."))
	if cfg.SecretGenerated {
		logger.Warn("SECRET_KEY not set, using a random key: sessions will not survive a restart")
	}

	// === 3. DATABASE ===
	dbURL, err := config.ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect: sqlstore.Dialect(dbURL.Dialect),
		DSN:     dbURL.DSN,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, db, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT/SIGTERM and closes the database on the way out.
	return srv.Start()
}
