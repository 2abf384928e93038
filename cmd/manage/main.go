// Command manage runs administrative tasks against the configured database.
//
// Usage:
//
//	manage [-config app.toml] migrate up|down|status|version
//	manage [-config app.toml] createsuperuser -email admin@example.com -password secret
//
// It reads the same configuration as the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sakif/htmx-starter/internal/auth"
	"github.com/sakif/htmx-starter/internal/config"
	"github.com/sakif/htmx-starter/internal/repository/sqlstore"
	"github.com/sakif/htmx-starter/internal/service"
)

const usage = `usage:
  manage [-config file] migrate up|down|status|version
  manage [-config file] createsuperuser -email EMAIL -password PASSWORD`

var errUsage = errors.New(usage)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("manage", flag.ContinueOnError)
	configFile := global.String("config", "", "optional TOML config file")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	dbURL, err := config.ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	db, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect: sqlstore.Dialect(dbURL.Dialect),
		DSN:     dbURL.DSN,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "migrate":
		return migrate(ctx, db, rest, out)
	case "createsuperuser":
		return createSuperuser(ctx, db, rest, out, logger)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

func migrate(ctx context.Context, db *sqlstore.DB, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}

	switch args[0] {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			return err
		}
	case "status":
		return db.MigrationStatus(ctx)
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q\n%w", args[0], errUsage)
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version: %d\n", version)
	return nil
}

func createSuperuser(ctx context.Context, db *sqlstore.DB, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	email := fs.String("email", "", "superuser email")
	password := fs.String("password", "", "superuser password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("createsuperuser needs -email and -password\n%w", errUsage)
	}

	// Tables must exist before the first account can be written.
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	users := service.NewUserService(db, auth.NewPasswordService(), logger)
	user, err := users.CreateSuperuser(ctx, *email, *password)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "superuser %s ready (id %s)\n", user.Email, user.ID)
	return nil
}
