package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

// Migrations are plain SQL files with goose annotations, one directory per
// dialect, compiled into the binary so a deployed server needs no files on disk.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS, dialect and logger in package globals, so calls
// that configure and then run it are serialised.
var gooseMu sync.Mutex

func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// gooseLogger routes goose's Printf-style output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

// withGoose configures goose for this database and runs fn under the lock.
func (db *DB) withGoose(fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: db.logger})
	if err := goose.SetDialect(db.dialect.gooseDialect()); err != nil {
		return fmt.Errorf("sqlstore: setting migration dialect: %w", err)
	}

	return fn(db.dialect.migrationsDir())
}

// Migrate applies every pending migration.
func (db *DB) Migrate(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		if err := goose.UpContext(ctx, db.conn, dir); err != nil {
			return fmt.Errorf("sqlstore: applying migrations: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		if err := goose.DownContext(ctx, db.conn, dir); err != nil {
			return fmt.Errorf("sqlstore: rolling back migration: %w", err)
		}
		return nil
	})
}

// MigrationStatus logs the applied/pending state of each migration.
func (db *DB) MigrationStatus(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		if err := goose.StatusContext(ctx, db.conn, dir); err != nil {
			return fmt.Errorf("sqlstore: reading migration status: %w", err)
		}
		return nil
	})
}

// SchemaVersion returns the latest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	var version int64
	err := db.withGoose(func(string) error {
		v, err := goose.GetDBVersionContext(ctx, db.conn)
		if err != nil {
			return fmt.Errorf("sqlstore: reading schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}
