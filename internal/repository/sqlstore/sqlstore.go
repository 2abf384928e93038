// Package sqlstore implements the repository interfaces on database/sql.
//
// TWO DIALECTS, ONE SET OF QUERIES:
// SQLite (modernc.org/sqlite, pure Go, no CGo) is the default and what the
// tests run against. PostgreSQL goes through pgx's database/sql adapter.
// Queries are written once with "?" placeholders; on PostgreSQL they are
// rewritten to $1, $2, ... before execution (see Dialect.rebind). The only
// other dialect differences live in the migration files.
//
// TRANSACTIONS:
// Repositories are never handed the *sql.DB. WithinTx opens a *sql.Tx and
// builds the repositories on top of it, so everything one service call does
// commits or rolls back together.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	// Drivers register themselves with database/sql on import:
	// modernc as "sqlite", pgx as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/sakif/htmx-starter/internal/repository"
)

// Dialect selects the SQL flavour and the database/sql driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName is the name the driver registered with database/sql.
func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported dialect %q", d)
	}
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL. Question marks
// inside single-quoted literals are left alone.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// querier is what repositories need; *sql.DB and *sql.Tx both satisfy it.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures Open.
type Options struct {
	Dialect Dialect
	// DSN is a file path (or ":memory:") for SQLite and a postgres:// URL
	// for PostgreSQL.
	DSN    string
	Logger *slog.Logger
}

// DB owns the connection pool and implements repository.Store.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ repository.Store = (*DB)(nil)

// Open creates the connection pool and verifies it with a ping.
//
// SQLITE SPECIFICS:
// PRAGMAs are per connection, and database/sql opens several connections,
// so they go into the DSN (_pragma=...) where modernc applies them to every
// new connection. An in-memory database exists per connection, which is why
// ":memory:" pools are pinned to a single connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	driver, err := opts.Dialect.driverName()
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	memory := false
	if opts.Dialect == DialectSQLite {
		dsn, memory, err = sqliteDSN(opts.DSN)
		if err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	return NewFromDB(conn, opts.Dialect, opts.Logger), nil
}

// NewFromDB wraps an already opened pool. Tests use it with sqlmock.
func NewFromDB(conn *sql.DB, dialect Dialect, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DB{conn: conn, dialect: dialect, logger: logger}
}

// sqliteDSN turns a path into a modernc DSN with the connection PRAGMAs.
func sqliteDSN(path string) (dsn string, memory bool, err error) {
	if path == "" {
		return "", false, errors.New("sqlstore: empty sqlite path")
	}

	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}

	memory = path == ":memory:"
	if !memory {
		// WAL lets readers proceed during a write; _txlock=immediate takes the
		// write lock at BEGIN so two writers queue on busy_timeout instead of
		// failing when a read transaction tries to upgrade.
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_txlock=immediate")

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", false, fmt.Errorf("sqlstore: creating database directory %s: %w", dir, err)
			}
		}
	}

	return path + "?" + strings.Join(pragmas, "&"), memory, nil
}

// Dialect reports which SQL flavour the pool speaks.
func (db *DB) Dialect() Dialect { return db.dialect }

// Raw exposes the pool for migrations and health checks.
func (db *DB) Raw() *sql.DB { return db.conn }

// Ping checks the pool is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithinTx runs fn inside a transaction.
//
// fn returns nil → COMMIT. fn returns an error → ROLLBACK and the error is
// returned unchanged (so errors.Is still sees apperror sentinels). fn panics
// → ROLLBACK and the panic continues up the stack.
func (db *DB) WithinTx(ctx context.Context, fn func(repository.Session) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.logger.Error("transaction rollback failed", slog.String("error", rbErr.Error()))
				err = fmt.Errorf("sqlstore: rollback failed (%v) after: %w", rbErr, err)
			}
		}
	}()

	if err = fn(&session{q: tx, dialect: db.dialect}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: committing transaction: %w", err)
	}
	return nil
}

// session binds the repositories to one transaction.
type session struct {
	q       querier
	dialect Dialect
}

func (s *session) Items() repository.ItemRepository {
	return &itemRepo{q: s.q, dialect: s.dialect}
}

func (s *session) Users() repository.UserRepository {
	return &userRepo{q: s.q, dialect: s.dialect}
}
