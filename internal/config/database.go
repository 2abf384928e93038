package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Database is a parsed DATABASE_URL.
type Database struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string
	// Driver is the database/sql driver name: "sqlite" (modernc) or "pgx".
	Driver string
	// DSN is a file path or ":memory:" for SQLite and a postgres:// URL for
	// PostgreSQL.
	DSN string
}

var (
	sqliteSchemes   = []string{"sqlite+aiosqlite://", "sqlite://"}
	postgresSchemes = []string{"postgresql+asyncpg://", "postgres+asyncpg://", "postgresql://", "postgres://"}
)

// ParseDatabaseURL understands SQLAlchemy-style URLs so an existing .env
// keeps working:
//
//	sqlite:///./app.db            → "./app.db"
//	sqlite:////var/lib/app.db     → "/var/lib/app.db"
//	sqlite://:memory:             → ":memory:"
//	postgresql+asyncpg://u:p@h/db → "postgres://u:p@h/db"
func ParseDatabaseURL(raw string) (Database, error) {
	raw = strings.TrimSpace(raw)

	for _, scheme := range sqliteSchemes {
		rest, ok := strings.CutPrefix(raw, scheme)
		if !ok {
			continue
		}
		// The third slash of sqlite:/// separates the (empty) host from the path.
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return Database{}, fmt.Errorf("config: database url %q has no file path", raw)
		}
		return Database{Dialect: "sqlite", Driver: "sqlite", DSN: path}, nil
	}

	for _, scheme := range postgresSchemes {
		rest, ok := strings.CutPrefix(raw, scheme)
		if !ok {
			continue
		}
		dsn := "postgres://" + rest
		u, err := url.Parse(dsn)
		if err != nil {
			return Database{}, fmt.Errorf("config: parsing database url: %w", err)
		}
		if u.Host == "" {
			return Database{}, fmt.Errorf("config: database url %q has no host", u.Redacted())
		}
		return Database{Dialect: "postgres", Driver: "pgx", DSN: dsn}, nil
	}

	return Database{}, fmt.Errorf("config: unsupported database url scheme in %q", schemeOf(raw))
}

func schemeOf(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		return raw[:i]
	}
	return raw
}
