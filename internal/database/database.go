package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// sqlx does not know the modernc driver name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Dialect names the SQL flavour behind a database URL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseURL splits a DATABASE_URL into a driver name and its DSN. Postgres
// URLs are passed through; sqlite://path opens a file and sqlite://:memory:
// a private in-memory database.
func ParseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return Postgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite URL has no path")
		}
		return SQLite, path, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}

// Connect opens the database named by databaseURL
func Connect(databaseURL string) (*sqlx.DB, error) {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite && !strings.Contains(dsn, "?") {
		// Store times in a sortable, parseable text form.
		dsn += "?_time_format=sqlite"
	}

	db, err := sqlx.Connect(string(dialect), dsn)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	switch dialect {
	case SQLite:
		// One writer; an in-memory database also lives on a single connection.
		db.SetMaxOpenConns(1)
		if !strings.HasPrefix(dsn, ":memory:") {
			if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
			}
		}
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
