package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"regexp"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	pg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/playmatatu/plinko/internal/database"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

const migrationsTable = "schema_migrations_migrate"

// Run brings the schema of db up to date. Postgres goes through
// golang-migrate with the embedded migrations; sqlite, used for local runs
// and tests, is bootstrapped in place.
func Run(db *sqlx.DB, databaseURL string) error {
	dialect, _, err := database.ParseURL(databaseURL)
	if err != nil {
		return err
	}
	switch dialect {
	case database.Postgres:
		return RunMigrations(databaseURL)
	case database.SQLite:
		return Bootstrap(db)
	default:
		return fmt.Errorf("no migrations for dialect %s", dialect)
	}
}

// RunMigrations runs the embedded postgres migrations on their own
// connection. It will baseline the DB to the latest migration if the schema
// already exists (drops table present) but migrate's metadata table is missing.
func RunMigrations(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open DB: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pg.WithInstance(sqlDB, &pg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	src, err := iofs.New(postgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	var dropsExist bool
	row := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name='drops')")
	if err := row.Scan(&dropsExist); err == nil && dropsExist {
		var migrateTableExist bool
		row2 := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", migrationsTable)
		if err := row2.Scan(&migrateTableExist); err == nil && !migrateTableExist {
			latest := LatestVersion(postgresFS, "postgres")
			if latest > 0 {
				log.Printf("[MIGRATE] Baseline DB to version %d (existing schema present)", latest)
				if ferr := m.Force(int(latest)); ferr != nil {
					log.Printf("[MIGRATE] Force to version %d failed: %v", latest, ferr)
				}
			}
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	log.Printf("[MIGRATE] Migrations applied (no changes or up completed)")
	return nil
}

// LatestVersion scans dir in fsys for files that start with a numeric
// version prefix (e.g. 000001_) and returns the highest version number.
func LatestVersion(fsys fs.FS, dir string) int64 {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0
	}

	re := regexp.MustCompile(`^0*([0-9]+)_`)
	var max int64
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(f.Name())
		if len(m) < 2 {
			continue
		}
		v, _ := strconv.ParseInt(m[1], 10, 64)
		if v > max {
			max = v
		}
	}

	return max
}

// sqliteSchema mirrors the postgres migrations.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		key_hash TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_login_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS drops (
		id TEXT PRIMARY KEY,
		operator TEXT NOT NULL,
		board TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		target_multiplier REAL NOT NULL,
		bucket INTEGER NOT NULL,
		multiplier REAL NOT NULL,
		display_multiplier REAL NOT NULL,
		forced INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL,
		server_seed TEXT NOT NULL,
		server_seed_hash TEXT NOT NULL,
		client_seed TEXT NOT NULL,
		nonce INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drops_operator_created ON drops (operator, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_drops_board ON drops (board)`,
}

// Bootstrap creates the sqlite schema if it does not exist yet.
func Bootstrap(db *sqlx.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite bootstrap failed: %w", err)
		}
	}
	log.Printf("[MIGRATE] sqlite schema ready")
	return nil
}
