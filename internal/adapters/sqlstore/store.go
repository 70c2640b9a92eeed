// Package sqlstore implements the candle store, the lifecycle store and the
// trade journal on database/sql. SQLite is the default; PostgreSQL is
// selected with the "postgres" driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"fvgTrader/internal/ports"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements ports.CandleStore, ports.LifecycleStore, ports.JournalSink
// and ports.JournalReader.
type Store struct {
	db     *sql.DB
	driver string
	logger ports.Logger
}

// Config holds configuration for the store.
type Config struct {
	Driver string // DriverSQLite (default) or DriverPostgres
	DBPath string // SQLite file path
	DSN    string // PostgreSQL connection string
	Logger ports.Logger
}

// Open connects to the database and creates the schema if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the SQL store")
	}
	ctx := context.Background()
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(ctx, cfg)
	case DriverPostgres:
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", ports.ErrConfigurationError, driver)
	}
	if err != nil {
		cfg.Logger.Error(ctx, err, "SQL store initialization failed", map[string]interface{}{"driver": driver})
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("%w: ping %s: %v", ports.ErrDBConnection, driver, err)
		cfg.Logger.Error(ctx, err, "SQL store initialization failed")
		return nil, err
	}

	s := &Store{db: db, driver: driver, logger: cfg.Logger}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(ctx, err, "SQL store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(ctx, "Database schema initialized/verified", map[string]interface{}{"driver": driver})
	return s, nil
}

func openSQLite(ctx context.Context, cfg Config) (*sql.DB, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/fvg_trader.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
	}

	db, err := sql.Open(DriverSQLite, dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open '%s': %v", ports.ErrDBConnection, dbPath, err)
	}
	// One connection serializes writers; SQLite allows only one at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	cfg.Logger.Info(ctx, "SQLite database opened", map[string]interface{}{"path": dbPath})
	return db, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: DB_DSN is required for postgres", ports.ErrConfigurationError)
	}
	db, err := sql.Open(DriverPostgres, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ports.ErrDBConnection, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing database connection")
		return s.db.Close()
	}
	return nil
}

// q adapts a query written with ? placeholders to the driver.
func (s *Store) q(query string) string {
	if s.driver == DriverPostgres {
		return rebind(query)
	}
	return query
}

// rebind rewrites ? placeholders to PostgreSQL's $1, $2, ...
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ports.ErrDBConnection, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ports.ErrUpdateFailed, err)
	}
	return nil
}

// utc normalizes times before they are written.
func utc(t time.Time) time.Time {
	return t.UTC()
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
