package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database whose user_version is below version.
// schema.sql already holds the latest shape for new files; migrations
// only backfill objects added after a file was created.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "stale-claim index", `CREATE INDEX IF NOT EXISTS idx_execution_ledger_status_expires
		ON execution_ledger (status, expires_at)`},
	{2, "trade-by-entry index", `CREATE INDEX IF NOT EXISTS idx_trades_entry
		ON trades (entry_id)`},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Querier is the subset of *sql.DB and *sql.Tx used by repositories, so
// the same code runs inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the SQLite database shared by every ledger component.
type Store struct {
	db *sql.DB
}

// Open opens the ledger database at path, creating it when missing, and
// brings its pragmas and schema up to date. Every process sharing the file
// opens it this way; reopening an up-to-date file changes nothing.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{"_txlock": {"immediate"}}.Encode()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}

	// One writer per file: within a process, goroutines queue on the pool
	// instead of racing for the write lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection pool to repositories and the pager.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx commits when fn returns nil and rolls back otherwise. With
// _txlock=immediate the write lock is taken at BEGIN, so read-then-write
// sequences inside fn cannot interleave with another process.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// pragmas configure the single pooled connection.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

func configure(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	return nil
}

// migrate applies schema.sql, then every migration newer than the file's
// user_version, recording each step as it lands.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("migration %d (%s): record version: %w", m.version, m.name, err)
		}
	}
	return nil
}

// verifyPragma reports whether the named pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
