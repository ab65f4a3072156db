package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/lattice/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added subject index on logs
// 2 - logs.user_id is cleared, not cascaded, when its user is deleted
const currentSchemaVersion = 2

// Store provides durable storage for lattice metadata.
// Uses SQLite with WAL mode and a single connection, so transactions are
// serialised.
type Store struct {
	db  *sql.DB
	reg *model.Registry
	now model.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the kind registry. Defaults to model.NewRegistry().
func WithRegistry(reg *model.Registry) Option {
	return func(s *Store) { s.reg = reg }
}

// WithClock sets the clock used for created/lastupdated stamps.
func WithClock(clock model.Clock) Option {
	return func(s *Store) { s.now = clock }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and the pragmas below are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, reg: model.NewRegistry(), now: model.SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Registry returns the kind registry the store was opened with.
func (s *Store) Registry() *model.Registry {
	return s.reg
}

// Now returns the store clock's current time.
func (s *Store) Now() model.Clock {
	return s.now
}

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
//
// fn must only use tx. The store holds a single connection, so any other
// store call made from inside fn blocks forever.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, reg: s.reg, now: s.now}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the (subject_id, subject_kind, created) index used by log
// lookups. Databases created from the current schema.sql get it here too.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_logs_subject
		ON logs(subject_id, subject_kind, created DESC)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 rebuilds logs with ON DELETE SET NULL on user_id, so the
// entries a deleted user wrote on surviving records are kept. SQLite cannot
// alter a foreign key action in place.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE logs_v2 (
			id           TEXT PRIMARY KEY,
			user_id      TEXT REFERENCES users(id) ON DELETE SET NULL,
			public       INTEGER NOT NULL DEFAULT 0,
			created      INTEGER NOT NULL,
			subject_id   TEXT NOT NULL,
			subject_kind TEXT NOT NULL,
			text         TEXT NOT NULL,
			source       TEXT NOT NULL DEFAULT ''
		)`,
		`INSERT INTO logs_v2 (id, user_id, public, created, subject_id, subject_kind, text, source)
			SELECT id, user_id, public, created, subject_id, subject_kind, text, source FROM logs`,
		`DROP TABLE logs`,
		`ALTER TABLE logs_v2 RENAME TO logs`,
		`CREATE INDEX IF NOT EXISTS idx_logs_subject ON logs(subject_id, subject_kind, created DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
