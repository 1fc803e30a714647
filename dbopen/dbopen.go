// Package dbopen opens SQLite databases with the pragmas every tagqa store
// expects. With the modernc driver the pragmas travel in the DSN so every
// pooled connection gets them; other drivers receive plain EXEC statements
// on a single connection.
//
// Applied pragmas:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("history.db", dbopen.WithSchema(schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	foreignKeys bool
	mkdirAll    bool
	schemas     []string
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		foreignKeys: true,
	}
}

// Option customises Open.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL executed, in order, once the pragmas are applied.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// WithoutForeignKeys disables PRAGMA foreign_keys.
func WithoutForeignKeys() Option { return func(c *config) { c.foreignKeys = false } }

// Open opens the SQLite database at path. The driver must be registered by
// the caller, usually with a blank import of modernc.org/sqlite.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	dsn := path
	inDSN := cfg.driver == "sqlite"
	if inDSN {
		dsn = withPragmas(path, cfg.pragmas())
	}
	db, err := sql.Open(cfg.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if path == Memory || !inDSN {
		// Every connection to :memory: is a distinct database, and EXEC
		// pragmas only reach the connection they ran on.
		db.SetMaxOpenConns(1)
	}

	if err := setup(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed by t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(Memory, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// pragmas returns name(value) pairs in application order.
func (c *config) pragmas() []string {
	fk := "1"
	if !c.foreignKeys {
		fk = "0"
	}
	return []string{
		"foreign_keys(" + fk + ")",
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", c.busyTimeout),
		"synchronous(" + c.synchronous + ")",
	}
}

// withPragmas appends modernc _pragma parameters to path.
func withPragmas(path string, pragmas []string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

func setup(db *sql.DB, cfg *config) error {
	if cfg.driver != "sqlite" {
		for _, p := range cfg.pragmas() {
			name, value, _ := strings.Cut(strings.TrimSuffix(p, ")"), "(")
			stmt := "PRAGMA " + name + " = " + value
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("dbopen: %s: %w", stmt, err)
			}
		}
	}
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}
	return nil
}
