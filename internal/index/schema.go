// Package index provides the persisted directory/document tree, backed by
// SQLite by default or PostgreSQL when configured.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name      string
	sqlDriver string
	timeType  string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, sqlDriver: "sqlite3", timeType: "DATETIME"}
	postgresDialect = dialect{name: DriverPostgres, sqlDriver: "pgx", timeType: "TIMESTAMPTZ", numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them. Queries in
// this package never contain a literal question mark.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (d dialect) schema() []string {
	ts := d.timeType
	return []string{
		`CREATE TABLE IF NOT EXISTS directories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	alias      TEXT,
	parent     TEXT REFERENCES directories(id) ON DELETE CASCADE,
	path       TEXT NOT NULL UNIQUE,
	created_at ` + ts + ` NOT NULL,
	updated_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_directories_parent ON directories(parent)`,
		`CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	directory     TEXT NOT NULL REFERENCES directories(id) ON DELETE CASCADE,
	path          TEXT NOT NULL UNIQUE,
	title         TEXT NOT NULL DEFAULT '',
	derived_title TEXT NOT NULL DEFAULT '',
	custom_id     TEXT UNIQUE,
	tags          TEXT NOT NULL DEFAULT '',
	reading_time  INTEGER NOT NULL DEFAULT 0,
	checksum      TEXT NOT NULL DEFAULT '',
	mod_time      ` + ts + ` NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	created_at    ` + ts + ` NOT NULL,
	updated_at    ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_directory ON documents(directory)`,
	}
}

// Options selects and locates the backing database.
type Options struct {
	Driver string // DriverSQLite (default) or DriverPostgres
	Path   string // sqlite database file
	URL    string // postgres connection URL
}

// DB wraps a sql.DB with tree-store operations.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Open opens (or creates) the database and applies the schema.
func Open(opts Options) (*DB, error) {
	var (
		d   dialect
		dsn string
	)
	switch opts.Driver {
	case "", DriverSQLite:
		d = sqliteDialect
		// _txlock=immediate takes the write lock at BEGIN so a pass never
		// fails half way on lock upgrade.
		dsn = opts.Path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	case DriverPostgres:
		d = postgresDialect
		dsn = opts.URL
	default:
		return nil, fmt.Errorf("index: unsupported driver %q", opts.Driver)
	}

	conn, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if d.name == DriverPostgres {
		conn.SetConnMaxIdleTime(5 * time.Minute)
		conn.SetConnMaxLifetime(30 * time.Minute)
		conn.SetMaxIdleConns(10)
		conn.SetMaxOpenConns(20)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	for _, stmt := range d.schema() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("index: apply schema: %w", err)
		}
	}
	return &DB{conn: conn, dialect: d}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the configured driver name.
func (db *DB) Driver() string { return db.dialect.name }

func (db *DB) q(query string) string { return db.dialect.rebind(query) }

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("index: ping: %w", err)
	}
	return nil
}
