// Package database keeps the run journal: one row per cleaning run, in
// Postgres or SQLite.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB is a journal connection. Queries are written with $N placeholders and
// rebound for SQLite.
type DB struct {
	*sql.DB
	driver string
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string { return db.driver }

// DriverFor picks the driver for a connection string: postgres URLs and
// key=value DSNs go to lib/pq, anything else is an SQLite path.
func DriverFor(connectStr string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(connectStr, "postgres://"), strings.HasPrefix(connectStr, "postgresql://"),
		strings.Contains(connectStr, "host="):
		return DriverPostgres, connectStr
	case strings.HasPrefix(connectStr, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(connectStr, "sqlite://")
	}
	return DriverSQLite, connectStr
}

// NewConnection opens the journal and creates its schema.
func NewConnection(connectStr string) (*DB, error) {
	if connectStr == "" {
		return nil, fmt.Errorf("no database configured")
	}
	driver, dsn := DriverFor(connectStr)
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: driver}
	if err := Migrate(db); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Printf("Database connection established (%s)", driver)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		input           TEXT NOT NULL,
		output          TEXT NOT NULL DEFAULT '',
		mode            TEXT NOT NULL,
		status          TEXT NOT NULL,
		input_checksum  TEXT NOT NULL,
		output_checksum TEXT NOT NULL DEFAULT '',
		failures        INTEGER NOT NULL DEFAULT 0,
		error           TEXT NOT NULL DEFAULT '',
		report          TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_input_checksum ON runs (input_checksum)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`,
}

// Migrate creates the journal tables if they do not exist.
func Migrate(db *DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders to SQLite's ?N form.
func (db *DB) rebind(query string) string {
	if db.driver != DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}
