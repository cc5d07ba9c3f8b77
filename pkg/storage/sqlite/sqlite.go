// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/rapport/pkg/storage/migrations"
	"github.com/papercomputeco/rapport/pkg/storage/sqldriver"
)

// SQLiteDriver implements storage.Driver on a SQLite database.
type SQLiteDriver struct {
	*sqldriver.Driver
}

// NewSQLiteDriver opens the database at dbPath and applies migrations.
// The dbPath can be a file path or ":memory:" for an in-memory database.
//
// Write transactions start with BEGIN IMMEDIATE and the pool holds a single
// connection, so writers are serialized by the database itself.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	db, err := sqlx.Connect("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The connection never expires: a ":memory:" database lives and dies
	// with it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	if err := sqldriver.Migrate(migrations.SQLite, "sqlite", "sqlite3", drv); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{
		Driver: sqldriver.New(db, sqldriver.Dialect{}),
	}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_foreign_keys=1&_busy_timeout=5000"
}
