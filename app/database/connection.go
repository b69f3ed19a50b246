package database

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
)

// DB wraps the sql connection pool for the embedded store.
type DB struct {
	*sql.DB
}

// NewConnection opens the sqlite database at the given path and applies
// pending migrations. The store is single-writer; the busy timeout covers
// overlapping reads from the status API.
func NewConnection(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes access in-process; a single connection
	// avoids table-lock errors between the repositories.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB}

	if _, _, err := RunMigrations(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// isConstraintErr reports whether err is a sqlite constraint violation,
// e.g. an insert racing another run to the same content unique_id.
func isConstraintErr(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == 19 // SQLITE_CONSTRAINT
	}
	return false
}
