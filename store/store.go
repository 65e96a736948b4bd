// Package store persists AWD controller state in Postgres via sqlx. Each
// exported operation runs as its own transaction (or single statement);
// cross-operation ordering is the caller's responsibility.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// DB wraps the sqlx handle and exposes the controller repositories.
type DB struct {
	db *sqlx.DB
}

// Open connects to Postgres using the pgx stdlib driver and verifies the
// connection.
func Open(dsn string) (*DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &DB{db: db}, nil
}

// NewWithDB wraps an existing sqlx handle. Used by tests with sqlmock.
func NewWithDB(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// Close releases the underlying connection pool.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity.
func (s *DB) Ping() error {
	return s.db.Ping()
}

// wrapNoRows converts sql.ErrNoRows into ErrNotFound, wrapping everything
// else with context.
func wrapNoRows(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
