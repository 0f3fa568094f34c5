// Package postgres implements the seatcheck stores backed by PostgreSQL:
// committed attendance records, rosters, schedules and persistent sensor
// bindings.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.RecordStore, roster.Source and
// schedule.Source backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.RecordStore.
var _ store.RecordStore = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) QueryExisting(ctx context.Context, sessionID, submittedBy, date string) ([]*model.AttendanceRecord, error) {
	return queryExistingRecords(ctx, s.db, sessionID, submittedBy, date)
}

func (s *PostgresStore) DeleteRecords(ctx context.Context, ids []string) error {
	return queryDeleteRecords(ctx, s.db, ids)
}

func (s *PostgresStore) WriteRecords(ctx context.Context, records []*model.AttendanceRecord) error {
	return queryWriteRecords(ctx, s.db, records)
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter model.RecordFilter) ([]*model.AttendanceRecord, error) {
	return queryListRecords(ctx, s.db, filter)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.RecordStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.RecordStore using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ store.RecordStore = (*txStore)(nil)

func (s *txStore) QueryExisting(ctx context.Context, sessionID, submittedBy, date string) ([]*model.AttendanceRecord, error) {
	return queryExistingRecords(ctx, s.tx, sessionID, submittedBy, date)
}

func (s *txStore) DeleteRecords(ctx context.Context, ids []string) error {
	return queryDeleteRecords(ctx, s.tx, ids)
}

func (s *txStore) WriteRecords(ctx context.Context, records []*model.AttendanceRecord) error {
	return queryWriteRecords(ctx, s.tx, records)
}

func (s *txStore) ListRecords(ctx context.Context, filter model.RecordFilter) ([]*model.AttendanceRecord, error) {
	return queryListRecords(ctx, s.tx, filter)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.RecordStore) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
