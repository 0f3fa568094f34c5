package store

import (
	"context"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// RecordStore persists committed attendance records.
type RecordStore interface {
	// QueryExisting returns the records already committed for a session by
	// one submitter on one date.
	QueryExisting(ctx context.Context, sessionID, submittedBy, date string) ([]*model.AttendanceRecord, error)

	// DeleteRecords removes records by ID.
	DeleteRecords(ctx context.Context, ids []string) error

	// WriteRecords inserts a batch of records.
	WriteRecords(ctx context.Context, records []*model.AttendanceRecord) error

	// ListRecords returns committed records, newest first.
	ListRecords(ctx context.Context, filter model.RecordFilter) ([]*model.AttendanceRecord, error)

	// RunInTransaction runs fn against a transactional view of the store.
	// Any error from fn rolls back every write made through tx.
	RunInTransaction(ctx context.Context, fn func(tx RecordStore) error) error

	Close() error
}
