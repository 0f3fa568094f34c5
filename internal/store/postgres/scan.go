package postgres

import (
	"database/sql"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a model.AttendanceRecord.
// The row must contain columns in the order defined by recordColumns.
func scanRecord(row scannable) (*model.AttendanceRecord, error) {
	var r model.AttendanceRecord
	err := row.Scan(
		&r.ID,
		&r.StudentID,
		&r.SessionID,
		&r.Date,
		&r.SubjectCode,
		&r.Section,
		&r.Room,
		&r.Status,
		&r.ConfirmedByRFID,
		&r.ConfirmedByWeight,
		&r.Timestamp,
		&r.SubmittedBy,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// scanRecords scans multiple rows into a slice of records.
func scanRecords(rows *sql.Rows) ([]*model.AttendanceRecord, error) {
	var records []*model.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// nullTimePtr converts a *time.Time to sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
