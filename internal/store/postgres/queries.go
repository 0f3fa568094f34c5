package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// recordColumns is the column list used for SELECT statements on the
// attendance_records table.
const recordColumns = `id, student_id, session_id, date::text, subject_code, section, room,
	status, confirmed_by_rfid, confirmed_by_weight, recorded_at, submitted_by`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryExistingRecords(ctx context.Context, db executor, sessionID, submittedBy, date string) ([]*model.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = $1 AND submitted_by = $2 AND date = $3
		ORDER BY student_id`,
		sessionID, submittedBy, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func queryDeleteRecords(ctx context.Context, db executor, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	res, err := db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return fmt.Errorf("deleted %d of %d records", n, len(ids))
	}
	return nil
}

func queryWriteRecords(ctx context.Context, db executor, records []*model.AttendanceRecord) error {
	for _, r := range records {
		if err := model.ValidateRecord(r); err != nil {
			return fmt.Errorf("insert record for %s: %w", r.StudentID, err)
		}
	}
	for _, r := range records {
		_, err := db.ExecContext(ctx, `
			INSERT INTO attendance_records (
				id, student_id, session_id, date, subject_code, section, room,
				status, confirmed_by_rfid, confirmed_by_weight, recorded_at, submitted_by
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7,
				$8, $9, $10, $11, $12
			)`,
			r.ID,
			r.StudentID,
			r.SessionID,
			r.Date,
			r.SubjectCode,
			r.Section,
			r.Room,
			string(r.Status),
			r.ConfirmedByRFID,
			r.ConfirmedByWeight,
			r.Timestamp,
			r.SubmittedBy,
		)
		if err != nil {
			return fmt.Errorf("insert record for %s: %w", r.StudentID, err)
		}
	}
	return nil
}

func queryListRecords(ctx context.Context, db executor, filter model.RecordFilter) ([]*model.AttendanceRecord, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.SessionID != "" {
		whereClauses = append(whereClauses, "session_id = "+nextArg())
		args = append(args, filter.SessionID)
	}
	if filter.Date != "" {
		whereClauses = append(whereClauses, "date = "+nextArg())
		args = append(args, filter.Date)
	}
	if filter.SubmittedBy != "" {
		whereClauses = append(whereClauses, "submitted_by = "+nextArg())
		args = append(args, filter.SubmittedBy)
	}
	if filter.Since != nil {
		whereClauses = append(whereClauses, "recorded_at >= "+nextArg())
		args = append(args, *filter.Since)
	}

	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY recorded_at DESC, student_id"
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}
