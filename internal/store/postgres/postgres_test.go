package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// recordRowColumns is the column list for scanRecord results.
var recordRowColumns = []string{
	"id", "student_id", "session_id", "date", "subject_code", "section", "room",
	"status", "confirmed_by_rfid", "confirmed_by_weight", "recorded_at", "submitted_by",
}

func addRecordRow(rows *sqlmock.Rows, id, student, status string, rfid, weight bool, at time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, student, "sess-1", "2026-03-02", "CS101", "A", "R-204",
		status, rfid, weight, at, "prof-lee",
	)
}

func testRecord(id, student string, status model.Status, at time.Time) *model.AttendanceRecord {
	return &model.AttendanceRecord{
		ID: id, StudentID: student, SessionID: "sess-1", Date: "2026-03-02",
		SubjectCode: "CS101", Section: "A", Room: "R-204",
		Status: status, ConfirmedByRFID: true, ConfirmedByWeight: status == model.StatusPresent,
		Timestamp: at, SubmittedBy: "prof-lee",
	}
}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}
}

func TestQueryExistingRecords(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(recordRowColumns)
	addRecordRow(rows, "ar-1", "A", "present", true, true, now)
	addRecordRow(rows, "ar-2", "B", "late", true, true, now)
	mock.ExpectQuery("SELECT .+ FROM attendance_records WHERE session_id = \\$1 AND submitted_by = \\$2 AND date = \\$3").
		WithArgs("sess-1", "prof-lee", "2026-03-02").
		WillReturnRows(rows)

	records, err := queryExistingRecords(context.Background(), db, "sess-1", "prof-lee", "2026-03-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Status != model.StatusPresent || records[1].Status != model.StatusLate {
		t.Fatalf("got statuses %q, %q", records[0].Status, records[1].Status)
	}
	if records[1].Date != "2026-03-02" || !records[1].Timestamp.Equal(now) {
		t.Fatalf("got date=%q timestamp=%v", records[1].Date, records[1].Timestamp)
	}
}

func TestQueryExistingRecords_None(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM attendance_records").
		WithArgs("sess-1", "prof-lee", "2026-03-02").
		WillReturnRows(sqlmock.NewRows(recordRowColumns))

	records, err := queryExistingRecords(context.Background(), db, "sess-1", "prof-lee", "2026-03-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestQueryDeleteRecords(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM attendance_records WHERE id = ANY\\(\\$1\\)").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := queryDeleteRecords(context.Background(), db, []string{"ar-1", "ar-2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryDeleteRecords_Empty(t *testing.T) {
	db, _ := newMockDB(t)
	if err := queryDeleteRecords(context.Background(), db, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryDeleteRecords_Partial(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM attendance_records").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryDeleteRecords(context.Background(), db, []string{"ar-1", "ar-2"}); err == nil {
		t.Fatal("expected error when fewer rows are deleted than requested")
	}
}

func TestQueryWriteRecords(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs("ar-1", "A", "sess-1", "2026-03-02", "CS101", "A", "R-204", "present", true, true, now, "prof-lee").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs("ar-2", "C", "sess-1", "2026-03-02", "CS101", "A", "R-204", "absent", true, false, now, "prof-lee").
		WillReturnResult(sqlmock.NewResult(0, 1))

	records := []*model.AttendanceRecord{
		testRecord("ar-1", "A", model.StatusPresent, now),
		testRecord("ar-2", "C", model.StatusAbsent, now),
	}
	if err := queryWriteRecords(context.Background(), db, records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryWriteRecords_Error(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	boom := errors.New("unique violation")
	mock.ExpectExec("INSERT INTO attendance_records").WillReturnError(boom)

	err := queryWriteRecords(context.Background(), db, []*model.AttendanceRecord{testRecord("ar-1", "A", model.StatusPresent, now)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
}

func TestQueryListRecords(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		name   string
		filter model.RecordFilter
		query  string
		args   int
	}{
		{"no filter", model.RecordFilter{}, "SELECT .+ FROM attendance_records ORDER BY recorded_at DESC, student_id$", 0},
		{"session", model.RecordFilter{SessionID: "sess-1"}, "WHERE session_id = \\$1 ORDER BY", 1},
		{"date and author", model.RecordFilter{Date: "2026-03-02", SubmittedBy: "prof-lee"}, "WHERE date = \\$1 AND submitted_by = \\$2", 2},
		{"since with limit", model.RecordFilter{Since: &since, Limit: 10}, "WHERE recorded_at >= \\$1 ORDER BY .+ LIMIT \\$2", 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			args := make([]driver.Value, tc.args)
			for i := range args {
				args[i] = sqlmock.AnyArg()
			}
			exp := mock.ExpectQuery(tc.query)
			if len(args) > 0 {
				exp = exp.WithArgs(args...)
			}
			exp.WillReturnRows(addRecordRow(sqlmock.NewRows(recordRowColumns), "ar-1", "A", "present", true, true, time.Now()))

			records, err := queryListRecords(context.Background(), db, tc.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != 1 || records[0].ID != "ar-1" {
				t.Fatalf("got %v", records)
			}
		})
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM attendance_records").WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.RecordStore) error {
		if err := tx.DeleteRecords(context.Background(), []string{"ar-old"}); err != nil {
			return err
		}
		return tx.WriteRecords(context.Background(), []*model.AttendanceRecord{testRecord("ar-new", "A", model.StatusPresent, now)})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM attendance_records").WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_records").WillReturnError(boom)
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.RecordStore) error {
		if err := tx.DeleteRecords(context.Background(), []string{"ar-old"}); err != nil {
			return err
		}
		// Nested calls reuse the open transaction.
		return tx.RunInTransaction(context.Background(), func(inner store.RecordStore) error {
			return inner.WriteRecords(context.Background(), []*model.AttendanceRecord{testRecord("ar-new", "A", model.StatusPresent, now)})
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestGetRoster(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	rows := sqlmock.NewRows([]string{"id", "display_name", "contact_info", "sensor_binding"}).
		AddRow("B", "Bea", "", "seat-2").
		AddRow("A", "Ade", "ade@example.com", "seat-1")
	mock.ExpectQuery("SELECT .+ FROM enrollments e JOIN students s").
		WithArgs("CS101", "A").
		WillReturnRows(rows)

	students, err := s.GetRoster(context.Background(), model.SessionKey{SubjectCode: "CS101", Section: "A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(students) != 2 || students[0].StudentID != "B" || students[1].SensorBinding != "seat-1" {
		t.Fatalf("got %+v", students)
	}
}

func TestGetRoster_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	mock.ExpectQuery("SELECT .+ FROM enrollments").
		WithArgs("CS101", "B").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "contact_info", "sensor_binding"}))

	students, err := s.GetRoster(context.Background(), model.SessionKey{SubjectCode: "CS101", Section: "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if students == nil || len(students) != 0 {
		t.Fatalf("expected empty non-nil roster, got %v", students)
	}
}

func TestGetRoster_Unavailable(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	mock.ExpectQuery("SELECT .+ FROM enrollments").WillReturnError(sql.ErrConnDone)

	_, err := s.GetRoster(context.Background(), model.SessionKey{SubjectCode: "CS101", Section: "A"})
	if !errors.Is(err, model.ErrRosterUnavailable) {
		t.Fatalf("expected ErrRosterUnavailable, got %v", err)
	}
}

func TestGetSchedules(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	rows := sqlmock.NewRows([]string{"instructor_id", "day", "start_time", "end_time", "subject_code", "section", "room"}).
		AddRow("prof-lee", 1, "09:00", "10:30", "CS101", "A", "R-204").
		AddRow("", 3, "13:00", "14:00", "MA201", "B", "R-110")
	mock.ExpectQuery("SELECT .+ FROM schedules WHERE instructor_id = \\$1 OR instructor_id = ''").
		WithArgs("prof-lee").
		WillReturnRows(rows)

	entries, err := s.GetSchedules(context.Background(), "prof-lee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Day != model.Weekday(time.Monday) || entries[0].StartTime != "09:00" {
		t.Fatalf("got %+v", entries[0])
	}
	if entries[1].Day != model.Weekday(time.Wednesday) || entries[1].InstructorID != "" {
		t.Fatalf("got %+v", entries[1])
	}
}

func TestGetSchedules_Unavailable(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	mock.ExpectQuery("SELECT .+ FROM schedules").WillReturnError(sql.ErrConnDone)

	_, err := s.GetSchedules(context.Background(), "prof-lee")
	if !errors.Is(err, model.ErrScheduleUnavailable) {
		t.Fatalf("expected ErrScheduleUnavailable, got %v", err)
	}
}

func TestSaveBinding(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sensor_bindings WHERE student_id = \\$1 AND sensor_id <> \\$2").
		WithArgs("A", "seat-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO sensor_bindings").
		WithArgs("seat-1", "A", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.SaveBinding(context.Background(), bindings.Binding{SensorID: "seat-1", StudentID: "A"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSaveBinding_RollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	boom := errors.New("conflict")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sensor_bindings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sensor_bindings").WillReturnError(boom)
	mock.ExpectRollback()

	err := s.SaveBinding(context.Background(), bindings.Binding{SensorID: "seat-1", StudentID: "A", BoundAt: time.Now()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestDeleteBinding(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	mock.ExpectExec("DELETE FROM sensor_bindings WHERE sensor_id = \\$1").
		WithArgs("seat-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteBinding(context.Background(), "seat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListBindings(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"sensor_id", "student_id", "bound_at"}).
		AddRow("seat-1", "A", now).
		AddRow("seat-2", "B", now)
	mock.ExpectQuery("SELECT sensor_id, student_id, bound_at FROM sensor_bindings").WillReturnRows(rows)

	list, err := s.ListBindings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[1].StudentID != "B" || !list[0].BoundAt.Equal(now) {
		t.Fatalf("got %+v", list)
	}
	if list[0].SessionScoped() {
		t.Fatal("persistent bindings must not be session scoped")
	}
}

func TestQueryWriteRecords_RejectsInvalid(t *testing.T) {
	db, _ := newMockDB(t)
	bad := testRecord("ar-1", "A", model.StatusPresent, time.Now())
	bad.Status = "excused"

	err := queryWriteRecords(context.Background(), db, []*model.AttendanceRecord{bad})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *model.ValidationError, got %v", err)
	}
}
