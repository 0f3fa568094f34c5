package postgres

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// GetRoster returns the students enrolled in the session's subject and
// section, in enrollment order. Query failures wrap
// model.ErrRosterUnavailable; an empty result is an empty class.
func (s *PostgresStore) GetRoster(ctx context.Context, key model.SessionKey) ([]model.StudentIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.display_name, s.contact_info, e.sensor_binding
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.subject_code = $1 AND e.section = $2
		ORDER BY e.position, s.id`,
		key.SubjectCode, key.Section,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRosterUnavailable, err)
	}
	defer rows.Close()

	students := []model.StudentIdentity{}
	for rows.Next() {
		var st model.StudentIdentity
		if err := rows.Scan(&st.StudentID, &st.DisplayName, &st.ContactInfo, &st.SensorBinding); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRosterUnavailable, err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRosterUnavailable, err)
	}
	return students, nil
}

// GetSchedules returns the weekly timetable for an instructor. Rows with an
// empty instructor_id are shared by everyone. Query failures wrap
// model.ErrScheduleUnavailable.
func (s *PostgresStore) GetSchedules(ctx context.Context, instructorID string) ([]model.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instructor_id, day, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			subject_code, section, room
		FROM schedules
		WHERE instructor_id = $1 OR instructor_id = ''
		ORDER BY day, start_time, id`,
		instructorID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrScheduleUnavailable, err)
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		var (
			e   model.ScheduleEntry
			day int
		)
		if err := rows.Scan(&e.InstructorID, &day, &e.StartTime, &e.EndTime, &e.SubjectCode, &e.Section, &e.Room); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrScheduleUnavailable, err)
		}
		e.Day = model.Weekday(day)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrScheduleUnavailable, err)
	}
	return entries, nil
}
