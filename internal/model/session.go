package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date format used in session keys and records.
const DateLayout = "2006-01-02"

// ClockLayout is the time-of-day format used by schedule entries.
const ClockLayout = "15:04"

// sessionNamespace scopes the UUIDv5 session IDs generated by SessionKey.ID.
var sessionNamespace = uuid.MustParse("5d0c8f0e-3b7a-4f7e-9a43-1f2b6c9d7e10")

// SessionKey identifies one occurrence of a class. Two keys are the same
// session exactly when they compare equal with ==.
type SessionKey struct {
	Date        string `json:"date"` // DateLayout
	SubjectCode string `json:"subject_code"`
	Section     string `json:"section"`
	Room        string `json:"room"`
}

// NewSessionKey builds a key for the given calendar day.
func NewSessionKey(day time.Time, subjectCode, section, room string) SessionKey {
	return SessionKey{
		Date:        day.Format(DateLayout),
		SubjectCode: strings.TrimSpace(subjectCode),
		Section:     strings.TrimSpace(section),
		Room:        strings.TrimSpace(room),
	}
}

// ID returns the deterministic session ID for the key. Resolving the same
// schedule entry on the same day always yields the same ID.
func (k SessionKey) ID() string {
	// Unit separators keep "AB"+"C" and "A"+"BC" from colliding.
	canonical := strings.Join([]string{k.Date, k.SubjectCode, k.Section, k.Room}, "\x1f")
	return uuid.NewSHA1(sessionNamespace, []byte(canonical)).String()
}

// String renders the key for logs.
func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", k.Date, k.SubjectCode, k.Section, k.Room)
}

// Session is one resolved, active class window. It is never mutated after
// resolution; a schedule change produces a new Session.
type Session struct {
	ID          string     `json:"id"`
	Key         SessionKey `json:"key"`
	SubjectCode string     `json:"subject_code"`
	Section     string     `json:"section"`
	Room        string     `json:"room"`
	Day         Weekday    `json:"day"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
}

// NewSession builds a Session and derives its ID from the key.
func NewSession(key SessionKey, day Weekday, start, end time.Time) *Session {
	return &Session{
		ID:          key.ID(),
		Key:         key,
		SubjectCode: key.SubjectCode,
		Section:     key.Section,
		Room:        key.Room,
		Day:         day,
		Start:       start,
		End:         end,
	}
}

// Date returns the session's calendar date (DateLayout).
func (s *Session) Date() string {
	return s.Key.Date
}

// Contains reports whether t falls inside [Start, End], inclusive.
func (s *Session) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// ScheduleEntry is one weekly slot in an instructor's timetable.
type ScheduleEntry struct {
	InstructorID string  `json:"instructor_id" toml:"instructor_id"`
	Day          Weekday `json:"day" toml:"day" validate:"gte=0,lte=6"`
	StartTime    string  `json:"start_time" toml:"start" validate:"required"`
	EndTime      string  `json:"end_time" toml:"end" validate:"required"`
	SubjectCode  string  `json:"subject_code" toml:"subject" validate:"required"`
	Section      string  `json:"section" toml:"section" validate:"required"`
	Room         string  `json:"room" toml:"room" validate:"required"`
}

// Window returns the concrete start and end instants of the entry on the
// calendar day of on, in on's location.
func (e ScheduleEntry) Window(on time.Time) (time.Time, time.Time, error) {
	start, err := time.Parse(ClockLayout, e.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q: %w", e.StartTime, err)
	}
	end, err := time.Parse(ClockLayout, e.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q: %w", e.EndTime, err)
	}
	y, m, d := on.Date()
	s := time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, on.Location())
	en := time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, on.Location())
	if !s.Before(en) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time %s must be before end time %s", e.StartTime, e.EndTime)
	}
	return s, en, nil
}

// Weekday is a time.Weekday that reads and writes as a lowercase day name
// ("monday") in TOML and JSON.
type Weekday time.Weekday

// ParseWeekday maps an English day name to a Weekday.
func ParseWeekday(name string) (Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == n {
			return Weekday(d), nil
		}
	}
	return 0, fmt.Errorf("invalid day %q", name)
}

func (d Weekday) String() string {
	return strings.ToLower(time.Weekday(d).String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Weekday) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Weekday) UnmarshalText(text []byte) error {
	w, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = w
	return nil
}
