package model

import "time"

// Status is the committed attendance outcome.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// AttendanceRecord is the durable result of a commit. Records are never
// updated; a resubmission deletes and replaces the whole set.
type AttendanceRecord struct {
	ID                string    `json:"id"`
	StudentID         string    `json:"student_id"`
	SessionID         string    `json:"session_id"`
	Date              string    `json:"date"` // DateLayout
	SubjectCode       string    `json:"subject_code"`
	Section           string    `json:"section"`
	Room              string    `json:"room"`
	Status            Status    `json:"status"`
	ConfirmedByRFID   bool      `json:"confirmed_by_rfid"`
	ConfirmedByWeight bool      `json:"confirmed_by_weight"`
	Timestamp         time.Time `json:"timestamp"`
	SubmittedBy       string    `json:"submitted_by"`
}

// RecordFilter selects committed records.
type RecordFilter struct {
	SessionID   string
	Date        string
	SubmittedBy string
	Since       *time.Time
	Limit       int
}
