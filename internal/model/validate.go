package model

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateRecord checks an AttendanceRecord before it is written.
// It returns a *ValidationError if any rules fail, or nil if the record is valid.
func ValidateRecord(r *AttendanceRecord) error {
	var ve ValidationError

	if strings.TrimSpace(r.ID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "is required"})
	}
	if strings.TrimSpace(r.StudentID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "student_id", Message: "is required"})
	}
	if strings.TrimSpace(r.SessionID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "session_id", Message: "is required"})
	}
	if strings.TrimSpace(r.SubmittedBy) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "submitted_by", Message: "is required"})
	}

	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "date",
			Message: fmt.Sprintf("invalid value %q", r.Date),
		})
	}

	// Status: must be a valid enum value (closed set).
	if !r.Status.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "status",
			Message: fmt.Sprintf("invalid value %q", r.Status),
		})
	}

	// Weight confirmation is only meaningful on top of a tap.
	if r.ConfirmedByWeight && !r.ConfirmedByRFID {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "confirmed_by_weight",
			Message: "requires confirmed_by_rfid",
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
