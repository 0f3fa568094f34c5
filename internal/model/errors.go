package model

import "errors"

// Engine-level failure classes. Packages wrap these with context; callers
// match them with errors.Is.
var (
	ErrRosterUnavailable        = errors.New("roster unavailable")
	ErrScheduleUnavailable      = errors.New("schedule unavailable")
	ErrEventChannelDisconnected = errors.New("event channel disconnected")
	ErrDuplicateSubmission      = errors.New("attendance already submitted")
	ErrWriteFailure             = errors.New("attendance write failed")
	ErrInvalidBinding           = errors.New("sensor is not bound to a student")
	ErrNoActiveSession          = errors.New("no active session")
	ErrUnknownStudent           = errors.New("student is not on the roster")
	ErrInvalidClassification    = errors.New("invalid classification")
)
