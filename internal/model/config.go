package model

import (
	"fmt"
	"time"
)

// TapOnlyPolicy decides what a tap that is never confirmed by a seat sensor
// turns into once the absence timeout elapses.
type TapOnlyPolicy string

const (
	// TapOnlyAbsent treats an unverified tap as an absence (the default).
	TapOnlyAbsent TapOnlyPolicy = "absent"
	// TapOnlyLate accepts the tap as Late with no weight attached.
	TapOnlyLate TapOnlyPolicy = "late"
)

// IsValid checks whether the policy is a known value.
func (p TapOnlyPolicy) IsValid() bool {
	return p == TapOnlyAbsent || p == TapOnlyLate
}

// GraceConfig holds the classification thresholds shared by every session.
type GraceConfig struct {
	// GraceWindow is how long after session start a tap still counts as on
	// time. The boundary is inclusive.
	GraceWindow time.Duration `json:"grace_window"`

	// AbsentTimeout is how long a tap may wait for weight confirmation.
	AbsentTimeout time.Duration `json:"absent_timeout"`

	// PresenceThreshold is the minimum sensor reading treated as an
	// occupied seat.
	PresenceThreshold float64 `json:"presence_threshold"`

	TapOnlyPolicy TapOnlyPolicy `json:"tap_only_policy"`
}

// DefaultGraceConfig returns the stock thresholds.
func DefaultGraceConfig() GraceConfig {
	return GraceConfig{
		GraceWindow:       15 * time.Minute,
		AbsentTimeout:     10 * time.Minute,
		PresenceThreshold: 20,
		TapOnlyPolicy:     TapOnlyAbsent,
	}
}

// Validate checks the thresholds for nonsensical values.
func (c GraceConfig) Validate() error {
	var ve ValidationError
	if c.GraceWindow < 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "grace_window", Message: "must not be negative"})
	}
	if c.AbsentTimeout <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "absent_timeout", Message: "must be positive"})
	}
	if c.PresenceThreshold <= 0 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "presence_threshold",
			Message: fmt.Sprintf("must be positive, got %g", c.PresenceThreshold),
		})
	}
	if !c.TapOnlyPolicy.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "tap_only_policy",
			Message: fmt.Sprintf("invalid value %q", c.TapOnlyPolicy),
		})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
