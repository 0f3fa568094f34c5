package model

import "time"

// StateKind tags the variant held by an AttendanceState.
type StateKind string

const (
	StateUnmarked       StateKind = "unmarked"
	StateTapPending     StateKind = "tap_pending"
	StateConfirmed      StateKind = "confirmed"
	StateAbsent         StateKind = "absent"
	StateManualOverride StateKind = "manual_override"
)

// Classification is the time-qualified outcome of attendance.
type Classification string

const (
	ClassPresent Classification = "present"
	ClassLate    Classification = "late"
	ClassAbsent  Classification = "absent"
)

// IsValid reports whether c is a known classification.
func (c Classification) IsValid() bool {
	switch c {
	case ClassPresent, ClassLate, ClassAbsent:
		return true
	}
	return false
}

// AbsentReason explains an Absent state.
type AbsentReason string

const (
	ReasonTimeout        AbsentReason = "timeout"
	ReasonManualOverride AbsentReason = "manual_override"
	ReasonNoTap          AbsentReason = "no_tap"
)

// AttendanceState is the live state of one student in one session. Which
// fields are meaningful depends on Kind; build values with the constructors
// below rather than by hand.
type AttendanceState struct {
	Kind StateKind `json:"kind"`

	TapTimestamp   time.Time      `json:"tap_timestamp,omitzero"`  // tap_pending, confirmed
	Classification Classification `json:"classification,omitempty"` // confirmed, manual_override
	Weight         *float64       `json:"weight,omitempty"`         // confirmed; nil when unverified
	ConfirmedAt    time.Time      `json:"confirmed_at,omitzero"`    // confirmed
	Reason         AbsentReason   `json:"reason,omitempty"`         // absent
	SetAt          time.Time      `json:"set_at,omitzero"`          // absent, manual_override
	SetBy          string         `json:"set_by,omitempty"`         // manual_override
}

// Unmarked is the initial state.
func Unmarked() AttendanceState {
	return AttendanceState{Kind: StateUnmarked}
}

// TapPending records a tap that still awaits weight confirmation.
func TapPending(tapAt time.Time) AttendanceState {
	return AttendanceState{Kind: StateTapPending, TapTimestamp: tapAt}
}

// Confirmed records a fused tap. weight is nil when presence was never
// verified by a sensor.
func Confirmed(c Classification, tapAt time.Time, weight *float64, confirmedAt time.Time) AttendanceState {
	return AttendanceState{
		Kind:           StateConfirmed,
		Classification: c,
		TapTimestamp:   tapAt,
		Weight:         weight,
		ConfirmedAt:    confirmedAt,
	}
}

// Absent records an automatic absence.
func Absent(reason AbsentReason, at time.Time) AttendanceState {
	return AttendanceState{Kind: StateAbsent, Reason: reason, SetAt: at}
}

// ManualOverride records an instructor decision.
func ManualOverride(c Classification, at time.Time, actor string) AttendanceState {
	return AttendanceState{Kind: StateManualOverride, Classification: c, SetAt: at, SetBy: actor}
}

// IsTerminal reports whether no automatic transition can leave this state
// within the current session cycle.
func (s AttendanceState) IsTerminal() bool {
	switch s.Kind {
	case StateConfirmed, StateAbsent, StateManualOverride:
		return true
	}
	return false
}

// Status collapses the live state to a committed status. Anything that was
// not positively confirmed is absent.
func (s AttendanceState) Status() Status {
	switch s.Kind {
	case StateConfirmed, StateManualOverride:
		switch s.Classification {
		case ClassPresent:
			return StatusPresent
		case ClassLate:
			return StatusLate
		}
	}
	return StatusAbsent
}

// Tapped reports whether a card tap contributed to this state.
func (s AttendanceState) Tapped() bool {
	return !s.TapTimestamp.IsZero()
}

// WeightVerified reports whether a seat sensor confirmed presence.
func (s AttendanceState) WeightVerified() bool {
	return s.Kind == StateConfirmed && s.Weight != nil
}

// Label is the five-way display label: Unmarked, Pending, Present, Late or Absent.
func (s AttendanceState) Label() string {
	switch s.Kind {
	case StateUnmarked:
		return "Unmarked"
	case StateTapPending:
		return "Pending"
	}
	switch s.Status() {
	case StatusPresent:
		return "Present"
	case StatusLate:
		return "Late"
	}
	return "Absent"
}

// StudentState pairs a roster member with their live state.
type StudentState struct {
	StudentID   string          `json:"student_id"`
	DisplayName string          `json:"display_name"`
	State       AttendanceState `json:"state"`
}
