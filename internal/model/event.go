package model

import (
	"fmt"
	"time"
)

// TapEvent is a proximity-card tap from a reader. It authenticates identity.
type TapEvent struct {
	StudentID string    `json:"student_id"`
	ReaderID  string    `json:"reader_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DedupKey identifies redeliveries of the same physical tap.
func (e TapEvent) DedupKey() string {
	return fmt.Sprintf("tap|%s|%d", e.StudentID, e.Timestamp.UnixNano())
}

// WeightEvent is a seat-sensor reading. It proves physical presence but
// carries no identity; the student is resolved through a sensor binding.
type WeightEvent struct {
	SensorID  string    `json:"sensor_id"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// DedupKey identifies redeliveries of the same physical reading.
func (e WeightEvent) DedupKey() string {
	return fmt.Sprintf("weight|%s|%d", e.SensorID, e.Timestamp.UnixNano())
}

// StateChange reports one attendance transition.
type StateChange struct {
	SessionID string          `json:"session_id"`
	StudentID string          `json:"student_id"`
	From      AttendanceState `json:"from"`
	To        AttendanceState `json:"to"`
	At        time.Time       `json:"at"`
}
