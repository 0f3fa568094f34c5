package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// Device topics are scoped by room: devices publish on
// "seatcheck.tap.<room>" and "seatcheck.weight.<room>".
const (
	topicTapPrefix    = "seatcheck.tap."
	topicWeightPrefix = "seatcheck.weight."

	TopicAllTaps    = "seatcheck.tap.>"
	TopicAllWeights = "seatcheck.weight.>"
)

// Engine topics.
const (
	TopicStateChanged        = "seatcheck.state.changed"
	TopicAttendanceSubmitted = "seatcheck.attendance.submitted"
	TopicSessionChanged      = "seatcheck.session.changed"
	TopicBindingChanged      = "seatcheck.binding.changed"
	TopicDeviceSilent        = "seatcheck.device.silent"
)

// TapTopic returns the subject tap readers in room publish on.
func TapTopic(room string) string {
	return topicTapPrefix + RoomToken(room)
}

// WeightTopic returns the subject seat sensors in room publish on.
func WeightTopic(room string) string {
	return topicWeightPrefix + RoomToken(room)
}

// RoomToken turns a room name into a single subject token. Anything outside
// [A-Za-z0-9_-] becomes an underscore, so "Bldg 4.201" maps to "Bldg_4_201".
func RoomToken(room string) string {
	room = strings.TrimSpace(room)
	if room == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(room))
	for _, r := range room {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// MatchTopic matches a dot-separated topic against a pattern. "*" matches a
// single segment and a trailing ">" matches one or more segments.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}

// Event types

type StateChanged struct {
	Change model.StateChange `json:"change"`
	Label  string            `json:"label"`
}

type AttendanceSubmitted struct {
	SessionID   string `json:"session_id"`
	Date        string `json:"date"`
	SubmittedBy string `json:"submitted_by"`
	Records     int    `json:"records"`
	Overwrite   bool   `json:"overwrite"`
}

type SessionChanged struct {
	Session    *model.Session `json:"session,omitempty"` // nil when no class is in progress
	PreviousID string         `json:"previous_id,omitempty"`
	Students   int            `json:"students"`
}

type BindingChanged struct {
	SensorID  string `json:"sensor_id"`
	StudentID string `json:"student_id,omitempty"` // empty on unbind
}

type DeviceSilent struct {
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
	Room     string `json:"room,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
