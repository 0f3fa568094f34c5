// Package client provides a transport-agnostic interface for the seatcheck
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/commit"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/presence"
	"github.com/alfredjeanlab/seatcheck/internal/reconcile"
	"github.com/alfredjeanlab/seatcheck/internal/stats"
)

// Client is the interface the seatcheck CLI commands use to talk to the
// server.
type Client interface {
	// Live session
	GetSession(ctx context.Context) (*SessionInfo, error)
	GetStates(ctx context.Context) (*StatesResponse, error)
	Override(ctx context.Context, studentID string, c model.Classification, actor string) (*StudentRow, error)
	Submit(ctx context.Context, req commit.SubmitRequest) (*commit.Result, error)
	GetStats(ctx context.Context, req *StatsRequest) (*StatsResponse, error)

	// Bindings
	ListBindings(ctx context.Context) ([]bindings.Binding, error)
	Bind(ctx context.Context, sensorID, studentID string, sessionScoped bool) (*bindings.Binding, error)
	Unbind(ctx context.Context, sensorID string) error

	// Devices
	EmitTap(ctx context.Context, req *EmitTapRequest) (string, error)
	EmitWeight(ctx context.Context, req *EmitWeightRequest) (string, error)
	ListDevices(ctx context.Context, silentOnly bool) ([]presence.Entry, error)

	// Records
	ListRecords(ctx context.Context, req *RecordsRequest) ([]*model.AttendanceRecord, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// SessionInfo is the response from GetSession. Session is nil when no class
// is in progress.
type SessionInfo struct {
	Session    *model.Session    `json:"session"`
	Students   int               `json:"students"`
	Subscribed bool              `json:"subscribed"`
	Supervisor *reconcile.Status `json:"supervisor,omitempty"`
}

// StudentRow is one student's live state.
type StudentRow struct {
	StudentID   string                `json:"student_id"`
	DisplayName string                `json:"display_name"`
	Label       string                `json:"label"`
	Status      model.Status          `json:"status"`
	State       model.AttendanceState `json:"state"`
}

// StatesResponse is the response from GetStates.
type StatesResponse struct {
	Session  *model.Session `json:"session"`
	Students []StudentRow   `json:"students"`
}

// StatsRequest selects committed records to summarize. A zero request
// summarizes the live session.
type StatsRequest struct {
	SessionID   string
	Date        string
	SubmittedBy string
}

// StatsResponse is the response from GetStats.
type StatsResponse struct {
	Source    string        `json:"source"` // "live" or "records"
	SessionID string        `json:"session_id,omitempty"`
	Stats     stats.Summary `json:"stats"`
}

// EmitTapRequest injects a tap. Room defaults to the active session's room
// and Timestamp to the server's clock.
type EmitTapRequest struct {
	StudentID string    `json:"student_id"`
	ReaderID  string    `json:"reader_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Room      string    `json:"room,omitempty"`
}

// EmitWeightRequest injects a seat reading.
type EmitWeightRequest struct {
	SensorID  string    `json:"sensor_id"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Room      string    `json:"room,omitempty"`
}

// RecordsRequest filters committed records.
type RecordsRequest struct {
	SessionID   string
	Date        string
	SubmittedBy string
	Since       *time.Time
	Limit       int
}
