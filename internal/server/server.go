// Package server exposes the live attendance engine over HTTP/JSON and
// streams its events to SSE clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/commit"
	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/presence"
	"github.com/alfredjeanlab/seatcheck/internal/reconcile"
	"github.com/alfredjeanlab/seatcheck/internal/store"
)

// Engine is the live attendance view the server reads and overrides.
type Engine interface {
	Snapshot() (*model.Session, []model.StudentIdentity, []model.StudentState, error)
	Override(studentID string, c model.Classification, actor string) (model.StudentState, error)
	Subscribed() bool
}

// Submitter commits the active session.
type Submitter interface {
	Submit(ctx context.Context, req commit.SubmitRequest) (*commit.Result, error)
}

// BindingStore persists bindings that outlive a session.
type BindingStore interface {
	SaveBinding(ctx context.Context, b bindings.Binding) error
	DeleteBinding(ctx context.Context, sensorID string) error
}

// StatusReporter reports the supervisor's last tick.
type StatusReporter interface {
	Status() reconcile.Status
}

// SyncTrigger requests an out-of-band record backup.
type SyncTrigger interface {
	Trigger()
}

// Config wires a Server. Engine, Commit, Records and Bindings are required.
type Config struct {
	Engine       Engine
	Commit       Submitter
	Records      store.RecordStore
	Bindings     *bindings.Registry
	BindingStore BindingStore      // optional; nil keeps bindings in memory only
	Publisher    events.Publisher  // device ingest and binding changes
	Presence     *presence.Tracker // optional
	Supervisor   StatusReporter    // optional
	Sync         SyncTrigger       // optional
	Logger       *slog.Logger
}

// Server implements the HTTP API.
type Server struct {
	cfg    Config
	hub    *streamHub
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Publisher == nil {
		cfg.Publisher = &events.NoopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, hub: newStreamHub(), logger: cfg.Logger, now: time.Now}
}

// Publish fans an event out to connected SSE clients. It satisfies
// events.Publisher so the server can sit in an events.MultiPublisher next to
// the bus.
func (s *Server) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.hub.broadcast(topic, payload)
	return nil
}

func (s *Server) Close() error { return nil }

// emit publishes an event on the bus and to SSE clients. Both are
// best-effort.
func (s *Server) emit(ctx context.Context, topic string, event any) {
	if err := s.cfg.Publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("server: publish event", "topic", topic, "err", err)
	}
	if err := s.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("server: broadcast event", "topic", topic, "err", err)
	}
}

// inputError indicates invalid user input. Handlers map it to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// statusFor maps engine and commit errors to HTTP status codes.
func statusFor(err error) int {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidClassification), errors.Is(err, model.ErrInvalidBinding):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnknownStudent):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNoActiveSession), errors.Is(err, model.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, model.ErrRosterUnavailable), errors.Is(err, model.ErrScheduleUnavailable),
		errors.Is(err, model.ErrEventChannelDisconnected):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
