package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/schedule"
)

// RosterLoader loads the students enrolled in a session.
type RosterLoader interface {
	Load(ctx context.Context, session *model.Session) ([]model.StudentIdentity, error)
}

// SupervisorConfig wires a Supervisor.
type SupervisorConfig struct {
	Engine       *Engine
	Schedules    schedule.Source
	Roster       RosterLoader
	InstructorID string
	Publisher    events.Publisher // optional

	// Interval between ticks. Default: 1 second.
	Interval time.Duration

	// Linger keeps an ended session active so it can still be reviewed and
	// submitted. It is dropped once Linger has passed since its end or a
	// different session starts. Default: 30 minutes.
	Linger time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// Status is the supervisor's view of the last tick.
type Status struct {
	LastTick  time.Time      `json:"last_tick"`
	Session   *model.Session `json:"session,omitempty"`
	Ended     bool           `json:"ended"`
	LastError string         `json:"last_error,omitempty"`
}

// Supervisor drives the engine: on every tick it resolves the current
// session, loads its roster when the session changes, activates the engine
// and applies timeouts.
type Supervisor struct {
	cfg    SupervisorConfig
	clock  func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewSupervisor creates a supervisor. Call Run to start ticking.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Linger <= 0 {
		cfg.Linger = 30 * time.Minute
	}
	if cfg.Publisher == nil {
		cfg.Publisher = &events.NoopPublisher{}
	}
	s := &Supervisor{cfg: cfg, clock: cfg.Clock, logger: cfg.Logger}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run ticks until ctx is cancelled, then deactivates the engine.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			s.cfg.Engine.Close()
			return ctx.Err()
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Step performs one tick.
func (s *Supervisor) Step(ctx context.Context) {
	now := s.clock()
	engine := s.cfg.Engine
	active := engine.Session()

	resolved, ok, err := schedule.Current(ctx, s.cfg.Schedules, s.cfg.InstructorID, now)
	switch {
	case err != nil:
		// Keep whatever is active; timeouts still have to fire.
		s.logger.Warn("supervisor: schedule lookup failed", "err", err)
		s.record(now, active, err)
	case ok && (active == nil || active.ID != resolved.ID):
		s.switchTo(ctx, now, resolved, active)
	case ok:
		// Same session; retry any dropped subscription. The roster is
		// ignored when the session is already active.
		if !engine.Subscribed() {
			s.activate(now, active, nil)
		} else {
			s.record(now, active, nil)
		}
	case active != nil && now.After(active.End.Add(s.cfg.Linger)):
		s.logger.Info("supervisor: session closed", "session", active.Key.String())
		engine.Deactivate()
		s.publish(ctx, events.SessionChanged{PreviousID: active.ID})
		s.record(now, nil, nil)
	default:
		s.record(now, active, nil)
	}

	engine.Tick(now)
}

func (s *Supervisor) switchTo(ctx context.Context, now time.Time, next, prev *model.Session) {
	roster, err := s.cfg.Roster.Load(ctx, next)
	if err != nil {
		// The previous session stays active rather than losing its state.
		s.logger.Error("supervisor: roster unavailable", "session", next.Key.String(), "err", err)
		s.record(now, prev, err)
		return
	}
	s.activate(now, next, roster)
	prevID := ""
	if prev != nil {
		prevID = prev.ID
	}
	s.logger.Info("supervisor: session activated",
		"session", next.Key.String(), "id", next.ID, "students", len(roster))
	s.publish(ctx, events.SessionChanged{Session: next, PreviousID: prevID, Students: len(roster)})
}

func (s *Supervisor) activate(now time.Time, session *model.Session, roster []model.StudentIdentity) {
	err := s.cfg.Engine.Activate(session, roster)
	if err != nil {
		s.logger.Warn("supervisor: event subscription failed", "session", session.Key.String(), "err", err)
	}
	s.record(now, session, err)
}

func (s *Supervisor) publish(ctx context.Context, ev events.SessionChanged) {
	if err := s.cfg.Publisher.Publish(ctx, events.TopicSessionChanged, ev); err != nil {
		s.logger.Warn("supervisor: publish session change", "err", err)
	}
}

func (s *Supervisor) record(now time.Time, session *model.Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{LastTick: now, Session: session}
	if session != nil {
		s.status.Ended = now.After(session.End)
	}
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// Status returns the outcome of the last tick.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
