package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// DeviceChannel opens session-scoped device event streams.
type DeviceChannel interface {
	SubscribeTaps(session *model.Session) (*events.TapSubscription, error)
	SubscribeWeights(session *model.Session) (*events.WeightSubscription, error)
}

// BindingRegistry is the binding table the engine seeds and clears.
type BindingRegistry interface {
	Bindings
	Seed(sessionID string, roster []model.StudentIdentity) int
	ClearSessionScoped(sessionID string) int
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Grace    model.GraceConfig
	Channel  DeviceChannel
	Bindings BindingRegistry
	Clock    func() time.Time // defaults to time.Now
	Logger   *slog.Logger
}

// Engine owns the state machine of the active session. Every mutation, from
// event dispatch, ticks, overrides or resets, goes through one lock.
type Engine struct {
	cfg    EngineConfig
	clock  func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	machine  *Machine
	taps     *events.TapSubscription
	weights  *events.WeightSubscription
	handlers []func(model.StateChange)

	pumps sync.WaitGroup
}

// NewEngine creates an idle engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{cfg: cfg, clock: cfg.Clock, logger: cfg.Logger}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// OnChange registers a handler for every state transition. Handlers run
// with the engine lock held and must not call back into the Engine.
func (e *Engine) OnChange(fn func(model.StateChange)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
}

// Activate makes session the active session with every roster member
// Unmarked. The previous session's subscriptions are cancelled without
// waiting for in-flight events. Activating the session that is already
// active only re-establishes missing subscriptions.
//
// A subscription failure leaves the session active (overrides and ticks
// still work) and returns an error matching model.ErrEventChannelDisconnected.
func (e *Engine) Activate(session *model.Session, roster []model.StudentIdentity) error {
	if session == nil {
		return model.ErrNoActiveSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine != nil && e.machine.Session().ID == session.ID {
		if e.taps != nil && e.weights != nil {
			return nil
		}
		return e.subscribeLocked(session)
	}

	e.teardownLocked()
	e.machine = NewMachine(session, roster, e.cfg.Grace, e.cfg.Bindings)
	if n := e.cfg.Bindings.Seed(session.ID, roster); n > 0 {
		e.logger.Info("engine: seeded sensor bindings", "session", session.Key.String(), "count", n)
	}
	return e.subscribeLocked(session)
}

func (e *Engine) subscribeLocked(session *model.Session) error {
	if e.taps == nil {
		taps, err := e.cfg.Channel.SubscribeTaps(session)
		if err != nil {
			return fmt.Errorf("subscribe taps: %w", err)
		}
		e.taps = taps
		e.pumps.Add(1)
		go pump(e, taps, e.applyTap)
	}
	if e.weights == nil {
		weights, err := e.cfg.Channel.SubscribeWeights(session)
		if err != nil {
			return fmt.Errorf("subscribe weights: %w", err)
		}
		e.weights = weights
		e.pumps.Add(1)
		go pump(e, weights, e.applyWeight)
	}
	return nil
}

func pump[T any](e *Engine, sub *events.Subscription[T], apply func(sessionID string, ev T)) {
	defer e.pumps.Done()
	sessionID := sub.Session().ID
	for ev := range sub.C() {
		apply(sessionID, ev)
	}
}

// Deactivate cancels subscriptions, drops the live state and releases the
// session's scoped sensor bindings.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	if e.taps != nil {
		e.taps.Cancel()
		e.taps = nil
	}
	if e.weights != nil {
		e.weights.Cancel()
		e.weights = nil
	}
	if e.machine != nil {
		e.cfg.Bindings.ClearSessionScoped(e.machine.Session().ID)
		e.machine = nil
	}
}

// Close deactivates the engine and waits for dispatch goroutines to exit.
func (e *Engine) Close() {
	e.Deactivate()
	e.pumps.Wait()
}

func (e *Engine) applyTap(sessionID string, ev model.TapEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(sessionID) {
		return
	}
	changes, err := e.machine.ApplyTap(ev)
	if err != nil {
		e.logger.Warn("engine: tap ignored", "student_id", ev.StudentID, "err", err)
		return
	}
	e.notifyLocked(changes)
}

func (e *Engine) applyWeight(sessionID string, ev model.WeightEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(sessionID) {
		return
	}
	changes, err := e.machine.ApplyWeight(ev)
	if err != nil {
		if errors.Is(err, model.ErrInvalidBinding) {
			e.logger.Debug("engine: reading from unbound sensor", "sensor_id", ev.SensorID)
		} else {
			e.logger.Warn("engine: reading ignored", "sensor_id", ev.SensorID, "err", err)
		}
		return
	}
	e.notifyLocked(changes)
}

// ApplyTap folds a tap directly, bypassing the event channel.
func (e *Engine) ApplyTap(ev model.TapEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return model.ErrNoActiveSession
	}
	changes, err := e.machine.ApplyTap(ev)
	e.notifyLocked(changes)
	return err
}

// ApplyWeight folds a seat reading directly, bypassing the event channel.
func (e *Engine) ApplyWeight(ev model.WeightEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return model.ErrNoActiveSession
	}
	changes, err := e.machine.ApplyWeight(ev)
	e.notifyLocked(changes)
	return err
}

// currentLocked reports whether events for sessionID may still be applied.
// A cancelled subscription can deliver one last buffered event; this keeps
// it out of a newer session.
func (e *Engine) currentLocked(sessionID string) bool {
	return e.machine != nil && e.machine.Session().ID == sessionID
}

// Tick applies time-driven transitions as of now.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return
	}
	e.notifyLocked(e.machine.Tick(now))
}

// Override forces a student's classification, stamped with the engine clock.
func (e *Engine) Override(studentID string, c model.Classification, actor string) (model.StudentState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return model.StudentState{}, model.ErrNoActiveSession
	}
	change, changed, err := e.machine.Override(studentID, c, e.clock(), actor)
	if err != nil {
		return model.StudentState{}, err
	}
	if changed {
		e.notifyLocked([]model.StateChange{change})
		e.logger.Info("engine: manual override", "student_id", studentID, "classification", c, "actor", actor)
	}
	st, _ := e.machine.Student(studentID)
	return st, nil
}

// Reset starts the next attendance cycle of sessionID after submitted was
// committed. Students whose state changed since that snapshot keep it and are
// returned as carried; a nil snapshot resets everyone. Session-scoped
// bindings made by hand are released and the roster's seat bindings seeded
// again, so the session keeps fusing readings.
//
// It fails with model.ErrNoActiveSession if that session is no longer active.
func (e *Engine) Reset(sessionID string, submitted []model.StudentState) (carried []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(sessionID) {
		return nil, model.ErrNoActiveSession
	}
	changes, carried := e.machine.Reset(e.clock(), submitted)
	e.cfg.Bindings.ClearSessionScoped(sessionID)
	e.cfg.Bindings.Seed(sessionID, e.machine.Roster())
	e.notifyLocked(changes)
	return carried, nil
}

// Session returns the active session, or nil.
func (e *Engine) Session() *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return nil
	}
	return e.machine.Session()
}

// Snapshot returns the active session with the roster and every student's
// state, in roster order.
func (e *Engine) Snapshot() (*model.Session, []model.StudentIdentity, []model.StudentState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return nil, nil, nil, model.ErrNoActiveSession
	}
	return e.machine.Session(), e.machine.Roster(), e.machine.Snapshot(), nil
}

// Subscribed reports whether both device streams are open.
func (e *Engine) Subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taps != nil && e.weights != nil
}

func (e *Engine) notifyLocked(changes []model.StateChange) {
	for _, c := range changes {
		for _, fn := range e.handlers {
			fn(c)
		}
	}
}
