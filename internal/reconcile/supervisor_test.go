package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/roster"
	"github.com/alfredjeanlab/seatcheck/internal/schedule"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.SessionChanged
}

func (c *capturePublisher) Publish(_ context.Context, topic string, ev any) error {
	if sc, ok := ev.(events.SessionChanged); ok && topic == events.TopicSessionChanged {
		c.mu.Lock()
		c.events = append(c.events, sc)
		c.mu.Unlock()
	}
	return nil
}

func (c *capturePublisher) Close() error { return nil }

type flakyRoster struct {
	err error
	src roster.Source
}

func (f *flakyRoster) Load(ctx context.Context, s *model.Session) ([]model.StudentIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return roster.NewLoader(f.src, nil).Load(ctx, s)
}

type failingSchedule struct{}

func (failingSchedule) GetSchedules(context.Context, string) ([]model.ScheduleEntry, error) {
	return nil, model.ErrScheduleUnavailable
}

type supervisorFixture struct {
	now    time.Time
	engine *Engine
	sup    *Supervisor
	pub    *capturePublisher
	roster *flakyRoster
}

func newSupervisorFixture(t *testing.T, src schedule.Source) *supervisorFixture {
	t.Helper()
	bus := events.NewLocalBus()
	f := &supervisorFixture{now: at(-10 * time.Minute), pub: &capturePublisher{}}
	clock := func() time.Time { return f.now }

	key := model.NewSessionKey(classStart, "CS101", "A", "R-204")
	f.roster = &flakyRoster{src: roster.StaticSource{key: rosterOf("s-1", "s-2")}}

	f.engine = NewEngine(EngineConfig{
		Grace:    testGrace(model.TapOnlyAbsent),
		Channel:  events.NewChannel(bus, nil),
		Bindings: bindings.New(),
		Clock:    clock,
	})
	f.sup = NewSupervisor(SupervisorConfig{
		Engine:       f.engine,
		Schedules:    src,
		Roster:       f.roster,
		InstructorID: "prof-lee",
		Publisher:    f.pub,
		Linger:       20 * time.Minute,
		Clock:        clock,
	})
	t.Cleanup(func() {
		f.engine.Close()
		bus.Close()
	})
	return f
}

func mondayClass() schedule.StaticSource {
	return schedule.StaticSource{{
		InstructorID: "prof-lee",
		Day:          model.Weekday(time.Monday),
		StartTime:    "09:00",
		EndTime:      "10:00",
		SubjectCode:  "CS101",
		Section:      "A",
		Room:         "R-204",
	}}
}

func TestSupervisor_Lifecycle(t *testing.T) {
	f := newSupervisorFixture(t, mondayClass())
	ctx := context.Background()

	f.sup.Step(ctx)
	if f.engine.Session() != nil {
		t.Fatal("no session expected before class")
	}

	f.now = at(time.Minute)
	f.sup.Step(ctx)
	s := f.engine.Session()
	if s == nil || s.SubjectCode != "CS101" {
		t.Fatalf("expected CS101 active, got %+v", s)
	}
	if st := f.sup.Status(); st.Session == nil || st.Ended || st.LastError != "" {
		t.Fatalf("unexpected status %+v", st)
	}

	// Re-resolving the same class does not rebuild state.
	f.engine.ApplyTap(tap("s-1", 2*time.Minute))
	f.now = at(3 * time.Minute)
	f.sup.Step(ctx)
	waitForState(t, f.engine, "s-1", model.StateTapPending)

	// After the end the session lingers and no-shows become absent.
	f.now = at(61 * time.Minute)
	f.sup.Step(ctx)
	if f.engine.Session() == nil {
		t.Fatal("ended session should linger")
	}
	if !f.sup.Status().Ended {
		t.Error("status should report the session ended")
	}
	waitForState(t, f.engine, "s-2", model.StateAbsent)

	f.now = at(81 * time.Minute)
	f.sup.Step(ctx)
	if f.engine.Session() != nil {
		t.Fatal("session should be dropped after the linger period")
	}

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	if len(f.pub.events) != 2 || f.pub.events[0].Session == nil || f.pub.events[1].Session != nil {
		t.Fatalf("unexpected session events %+v", f.pub.events)
	}
	if f.pub.events[0].Students != 2 || f.pub.events[1].PreviousID != s.ID {
		t.Errorf("session events missing detail: %+v", f.pub.events)
	}
}

func TestSupervisor_RosterUnavailable(t *testing.T) {
	f := newSupervisorFixture(t, mondayClass())
	f.roster.err = roster.ErrUnavailable
	f.now = at(time.Minute)

	f.sup.Step(context.Background())
	if f.engine.Session() != nil {
		t.Fatal("session must not activate without a roster")
	}
	if st := f.sup.Status(); st.LastError == "" {
		t.Fatal("roster failure should be surfaced in status")
	}

	f.roster.err = nil
	f.sup.Step(context.Background())
	if f.engine.Session() == nil {
		t.Fatal("session should activate once the roster is back")
	}
}

func TestSupervisor_ScheduleUnavailableKeepsTicking(t *testing.T) {
	f := newSupervisorFixture(t, failingSchedule{})
	s := testSession("R-204")
	f.engine.Activate(s, rosterOf("s-1"))

	f.now = at(2 * time.Hour)
	f.sup.Step(context.Background())

	if f.engine.Session() == nil {
		t.Fatal("schedule outage should not drop the active session")
	}
	waitForState(t, f.engine, "s-1", model.StateAbsent)
	if st := f.sup.Status(); st.LastError == "" {
		t.Error("schedule failure should be surfaced in status")
	}
}

func TestSupervisor_RunStopsOnCancel(t *testing.T) {
	f := newSupervisorFixture(t, mondayClass())
	f.now = at(time.Minute)
	f.sup.cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.engine.Session() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if f.engine.Session() != nil {
		t.Fatal("engine should be deactivated on shutdown")
	}
}
