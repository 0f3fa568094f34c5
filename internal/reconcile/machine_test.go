package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/model"
)

var classStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testSession(room string) *model.Session {
	key := model.NewSessionKey(classStart, "CS101", "A", room)
	return model.NewSession(key, model.Weekday(time.Monday), classStart, classStart.Add(time.Hour))
}

func testGrace(policy model.TapOnlyPolicy) model.GraceConfig {
	return model.GraceConfig{
		GraceWindow:       15 * time.Minute,
		AbsentTimeout:     10 * time.Minute,
		PresenceThreshold: 20,
		TapOnlyPolicy:     policy,
	}
}

func at(d time.Duration) time.Time { return classStart.Add(d) }

func tap(student string, d time.Duration) model.TapEvent {
	return model.TapEvent{StudentID: student, ReaderID: "door", Timestamp: at(d)}
}

func weight(sensor string, w float64, d time.Duration) model.WeightEvent {
	return model.WeightEvent{SensorID: sensor, Weight: w, Timestamp: at(d)}
}

// newTestMachine builds a machine where student "s-N" sits at "seat-N".
func newTestMachine(t *testing.T, policy model.TapOnlyPolicy, students ...string) (*Machine, *bindings.Registry) {
	t.Helper()
	reg := bindings.New()
	roster := make([]model.StudentIdentity, 0, len(students))
	for _, id := range students {
		roster = append(roster, model.StudentIdentity{StudentID: id, DisplayName: "name " + id})
		if _, err := reg.Bind("seat-"+id, id, ""); err != nil {
			t.Fatal(err)
		}
	}
	return NewMachine(testSession("R-204"), roster, testGrace(policy), reg), reg
}

func stateOf(t *testing.T, m *Machine, id string) model.AttendanceState {
	t.Helper()
	st, ok := m.Student(id)
	if !ok {
		t.Fatalf("student %s not in machine", id)
	}
	return st.State
}

func mustTap(t *testing.T, m *Machine, ev model.TapEvent) []model.StateChange {
	t.Helper()
	changes, err := m.ApplyTap(ev)
	if err != nil {
		t.Fatalf("ApplyTap(%+v): %v", ev, err)
	}
	return changes
}

func mustWeigh(t *testing.T, m *Machine, ev model.WeightEvent) []model.StateChange {
	t.Helper()
	changes, err := m.ApplyWeight(ev)
	if err != nil {
		t.Fatalf("ApplyWeight(%+v): %v", ev, err)
	}
	return changes
}

func TestMachine_OneStatePerMember(t *testing.T) {
	roster := []model.StudentIdentity{{StudentID: "b"}, {StudentID: "a"}, {StudentID: "b"}}
	m := NewMachine(testSession("R-1"), roster, testGrace(model.TapOnlyAbsent), bindings.New())

	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].StudentID != "b" || snap[1].StudentID != "a" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	for _, s := range snap {
		if s.State.Kind != model.StateUnmarked {
			t.Errorf("%s starts as %s, want unmarked", s.StudentID, s.State.Kind)
		}
	}
}

func TestMachine_GraceBoundary(t *testing.T) {
	for _, tc := range []struct {
		name string
		tap  time.Duration
		want model.Classification
	}{
		{"BeforeStart", -3 * time.Minute, model.ClassPresent},
		{"AtStart", 0, model.ClassPresent},
		{"ExactlyAtGrace", 15 * time.Minute, model.ClassPresent},
		{"OneMillisecondLate", 15*time.Minute + time.Millisecond, model.ClassLate},
		{"WellLate", 40 * time.Minute, model.ClassLate},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")
			mustTap(t, m, tap("s-1", tc.tap))
			changes := mustWeigh(t, m, weight("seat-s-1", 25, tc.tap+time.Minute))

			if len(changes) != 1 {
				t.Fatalf("expected 1 change, got %d", len(changes))
			}
			st := stateOf(t, m, "s-1")
			if st.Kind != model.StateConfirmed || st.Classification != tc.want {
				t.Fatalf("state = %+v, want confirmed %s", st, tc.want)
			}
			if st.Weight == nil || *st.Weight != 25 {
				t.Errorf("weight not recorded: %v", st.Weight)
			}
			if !st.TapTimestamp.Equal(at(tc.tap)) || !st.ConfirmedAt.Equal(at(tc.tap+time.Minute)) {
				t.Errorf("timestamps wrong: %+v", st)
			}
		})
	}
}

func TestMachine_WeightBelowThreshold(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")
	mustTap(t, m, tap("s-1", time.Minute))

	for _, w := range []float64{0, 5, 19.99} {
		if changes := mustWeigh(t, m, weight("seat-s-1", w, 2*time.Minute+time.Duration(w)*time.Second)); len(changes) != 0 {
			t.Fatalf("weight %g caused %d changes", w, len(changes))
		}
	}
	if st := stateOf(t, m, "s-1"); st.Kind != model.StateTapPending {
		t.Fatalf("state = %s, want tap_pending", st.Kind)
	}

	// The threshold itself counts as occupied.
	mustWeigh(t, m, weight("seat-s-1", 20, 3*time.Minute))
	if st := stateOf(t, m, "s-1"); st.Kind != model.StateConfirmed {
		t.Fatalf("state = %s, want confirmed at threshold", st.Kind)
	}
}

func TestMachine_WeightBeforeTap(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1", "s-2")

	if changes := mustWeigh(t, m, weight("seat-s-1", 70, time.Minute)); len(changes) != 0 {
		t.Fatalf("weight without tap produced %d changes", len(changes))
	}
	if st := stateOf(t, m, "s-1"); st.Kind != model.StateUnmarked {
		t.Fatalf("state = %s, want unmarked", st.Kind)
	}

	// The buffered reading confirms as soon as identity is established.
	changes := mustTap(t, m, tap("s-1", 3*time.Minute))
	if len(changes) != 2 || changes[0].To.Kind != model.StateTapPending || changes[1].To.Kind != model.StateConfirmed {
		t.Fatalf("unexpected changes %+v", changes)
	}
	st := stateOf(t, m, "s-1")
	if st.Classification != model.ClassPresent || *st.Weight != 70 {
		t.Errorf("state = %+v", st)
	}

	// A buffered empty-seat reading does not.
	mustWeigh(t, m, weight("seat-s-2", 3, time.Minute))
	mustTap(t, m, tap("s-2", 2*time.Minute))
	if st := stateOf(t, m, "s-2"); st.Kind != model.StateTapPending {
		t.Fatalf("s-2 state = %s, want tap_pending", st.Kind)
	}
}

func TestMachine_LatestReadingWins(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")

	mustWeigh(t, m, weight("seat-s-1", 60, 2*time.Minute))
	mustWeigh(t, m, weight("seat-s-1", 0, 4*time.Minute)) // student stood up
	mustWeigh(t, m, weight("seat-s-1", 60, 3*time.Minute)) // older, delivered late
	mustTap(t, m, tap("s-1", 5*time.Minute))

	if st := stateOf(t, m, "s-1"); st.Kind != model.StateTapPending {
		t.Fatalf("state = %s, want tap_pending", st.Kind)
	}
}

func TestMachine_Dedup(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")

	if n := len(mustTap(t, m, tap("s-1", time.Minute))); n != 1 {
		t.Fatalf("first tap: %d changes", n)
	}
	if n := len(mustTap(t, m, tap("s-1", time.Minute))); n != 0 {
		t.Fatalf("redelivered tap: %d changes", n)
	}
	if n := len(mustWeigh(t, m, weight("seat-s-1", 30, 2*time.Minute))); n != 1 {
		t.Fatalf("first weight: %d changes", n)
	}
	if n := len(mustWeigh(t, m, weight("seat-s-1", 30, 2*time.Minute))); n != 0 {
		t.Fatalf("redelivered weight: %d changes", n)
	}
	// A second, distinct tap after confirmation changes nothing either.
	if n := len(mustTap(t, m, tap("s-1", 9*time.Minute))); n != 0 {
		t.Fatalf("later tap: %d changes", n)
	}
}

func TestMachine_ClassifiesByEventTime(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")

	// Nothing happens for a while; then an early tap is delivered late.
	m.Tick(at(12 * time.Minute))
	mustTap(t, m, tap("s-1", 2*time.Minute))
	mustWeigh(t, m, weight("seat-s-1", 40, 11*time.Minute))

	if st := stateOf(t, m, "s-1"); st.Classification != model.ClassPresent {
		t.Fatalf("classification = %s, want present", st.Classification)
	}
}

func TestMachine_TapOnlyAbsent(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")
	mustTap(t, m, tap("s-1", 5*time.Minute))

	if changes := m.Tick(at(15*time.Minute - time.Millisecond)); len(changes) != 0 {
		t.Fatalf("timed out early: %+v", changes)
	}
	changes := m.Tick(at(15 * time.Minute))
	if len(changes) != 1 {
		t.Fatalf("expected timeout at exactly the absent timeout, got %d changes", len(changes))
	}
	st := stateOf(t, m, "s-1")
	if st.Kind != model.StateAbsent || st.Reason != model.ReasonTimeout {
		t.Fatalf("state = %+v, want absent/timeout", st)
	}
	if st.Status() != model.StatusAbsent {
		t.Errorf("status = %s", st.Status())
	}

	// Terminal: a late weight does not revive it.
	mustWeigh(t, m, weight("seat-s-1", 50, 16*time.Minute))
	if st := stateOf(t, m, "s-1"); st.Kind != model.StateAbsent {
		t.Fatalf("absent student changed to %s", st.Kind)
	}
}

func TestMachine_TapOnlyLate(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyLate, "s-1")
	mustTap(t, m, tap("s-1", 5*time.Minute))

	if changes := m.Tick(at(15*time.Minute - time.Millisecond)); len(changes) != 0 {
		t.Fatalf("timed out early: %+v", changes)
	}
	m.Tick(at(15 * time.Minute))

	st := stateOf(t, m, "s-1")
	if st.Kind != model.StateConfirmed || st.Classification != model.ClassLate {
		t.Fatalf("state = %+v, want confirmed late", st)
	}
	if st.Weight != nil || st.WeightVerified() {
		t.Errorf("weight should be unverified, got %v", st.Weight)
	}
	if !st.Tapped() || st.Status() != model.StatusLate {
		t.Errorf("tapped=%v status=%s", st.Tapped(), st.Status())
	}
}

func TestMachine_NoTapAfterEnd(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-c")

	if changes := m.Tick(at(time.Hour)); len(changes) != 0 {
		t.Fatalf("marked absent at the end instant: %+v", changes)
	}
	m.Tick(at(time.Hour + time.Second))
	st := stateOf(t, m, "s-c")
	if st.Kind != model.StateAbsent || st.Reason != model.ReasonNoTap {
		t.Fatalf("state = %+v, want absent/no_tap", st)
	}
	if changes := m.Tick(at(2 * time.Hour)); len(changes) != 0 {
		t.Fatalf("absent student re-transitioned: %+v", changes)
	}
}

func TestMachine_Override(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")
	mustTap(t, m, tap("s-1", time.Minute))

	change, changed, err := m.Override("s-1", model.ClassAbsent, at(2*time.Minute), "prof-lee")
	if err != nil || !changed {
		t.Fatalf("Override: changed=%v err=%v", changed, err)
	}
	if change.From.Kind != model.StateTapPending || change.To.Kind != model.StateManualOverride {
		t.Fatalf("unexpected change %+v", change)
	}

	// Idempotent: same classification again keeps the original stamp.
	if _, changed, err := m.Override("s-1", model.ClassAbsent, at(5*time.Minute), "prof-lee"); err != nil || changed {
		t.Fatalf("repeat override: changed=%v err=%v", changed, err)
	}
	st := stateOf(t, m, "s-1")
	if !st.SetAt.Equal(at(2*time.Minute)) || st.SetBy != "prof-lee" {
		t.Fatalf("override stamp changed: %+v", st)
	}

	// Sticky against every automatic transition.
	mustWeigh(t, m, weight("seat-s-1", 80, 3*time.Minute))
	mustTap(t, m, tap("s-1", 4*time.Minute))
	m.Tick(at(3 * time.Hour))
	if st := stateOf(t, m, "s-1"); st.Kind != model.StateManualOverride || st.Classification != model.ClassAbsent {
		t.Fatalf("override lost: %+v", st)
	}

	// A different classification replaces it.
	if _, changed, _ := m.Override("s-1", model.ClassLate, at(6*time.Minute), "prof-lee"); !changed {
		t.Fatal("changing the override should report a change")
	}
	if st := stateOf(t, m, "s-1"); st.Status() != model.StatusLate {
		t.Fatalf("status = %s, want late", st.Status())
	}
}

func TestMachine_OverrideErrors(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")
	if _, _, err := m.Override("nobody", model.ClassPresent, at(0), "x"); !errors.Is(err, model.ErrUnknownStudent) {
		t.Errorf("expected ErrUnknownStudent, got %v", err)
	}
	if _, _, err := m.Override("s-1", "excused", at(0), "x"); !errors.Is(err, model.ErrInvalidClassification) {
		t.Errorf("expected ErrInvalidClassification, got %v", err)
	}
}

func TestMachine_UnknownAndUnbound(t *testing.T) {
	m, reg := newTestMachine(t, model.TapOnlyAbsent, "s-1")

	if _, err := m.ApplyTap(tap("stranger", time.Minute)); !errors.Is(err, model.ErrUnknownStudent) {
		t.Errorf("expected ErrUnknownStudent, got %v", err)
	}
	if _, err := m.ApplyWeight(weight("seat-99", 50, time.Minute)); !errors.Is(err, model.ErrInvalidBinding) {
		t.Errorf("expected ErrInvalidBinding, got %v", err)
	}
	reg.Bind("seat-guest", "guest", "")
	if _, err := m.ApplyWeight(weight("seat-guest", 50, time.Minute)); !errors.Is(err, model.ErrUnknownStudent) {
		t.Errorf("expected ErrUnknownStudent for off-roster binding, got %v", err)
	}
}

func TestMachine_BindingResolvedAtApplyTime(t *testing.T) {
	m, reg := newTestMachine(t, model.TapOnlyAbsent, "s-1", "s-2")
	mustTap(t, m, tap("s-1", time.Minute))
	mustTap(t, m, tap("s-2", time.Minute))

	// s-2 moves to the seat s-1 was bound to.
	reg.Bind("seat-s-1", "s-2", "")
	mustWeigh(t, m, weight("seat-s-1", 55, 2*time.Minute))

	if st := stateOf(t, m, "s-2"); st.Kind != model.StateConfirmed {
		t.Errorf("s-2 = %s, want confirmed", st.Kind)
	}
	if st := stateOf(t, m, "s-1"); st.Kind != model.StateTapPending {
		t.Errorf("s-1 = %s, want tap_pending", st.Kind)
	}
}

func TestMachine_Reset(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1", "s-2")
	mustTap(t, m, tap("s-1", time.Minute))
	mustWeigh(t, m, weight("seat-s-1", 30, 2*time.Minute))
	m.Override("s-2", model.ClassLate, at(3*time.Minute), "prof")

	changes, carried := m.Reset(at(4*time.Minute), nil)
	if len(changes) != 2 || len(carried) != 0 {
		t.Fatalf("expected 2 reset changes and none carried, got %d and %v", len(changes), carried)
	}
	for _, s := range m.Snapshot() {
		if s.State.Kind != model.StateUnmarked {
			t.Fatalf("%s = %s after reset", s.StudentID, s.State.Kind)
		}
	}

	// A redelivered tap from the previous cycle is still a duplicate.
	if n := len(mustTap(t, m, tap("s-1", time.Minute))); n != 0 {
		t.Fatalf("redelivered tap after reset produced %d changes", n)
	}
	// A new tap starts the next cycle.
	if n := len(mustTap(t, m, tap("s-1", 30*time.Minute))); n != 1 {
		t.Fatalf("new tap after reset produced %d changes", n)
	}
}

func TestMachine_ResetKeepsStatesChangedSinceSnapshot(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1", "s-2", "s-3")
	mustTap(t, m, tap("s-1", time.Minute))
	mustWeigh(t, m, weight("seat-s-1", 30, 2*time.Minute))
	mustTap(t, m, tap("s-2", time.Minute))
	submitted := m.Snapshot()

	// s-2 confirms and s-3 taps after the snapshot.
	mustWeigh(t, m, weight("seat-s-2", 30, 3*time.Minute))
	mustTap(t, m, tap("s-3", 4*time.Minute))

	changes, carried := m.Reset(at(5*time.Minute), submitted)
	if len(changes) != 1 || changes[0].StudentID != "s-1" {
		t.Fatalf("reset changes = %+v, want only s-1", changes)
	}
	if len(carried) != 2 || carried[0] != "s-2" || carried[1] != "s-3" {
		t.Fatalf("carried = %v, want [s-2 s-3]", carried)
	}
	for id, want := range map[string]model.StateKind{
		"s-1": model.StateUnmarked,
		"s-2": model.StateConfirmed,
		"s-3": model.StateTapPending,
	} {
		if got := stateOf(t, m, id).Kind; got != want {
			t.Errorf("%s = %s, want %s", id, got, want)
		}
	}
}

func TestMachine_ScenarioPresentAndLate(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "A", "B")

	mustTap(t, m, tap("A", 2*time.Minute))
	mustWeigh(t, m, weight("seat-A", 25, 3*time.Minute))
	mustTap(t, m, tap("B", 20*time.Minute))
	mustWeigh(t, m, weight("seat-B", 25, 21*time.Minute))

	if got := stateOf(t, m, "A").Label(); got != "Present" {
		t.Errorf("A = %s, want Present", got)
	}
	if got := stateOf(t, m, "B").Label(); got != "Late" {
		t.Errorf("B = %s, want Late", got)
	}
}

func TestMachine_ChangesCarrySession(t *testing.T) {
	m, _ := newTestMachine(t, model.TapOnlyAbsent, "s-1")
	changes := mustTap(t, m, tap("s-1", time.Minute))
	if changes[0].SessionID != m.Session().ID || changes[0].StudentID != "s-1" || !changes[0].At.Equal(at(time.Minute)) {
		t.Fatalf("unexpected change %+v", changes[0])
	}
}
