// Package reconcile folds card taps, seat readings, elapsed time and manual
// overrides into one attendance state per student for the active session.
package reconcile

import (
	"fmt"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// Bindings resolves seat sensors to students at apply time.
type Bindings interface {
	StudentFor(sensorID string) (string, error)
	SensorFor(studentID string) (string, bool)
}

type member struct {
	identity model.StudentIdentity
	state    model.AttendanceState
}

// Machine is the attendance state machine for one session. It is a pure fold
// over events and clock ticks and is not safe for concurrent use; Engine
// serializes access to it.
type Machine struct {
	session  *model.Session
	cfg      model.GraceConfig
	bindings Bindings

	order    []string
	members  map[string]*member
	seen     map[string]struct{}
	readings map[string]model.WeightEvent // latest reading per sensor
}

// NewMachine creates a machine with every roster member Unmarked.
func NewMachine(session *model.Session, roster []model.StudentIdentity, cfg model.GraceConfig, b Bindings) *Machine {
	m := &Machine{
		session:  session,
		cfg:      cfg,
		bindings: b,
		order:    make([]string, 0, len(roster)),
		members:  make(map[string]*member, len(roster)),
		seen:     make(map[string]struct{}),
		readings: make(map[string]model.WeightEvent),
	}
	for _, s := range roster {
		if _, dup := m.members[s.StudentID]; dup {
			continue
		}
		m.order = append(m.order, s.StudentID)
		m.members[s.StudentID] = &member{identity: s, state: model.Unmarked()}
	}
	return m
}

// Session returns the session the machine tracks.
func (m *Machine) Session() *model.Session { return m.session }

// ApplyTap folds a card tap. Redeliveries are ignored, as are taps for
// students already past Unmarked. If the student's bound seat already reports
// an occupied reading, the tap confirms immediately.
func (m *Machine) ApplyTap(ev model.TapEvent) ([]model.StateChange, error) {
	mem, ok := m.members[ev.StudentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownStudent, ev.StudentID)
	}
	if !m.markSeen(ev.DedupKey()) {
		return nil, nil
	}
	if mem.state.Kind != model.StateUnmarked {
		return nil, nil
	}

	changes := []model.StateChange{m.set(mem, model.TapPending(ev.Timestamp), ev.Timestamp)}

	if sensor, bound := m.bindings.SensorFor(ev.StudentID); bound {
		if r, ok := m.readings[sensor]; ok && r.Weight >= m.cfg.PresenceThreshold {
			w := r.Weight
			changes = append(changes, m.set(mem, model.Confirmed(m.classify(ev.Timestamp), ev.Timestamp, &w, ev.Timestamp), ev.Timestamp))
		}
	}
	return changes, nil
}

// ApplyWeight folds a seat reading. The reading is attributed through the
// sensor binding as it stands now. A reading for a student who has not
// tapped only updates the sensor's buffered value.
func (m *Machine) ApplyWeight(ev model.WeightEvent) ([]model.StateChange, error) {
	if !m.markSeen(ev.DedupKey()) {
		return nil, nil
	}
	if prev, ok := m.readings[ev.SensorID]; !ok || !ev.Timestamp.Before(prev.Timestamp) {
		m.readings[ev.SensorID] = ev
	}

	studentID, err := m.bindings.StudentFor(ev.SensorID)
	if err != nil {
		return nil, err
	}
	mem, ok := m.members[studentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s bound to %s", model.ErrUnknownStudent, studentID, ev.SensorID)
	}
	if mem.state.Kind != model.StateTapPending || ev.Weight < m.cfg.PresenceThreshold {
		return nil, nil
	}

	tapAt := mem.state.TapTimestamp
	w := ev.Weight
	return []model.StateChange{
		m.set(mem, model.Confirmed(m.classify(tapAt), tapAt, &w, ev.Timestamp), ev.Timestamp),
	}, nil
}

// Tick applies the time-driven transitions: unconfirmed taps time out and
// students who never tapped become absent once the session has ended.
func (m *Machine) Tick(now time.Time) []model.StateChange {
	var changes []model.StateChange
	for _, id := range m.order {
		mem := m.members[id]
		switch mem.state.Kind {
		case model.StateTapPending:
			tapAt := mem.state.TapTimestamp
			if now.Sub(tapAt) < m.cfg.AbsentTimeout {
				continue
			}
			next := model.Absent(model.ReasonTimeout, now)
			if m.cfg.TapOnlyPolicy == model.TapOnlyLate {
				next = model.Confirmed(model.ClassLate, tapAt, nil, now)
			}
			changes = append(changes, m.set(mem, next, now))
		case model.StateUnmarked:
			if now.After(m.session.End) {
				changes = append(changes, m.set(mem, model.Absent(model.ReasonNoTap, now), now))
			}
		}
	}
	return changes
}

// Override forces a classification for one student. It wins over every
// automatic transition until Reset. Repeating the current override is a
// no-op and reports changed=false.
func (m *Machine) Override(studentID string, c model.Classification, now time.Time, actor string) (model.StateChange, bool, error) {
	if !c.IsValid() {
		return model.StateChange{}, false, fmt.Errorf("%w: %q", model.ErrInvalidClassification, c)
	}
	mem, ok := m.members[studentID]
	if !ok {
		return model.StateChange{}, false, fmt.Errorf("%w: %s", model.ErrUnknownStudent, studentID)
	}
	if mem.state.Kind == model.StateManualOverride && mem.state.Classification == c {
		return model.StateChange{}, false, nil
	}
	return m.set(mem, model.ManualOverride(c, now, actor), now), true, nil
}

// Reset starts a new attendance cycle by returning members to Unmarked.
//
// With a non-nil submitted snapshot only members whose state still equals
// their submitted state are reset; the rest changed after the snapshot was
// taken and keep their state. Their IDs are returned as carried. A nil
// snapshot resets every member.
//
// Buffered readings are dropped. Seen events are kept for the life of the
// session so a redelivered tap cannot restart a student who was reset.
func (m *Machine) Reset(now time.Time, submitted []model.StudentState) (changes []model.StateChange, carried []string) {
	var want map[string]model.AttendanceState
	if submitted != nil {
		want = make(map[string]model.AttendanceState, len(submitted))
		for _, st := range submitted {
			want[st.StudentID] = st.State
		}
	}
	for _, id := range m.order {
		mem := m.members[id]
		if want != nil {
			if prev, ok := want[id]; !ok || prev != mem.state {
				if mem.state.Kind != model.StateUnmarked {
					carried = append(carried, id)
				}
				continue
			}
		}
		if mem.state.Kind == model.StateUnmarked {
			continue
		}
		changes = append(changes, m.set(mem, model.Unmarked(), now))
	}
	clear(m.readings)
	return changes, carried
}

// Snapshot returns every member's state in roster order.
func (m *Machine) Snapshot() []model.StudentState {
	out := make([]model.StudentState, 0, len(m.order))
	for _, id := range m.order {
		mem := m.members[id]
		out = append(out, model.StudentState{
			StudentID:   id,
			DisplayName: mem.identity.DisplayName,
			State:       mem.state,
		})
	}
	return out
}

// Roster returns the identities the machine was built with, in order.
func (m *Machine) Roster() []model.StudentIdentity {
	out := make([]model.StudentIdentity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.members[id].identity)
	}
	return out
}

// Student returns one member's current state.
func (m *Machine) Student(studentID string) (model.StudentState, bool) {
	mem, ok := m.members[studentID]
	if !ok {
		return model.StudentState{}, false
	}
	return model.StudentState{StudentID: studentID, DisplayName: mem.identity.DisplayName, State: mem.state}, true
}

// classify applies the grace window to a tap time. The boundary is
// inclusive, and early taps count as on time.
func (m *Machine) classify(tapAt time.Time) model.Classification {
	if tapAt.Sub(m.session.Start) <= m.cfg.GraceWindow {
		return model.ClassPresent
	}
	return model.ClassLate
}

func (m *Machine) markSeen(key string) bool {
	if _, dup := m.seen[key]; dup {
		return false
	}
	m.seen[key] = struct{}{}
	return true
}

func (m *Machine) set(mem *member, next model.AttendanceState, at time.Time) model.StateChange {
	ch := model.StateChange{
		SessionID: m.session.ID,
		StudentID: mem.identity.StudentID,
		From:      mem.state,
		To:        next,
		At:        at,
	}
	mem.state = next
	return ch
}
