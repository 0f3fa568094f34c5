// Package bindings maps seat-weight sensors to the students sitting at them.
//
// A sensor reading carries no identity, so the engine resolves the student
// through this registry at the moment the reading is applied. Bindings can be
// reassigned mid-session; readings already applied are not re-attributed.
package bindings

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// Binding is one sensor-to-student assignment.
type Binding struct {
	SensorID  string    `json:"sensor_id"`
	StudentID string    `json:"student_id"`
	SessionID string    `json:"session_id,omitempty"` // set when session scoped
	BoundAt   time.Time `json:"bound_at"`
}

// SessionScoped reports whether the binding is released when its session
// is committed.
func (b Binding) SessionScoped() bool {
	return b.SessionID != ""
}

// Registry is a goroutine-safe sensor binding table. A sensor maps to at most
// one student and a student to at most one sensor; binding either side
// replaces any previous assignment.
//
// A persistent binding displaced by a session-scoped one is shadowed, not
// lost: it is put back when that session's bindings are cleared.
type Registry struct {
	mu        sync.RWMutex
	bySensor  map[string]Binding
	byStudent map[string]string // student -> sensor
	shadowed  map[string]shadow // sensor -> displaced persistent binding
	now       func() time.Time
}

type shadow struct {
	binding Binding
	by      string // session whose binding displaced it
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		bySensor:  make(map[string]Binding),
		byStudent: make(map[string]string),
		shadowed:  make(map[string]shadow),
		now:       time.Now,
	}
}

// Bind assigns sensorID to studentID. A non-empty sessionID makes the binding
// session scoped.
func (r *Registry) Bind(sensorID, studentID, sessionID string) (Binding, error) {
	sensorID = strings.TrimSpace(sensorID)
	studentID = strings.TrimSpace(studentID)
	if sensorID == "" || studentID == "" {
		return Binding{}, fmt.Errorf("%w: sensor and student ids are required", model.ErrInvalidBinding)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced []Binding
	if prev, ok := r.bySensor[sensorID]; ok {
		delete(r.byStudent, prev.StudentID)
		displaced = append(displaced, prev)
	}
	if prevSensor, ok := r.byStudent[studentID]; ok {
		displaced = append(displaced, r.bySensor[prevSensor])
		delete(r.bySensor, prevSensor)
	}

	if sessionID == "" {
		// An explicit persistent binding settles the seat for good.
		r.dropShadowsLocked(sensorID, studentID)
	} else {
		for _, p := range displaced {
			if !p.SessionScoped() {
				r.shadowed[p.SensorID] = shadow{binding: p, by: sessionID}
			}
		}
	}

	b := Binding{SensorID: sensorID, StudentID: studentID, SessionID: sessionID, BoundAt: r.now()}
	r.bySensor[sensorID] = b
	r.byStudent[studentID] = sensorID
	return b, nil
}

func (r *Registry) dropShadowsLocked(sensorID, studentID string) {
	for sensor, sh := range r.shadowed {
		if sensor == sensorID || sh.binding.StudentID == studentID {
			delete(r.shadowed, sensor)
		}
	}
}

// Unbind removes the binding for sensorID. It reports whether one existed.
func (r *Registry) Unbind(sensorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.shadowed, sensorID)
	b, ok := r.bySensor[sensorID]
	if !ok {
		return false
	}
	delete(r.bySensor, sensorID)
	if r.byStudent[b.StudentID] == sensorID {
		delete(r.byStudent, b.StudentID)
	}
	return true
}

// StudentFor resolves the student bound to sensorID. Unbound sensors return
// an error matching model.ErrInvalidBinding.
func (r *Registry) StudentFor(sensorID string) (string, error) {
	r.mu.RLock()
	b, ok := r.bySensor[sensorID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrInvalidBinding, sensorID)
	}
	return b.StudentID, nil
}

// SensorFor returns the sensor bound to studentID, if any.
func (r *Registry) SensorFor(studentID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byStudent[studentID]
	return s, ok
}

// ClearSessionScoped drops every binding scoped to sessionID and returns how
// many were removed. Persistent bindings are kept, and those the session
// displaced are restored when their sensor and student are both free again.
func (r *Registry) ClearSessionScoped(sessionID string) int {
	if sessionID == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for sensor, b := range r.bySensor {
		if b.SessionID != sessionID {
			continue
		}
		delete(r.bySensor, sensor)
		if r.byStudent[b.StudentID] == sensor {
			delete(r.byStudent, b.StudentID)
		}
		n++
	}

	for sensor, sh := range r.shadowed {
		if sh.by != sessionID {
			continue
		}
		delete(r.shadowed, sensor)
		_, sensorTaken := r.bySensor[sensor]
		_, studentTaken := r.byStudent[sh.binding.StudentID]
		if sensorTaken || studentTaken {
			continue
		}
		r.bySensor[sensor] = sh.binding
		r.byStudent[sh.binding.StudentID] = sensor
	}
	return n
}

// List returns every binding sorted by sensor ID.
func (r *Registry) List() []Binding {
	r.mu.RLock()
	out := make([]Binding, 0, len(r.bySensor))
	for _, b := range r.bySensor {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Seed binds every roster member that carries a SensorBinding, scoped to
// sessionID. Existing bindings for those sensors or students are replaced
// until the session's bindings are cleared.
func (r *Registry) Seed(sessionID string, roster []model.StudentIdentity) int {
	n := 0
	for _, s := range roster {
		if s.SensorBinding == "" {
			continue
		}
		if _, err := r.Bind(s.SensorBinding, s.StudentID, sessionID); err == nil {
			n++
		}
	}
	return n
}
