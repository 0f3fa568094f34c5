package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionKey_IDDeterministic(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := NewSessionKey(day, "CS101", "A", "R-204")
	b := NewSessionKey(day.Add(3*time.Hour), " CS101 ", "A", "R-204")

	if a != b {
		t.Fatalf("keys differ: %v vs %v", a, b)
	}
	if a.ID() != b.ID() {
		t.Fatalf("IDs differ for equal keys: %s vs %s", a.ID(), b.ID())
	}

	other := NewSessionKey(day, "CS101", "B", "R-204")
	if a.ID() == other.ID() {
		t.Fatalf("different sections produced the same ID %s", a.ID())
	}
}

func TestSessionKey_IDNoConcatenationCollision(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a := NewSessionKey(day, "CS10", "1A", "R1")
	b := NewSessionKey(day, "CS101", "A", "R1")
	if a.ID() == b.ID() {
		t.Fatal("expected distinct IDs for shifted field boundaries")
	}
}

func TestWeekday_Text(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Weekday
		wantErr bool
	}{
		{"monday", Weekday(time.Monday), false},
		{"Friday", Weekday(time.Friday), false},
		{" sunday ", Weekday(time.Sunday), false},
		{"someday", 0, true},
	} {
		var d Weekday
		err := d.UnmarshalText([]byte(tc.in))
		if (err != nil) != tc.wantErr {
			t.Errorf("UnmarshalText(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && d != tc.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tc.in, d, tc.want)
		}
	}

	data, err := json.Marshal(struct {
		Day Weekday `json:"day"`
	}{Weekday(time.Wednesday)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"day":"wednesday"}` {
		t.Errorf("got %s", data)
	}
}

func TestScheduleEntry_Window(t *testing.T) {
	on := time.Date(2026, 3, 2, 13, 37, 0, 0, time.UTC)
	e := ScheduleEntry{StartTime: "09:00", EndTime: "10:30"}

	start, end, err := e.Window(on)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}

	for _, bad := range []ScheduleEntry{
		{StartTime: "9am", EndTime: "10:00"},
		{StartTime: "09:00", EndTime: "25:00"},
		{StartTime: "10:00", EndTime: "09:00"},
		{StartTime: "10:00", EndTime: "10:00"},
	} {
		if _, _, err := bad.Window(on); err == nil {
			t.Errorf("Window(%s-%s) expected error", bad.StartTime, bad.EndTime)
		}
	}
}

func TestSession_Contains(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	s := NewSession(NewSessionKey(start, "CS101", "A", "R1"), Weekday(time.Monday), start, end)

	for _, tc := range []struct {
		at   time.Time
		want bool
	}{
		{start, true},
		{end, true},
		{start.Add(-time.Nanosecond), false},
		{end.Add(time.Nanosecond), false},
	} {
		if got := s.Contains(tc.at); got != tc.want {
			t.Errorf("Contains(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
	if s.ID != s.Key.ID() {
		t.Errorf("session ID %s does not match key ID", s.ID)
	}
}

func TestAttendanceState_StatusAndLabel(t *testing.T) {
	now := time.Now()
	w := 25.0
	for _, tc := range []struct {
		name       string
		state      AttendanceState
		wantStatus Status
		wantLabel  string
		terminal   bool
	}{
		{"unmarked", Unmarked(), StatusAbsent, "Unmarked", false},
		{"pending", TapPending(now), StatusAbsent, "Pending", false},
		{"present", Confirmed(ClassPresent, now, &w, now), StatusPresent, "Present", true},
		{"late", Confirmed(ClassLate, now, &w, now), StatusLate, "Late", true},
		{"late unverified", Confirmed(ClassLate, now, nil, now), StatusLate, "Late", true},
		{"absent timeout", Absent(ReasonTimeout, now), StatusAbsent, "Absent", true},
		{"absent no tap", Absent(ReasonNoTap, now), StatusAbsent, "Absent", true},
		{"override present", ManualOverride(ClassPresent, now, "prof"), StatusPresent, "Present", true},
		{"override absent", ManualOverride(ClassAbsent, now, "prof"), StatusAbsent, "Absent", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Status(); got != tc.wantStatus {
				t.Errorf("Status() = %q, want %q", got, tc.wantStatus)
			}
			if got := tc.state.Label(); got != tc.wantLabel {
				t.Errorf("Label() = %q, want %q", got, tc.wantLabel)
			}
			if got := tc.state.IsTerminal(); got != tc.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tc.terminal)
			}
		})
	}
}

func TestAttendanceState_Flags(t *testing.T) {
	now := time.Now()
	w := 30.0
	if Unmarked().Tapped() {
		t.Error("unmarked should not be tapped")
	}
	if !TapPending(now).Tapped() {
		t.Error("pending should be tapped")
	}
	if !Confirmed(ClassPresent, now, &w, now).WeightVerified() {
		t.Error("confirmed with weight should be weight-verified")
	}
	if Confirmed(ClassLate, now, nil, now).WeightVerified() {
		t.Error("confirmed without weight should not be weight-verified")
	}
}

func TestClassification_IsValid(t *testing.T) {
	for _, tc := range []struct {
		c    Classification
		want bool
	}{
		{ClassPresent, true},
		{ClassLate, true},
		{ClassAbsent, true},
		{Classification(""), false},
		{Classification("excused"), false},
	} {
		if got := tc.c.IsValid(); got != tc.want {
			t.Errorf("Classification(%q).IsValid() = %v, want %v", tc.c, got, tc.want)
		}
	}
}

func TestGraceConfig_Validate(t *testing.T) {
	if err := DefaultGraceConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := GraceConfig{GraceWindow: -time.Second, AbsentTimeout: 0, PresenceThreshold: 0, TapOnlyPolicy: "maybe"}
	err := bad.Validate()
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 4 {
		t.Errorf("expected 4 field errors, got %d: %v", len(ve.Errors), ve)
	}
}
