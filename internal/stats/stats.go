// Package stats summarizes attendance. It is pure: it reads states or
// records and never touches the engine.
package stats

import "github.com/alfredjeanlab/seatcheck/internal/model"

// Summary is an attendance breakdown. Rates are fractions in [0, 1].
type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`

	// Pending counts students still Unmarked or TapPending. They are also
	// counted as Absent, matching how a commit would record them.
	Pending int `json:"pending"`

	AttendanceRate  float64 `json:"attendance_rate"`
	PunctualityRate float64 `json:"punctuality_rate"`
}

// Aggregate summarizes live student states.
func Aggregate(states []model.StudentState) Summary {
	var s Summary
	for _, st := range states {
		s.add(st.State.Status())
		if !st.State.IsTerminal() {
			s.Pending++
		}
	}
	s.finish()
	return s
}

// FromRecords summarizes committed records.
func FromRecords(records []*model.AttendanceRecord) Summary {
	var s Summary
	for _, r := range records {
		s.add(r.Status)
	}
	s.finish()
	return s
}

func (s *Summary) add(status model.Status) {
	s.Total++
	switch status {
	case model.StatusPresent:
		s.Present++
	case model.StatusLate:
		s.Late++
	default:
		s.Absent++
	}
}

func (s *Summary) finish() {
	if s.Total == 0 {
		return
	}
	attended := s.Present + s.Late
	s.AttendanceRate = float64(attended) / float64(s.Total)
	if attended == 0 {
		attended = 1
	}
	s.PunctualityRate = float64(s.Present) / float64(attended)
}
