// Package schedule resolves which class an instructor is teaching right now.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// Source provides an instructor's weekly timetable.
type Source interface {
	// GetSchedules returns every entry for the instructor. Transport
	// failures wrap model.ErrScheduleUnavailable.
	GetSchedules(ctx context.Context, instructorID string) ([]model.ScheduleEntry, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Resolve returns the session whose window contains now, if any. Only
// entries for now's weekday are considered; the window is inclusive at both
// ends. When windows overlap the earliest start wins, and equal starts keep
// schedule order. Entries with malformed times are skipped.
func Resolve(entries []model.ScheduleEntry, now time.Time) (*model.Session, bool) {
	var (
		best      *model.ScheduleEntry
		bestStart time.Time
		bestEnd   time.Time
	)
	for i := range entries {
		e := &entries[i]
		if time.Weekday(e.Day) != now.Weekday() {
			continue
		}
		start, end, err := e.Window(now)
		if err != nil {
			continue
		}
		if now.Before(start) || now.After(end) {
			continue
		}
		if best == nil || start.Before(bestStart) {
			best, bestStart, bestEnd = e, start, end
		}
	}
	if best == nil {
		return nil, false
	}
	key := model.NewSessionKey(now, best.SubjectCode, best.Section, best.Room)
	return model.NewSession(key, best.Day, bestStart, bestEnd), true
}

// ValidateEntries reports every structurally invalid entry. Resolve
// tolerates bad entries; this is for loaders that want to fail loudly.
func ValidateEntries(entries []model.ScheduleEntry) error {
	var errs []error
	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s %s): %w", i, e.SubjectCode, e.Section, err))
			continue
		}
		if _, _, err := e.Window(time.Now()); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s %s): %w", i, e.SubjectCode, e.Section, err))
		}
	}
	return errors.Join(errs...)
}

// Current fetches the instructor's schedule and resolves it against now.
func Current(ctx context.Context, src Source, instructorID string, now time.Time) (*model.Session, bool, error) {
	entries, err := src.GetSchedules(ctx, instructorID)
	if err != nil {
		return nil, false, err
	}
	s, ok := Resolve(entries, now)
	return s, ok, nil
}
