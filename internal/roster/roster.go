// Package roster loads the enrolled students for a resolved session.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// ErrUnavailable means the roster could not be fetched. An empty roster is
// not an error.
var ErrUnavailable = model.ErrRosterUnavailable

// Source returns the enrolled students for a session in enrollment order.
type Source interface {
	GetRoster(ctx context.Context, key model.SessionKey) ([]model.StudentIdentity, error)
}

// Loader wraps a Source with the roster contract: stable order, no silent
// drops, total string fields and a distinct unavailable error.
type Loader struct {
	source Source
	logger *slog.Logger
}

// NewLoader creates a roster loader.
func NewLoader(source Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger}
}

// Load fetches the roster for the session.
func (l *Loader) Load(ctx context.Context, session *model.Session) ([]model.StudentIdentity, error) {
	if session == nil {
		return nil, model.ErrNoActiveSession
	}
	students, err := l.source.GetRoster(ctx, session.Key)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, session.Key, err)
	}

	out := make([]model.StudentIdentity, 0, len(students))
	seen := make(map[string]int, len(students))
	for i, s := range students {
		s.StudentID = strings.TrimSpace(s.StudentID)
		s.DisplayName = strings.TrimSpace(s.DisplayName)
		s.ContactInfo = strings.TrimSpace(s.ContactInfo)
		s.SensorBinding = strings.TrimSpace(s.SensorBinding)
		if s.StudentID == "" {
			return nil, fmt.Errorf("%w: %s: roster entry %d has no student id", ErrUnavailable, session.Key, i)
		}
		if pos, dup := seen[s.StudentID]; dup {
			// One state per student; the first enrollment keeps its position.
			l.logger.Warn("roster: duplicate enrollment collapsed",
				"session", session.Key.String(), "student_id", s.StudentID, "kept_position", pos)
			continue
		}
		seen[s.StudentID] = len(out)
		out = append(out, s)
	}
	return out, nil
}

// StaticSource serves fixed rosters keyed by session key. Missing keys are
// empty classes.
type StaticSource map[model.SessionKey][]model.StudentIdentity

// GetRoster returns a copy of the roster for key.
func (s StaticSource) GetRoster(_ context.Context, key model.SessionKey) ([]model.StudentIdentity, error) {
	return append([]model.StudentIdentity(nil), s[key]...), nil
}
