// Package commit turns the live attendance of the active session into
// durable records.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/idgen"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/stats"
	"github.com/alfredjeanlab/seatcheck/internal/store"
)

// Engine is the part of the reconciliation engine a commit reads and resets.
// Reset only clears students whose state still matches the submitted
// snapshot and reports the others as carried.
type Engine interface {
	Snapshot() (*model.Session, []model.StudentIdentity, []model.StudentState, error)
	Reset(sessionID string, submitted []model.StudentState) (carried []string, err error)
}

// DuplicateSubmissionError reports that records already exist for the same
// session, date and submitter. Resubmitting with Overwrite replaces them.
type DuplicateSubmissionError struct {
	SessionID   string
	Date        string
	SubmittedBy string
	Existing    int
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("attendance already submitted for session %s on %s by %s (%d records)",
		e.SessionID, e.Date, e.SubmittedBy, e.Existing)
}

func (e *DuplicateSubmissionError) Is(target error) bool {
	return target == model.ErrDuplicateSubmission
}

// WriteFailureError reports that the record batch was rolled back. Live
// state is left untouched so the submit can be retried.
type WriteFailureError struct {
	SessionID string
	Err       error
}

func (e *WriteFailureError) Error() string {
	return fmt.Sprintf("write attendance for session %s: %v", e.SessionID, e.Err)
}

func (e *WriteFailureError) Unwrap() error { return e.Err }

func (e *WriteFailureError) Is(target error) bool {
	return target == model.ErrWriteFailure
}

// SubmitRequest is one instructor submit.
type SubmitRequest struct {
	SubmittedBy string `json:"submitted_by" validate:"required"`
	Overwrite   bool   `json:"overwrite"`
}

// Result describes a successful commit.
type Result struct {
	SessionID string                    `json:"session_id"`
	Date      string                    `json:"date"`
	Records   []*model.AttendanceRecord `json:"records"`
	Replaced  int                       `json:"replaced"`
	Stats     stats.Summary             `json:"stats"`

	// Carried lists students whose live state changed while the submit was
	// in flight. Their records hold the earlier state; the newer one stays
	// live for the next submit.
	Carried []string `json:"carried,omitempty"`
}

// Config wires a Service.
type Config struct {
	Engine    Engine
	Store     store.RecordStore
	Publisher events.Publisher // optional
	NewID     func() (string, error)
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Service commits attendance.
type Service struct {
	cfg Config
}

// NewService creates a Service, filling in defaults.
func NewService(cfg Config) *Service {
	if cfg.NewID == nil {
		cfg.NewID = idgen.RecordID
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = &events.NoopPublisher{}
	}
	return &Service{cfg: cfg}
}

// Submit records every roster member of the active session and then resets
// the recorded students to Unmarked. A student whose state changed after the
// snapshot was taken is not reset and is listed in Result.Carried.
//
// If records already exist for the session, date and submitter, Submit
// returns a *DuplicateSubmissionError unless req.Overwrite is set, in which
// case the old records are deleted in the same transaction that writes the
// new ones. A store failure returns a *WriteFailureError and leaves both the
// store and the live state as they were.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	if req.SubmittedBy == "" {
		return nil, errors.New("submitted_by is required")
	}
	session, roster, states, err := s.cfg.Engine.Snapshot()
	if err != nil {
		return nil, err
	}
	date := session.Date()

	existing, err := s.cfg.Store.QueryExisting(ctx, session.ID, req.SubmittedBy, date)
	if err != nil {
		return nil, &WriteFailureError{SessionID: session.ID, Err: fmt.Errorf("query existing records: %w", err)}
	}
	if len(existing) > 0 && !req.Overwrite {
		return nil, &DuplicateSubmissionError{
			SessionID:   session.ID,
			Date:        date,
			SubmittedBy: req.SubmittedBy,
			Existing:    len(existing),
		}
	}

	records, err := s.buildRecords(session, roster, states, req.SubmittedBy)
	if err != nil {
		return nil, &WriteFailureError{SessionID: session.ID, Err: err}
	}

	var replaced int
	err = s.cfg.Store.RunInTransaction(ctx, func(tx store.RecordStore) error {
		// Checked again under the transaction; a concurrent submit may have
		// landed since the first look.
		prior, err := tx.QueryExisting(ctx, session.ID, req.SubmittedBy, date)
		if err != nil {
			return fmt.Errorf("query existing records: %w", err)
		}
		if len(prior) > 0 && !req.Overwrite {
			return &DuplicateSubmissionError{SessionID: session.ID, Date: date, SubmittedBy: req.SubmittedBy, Existing: len(prior)}
		}
		ids := make([]string, len(prior))
		for i, r := range prior {
			ids[i] = r.ID
		}
		if err := tx.DeleteRecords(ctx, ids); err != nil {
			return fmt.Errorf("delete prior records: %w", err)
		}
		if err := tx.WriteRecords(ctx, records); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		replaced = len(prior)
		return nil
	})
	if err != nil {
		var dup *DuplicateSubmissionError
		if errors.As(err, &dup) {
			return nil, dup
		}
		s.cfg.Logger.Error("commit: write failed, live state kept", "session_id", session.ID, "err", err)
		return nil, &WriteFailureError{SessionID: session.ID, Err: err}
	}

	carried, err := s.cfg.Engine.Reset(session.ID, states)
	if err != nil {
		// The records are durable; the session moved on before the reset.
		s.cfg.Logger.Warn("commit: reset after submit", "session_id", session.ID, "err", err)
	}
	if len(carried) > 0 {
		s.cfg.Logger.Warn("commit: states changed during submit, kept live",
			"session_id", session.ID, "students", carried)
	}

	if err := s.cfg.Publisher.Publish(ctx, events.TopicAttendanceSubmitted, events.AttendanceSubmitted{
		SessionID:   session.ID,
		Date:        date,
		SubmittedBy: req.SubmittedBy,
		Records:     len(records),
		Overwrite:   replaced > 0,
	}); err != nil {
		s.cfg.Logger.Warn("commit: publish submitted event", "err", err)
	}

	s.cfg.Logger.Info("commit: attendance submitted",
		"session_id", session.ID, "date", date, "submitted_by", req.SubmittedBy,
		"records", len(records), "replaced", replaced)

	return &Result{
		SessionID: session.ID,
		Date:      date,
		Records:   records,
		Replaced:  replaced,
		Stats:     stats.Aggregate(states),
		Carried:   carried,
	}, nil
}

func (s *Service) buildRecords(session *model.Session, roster []model.StudentIdentity, states []model.StudentState, submittedBy string) ([]*model.AttendanceRecord, error) {
	byStudent := make(map[string]model.AttendanceState, len(states))
	for _, st := range states {
		byStudent[st.StudentID] = st.State
	}

	now := s.cfg.Clock()
	records := make([]*model.AttendanceRecord, 0, len(roster))
	for _, student := range roster {
		id, err := s.cfg.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate record id: %w", err)
		}
		state, ok := byStudent[student.StudentID]
		if !ok {
			state = model.Unmarked()
		}
		records = append(records, &model.AttendanceRecord{
			ID:                id,
			StudentID:         student.StudentID,
			SessionID:         session.ID,
			Date:              session.Date(),
			SubjectCode:       session.SubjectCode,
			Section:           session.Section,
			Room:              session.Room,
			Status:            state.Status(),
			ConfirmedByRFID:   state.Tapped(),
			ConfirmedByWeight: state.WeightVerified(),
			Timestamp:         now,
			SubmittedBy:       submittedBy,
		})
	}
	return records, nil
}
