package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/commit"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/reconcile"
	"github.com/alfredjeanlab/seatcheck/internal/stats"
)

// sessionView is the response for GET /v1/session.
type sessionView struct {
	Session    *model.Session    `json:"session"`
	Students   int               `json:"students"`
	Subscribed bool              `json:"subscribed"`
	Supervisor *reconcile.Status `json:"supervisor,omitempty"`
}

// studentView is one row of GET /v1/states.
type studentView struct {
	StudentID   string                `json:"student_id"`
	DisplayName string                `json:"display_name"`
	Label       string                `json:"label"`
	Status      model.Status          `json:"status"`
	State       model.AttendanceState `json:"state"`
}

func toStudentView(st model.StudentState) studentView {
	return studentView{
		StudentID:   st.StudentID,
		DisplayName: st.DisplayName,
		Label:       st.State.Label(),
		Status:      st.State.Status(),
		State:       st.State,
	}
}

// handleGetSession handles GET /v1/session. It answers 200 with a null
// session when no class is in progress.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	var view sessionView
	session, roster, _, err := s.cfg.Engine.Snapshot()
	if err != nil && !errors.Is(err, model.ErrNoActiveSession) {
		writeErr(w, err)
		return
	}
	view.Session = session
	view.Students = len(roster)
	view.Subscribed = s.cfg.Engine.Subscribed()
	if s.cfg.Supervisor != nil {
		st := s.cfg.Supervisor.Status()
		view.Supervisor = &st
	}
	writeJSON(w, http.StatusOK, view)
}

type statesView struct {
	Session  *model.Session `json:"session"`
	Students []studentView  `json:"students"`
}

// statesBody returns the live states of the active session. With no
// session it returns an empty view and model.ErrNoActiveSession.
func (s *Server) statesBody() (statesView, error) {
	session, _, states, err := s.cfg.Engine.Snapshot()
	if err != nil {
		return statesView{Students: []studentView{}}, err
	}
	students := make([]studentView, len(states))
	for i, st := range states {
		students[i] = toStudentView(st)
	}
	return statesView{Session: session, Students: students}, nil
}

// handleGetStates handles GET /v1/states.
func (s *Server) handleGetStates(w http.ResponseWriter, _ *http.Request) {
	body, err := s.statesBody()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type overrideInput struct {
	Classification model.Classification `json:"classification" validate:"required,oneof=present late absent"`
	Actor          string               `json:"actor" validate:"required"`
}

// handleOverride handles POST /v1/students/{id}/override.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var in overrideInput
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	st, err := s.cfg.Engine.Override(r.PathValue("id"), in.Classification, in.Actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentView(st))
}

// handleSubmit handles POST /v1/submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in commit.SubmitRequest
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.cfg.Commit.Submit(r.Context(), in)
	if err != nil {
		var dup *commit.DuplicateSubmissionError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":    dup.Error(),
				"existing": dup.Existing,
			})
			return
		}
		writeErr(w, err)
		return
	}
	if s.cfg.Sync != nil {
		s.cfg.Sync.Trigger()
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleGetStats handles GET /v1/stats. Without query parameters it
// summarizes the live session; with session_id and/or date it summarizes
// committed records instead.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("session_id") != "" || q.Get("date") != "" {
		records, err := s.cfg.Records.ListRecords(r.Context(), model.RecordFilter{
			SessionID:   q.Get("session_id"),
			Date:        q.Get("date"),
			SubmittedBy: q.Get("submitted_by"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list records")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source": "records",
			"stats":  stats.FromRecords(records),
		})
		return
	}

	session, _, states, err := s.cfg.Engine.Snapshot()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":     "live",
		"session_id": session.ID,
		"stats":      stats.Aggregate(states),
	})
}

// handleListRecords handles GET /v1/records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RecordFilter{
		SessionID:   q.Get("session_id"),
		Date:        q.Get("date"),
		SubmittedBy: q.Get("submitted_by"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := parseLimit(v)
		if err != nil {
			writeErr(w, err)
			return
		}
		filter.Limit = n
	}

	records, err := s.cfg.Records.ListRecords(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []*model.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
