package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/presence"
)

// handleListBindings handles GET /v1/bindings.
func (s *Server) handleListBindings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bindings": s.cfg.Bindings.List()})
}

type bindInput struct {
	StudentID     string `json:"student_id" validate:"required"`
	SessionScoped bool   `json:"session_scoped"`
}

// handleBind handles PUT /v1/bindings/{sensor}. Persistent bindings are
// saved to the binding store before they take effect.
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var in bindInput
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	sensorID := strings.TrimSpace(r.PathValue("sensor"))

	var sessionID string
	if in.SessionScoped {
		session, _, _, err := s.cfg.Engine.Snapshot()
		if err != nil {
			writeErr(w, err)
			return
		}
		sessionID = session.ID
	} else if s.cfg.BindingStore != nil {
		err := s.cfg.BindingStore.SaveBinding(r.Context(), bindings.Binding{SensorID: sensorID, StudentID: in.StudentID})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save binding")
			return
		}
	}

	b, err := s.cfg.Bindings.Bind(sensorID, in.StudentID, sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.emit(r.Context(), events.TopicBindingChanged, events.BindingChanged{SensorID: b.SensorID, StudentID: b.StudentID})
	writeJSON(w, http.StatusOK, b)
}

// handleUnbind handles DELETE /v1/bindings/{sensor}.
func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	sensorID := r.PathValue("sensor")
	if s.cfg.BindingStore != nil {
		if err := s.cfg.BindingStore.DeleteBinding(r.Context(), sensorID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to delete binding")
			return
		}
	}
	if !s.cfg.Bindings.Unbind(sensorID) {
		writeError(w, http.StatusNotFound, "sensor "+sensorID+" is not bound")
		return
	}
	s.emit(r.Context(), events.TopicBindingChanged, events.BindingChanged{SensorID: sensorID})
	w.WriteHeader(http.StatusNoContent)
}

type tapInput struct {
	StudentID string    `json:"student_id" validate:"required"`
	ReaderID  string    `json:"reader_id"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room"`
}

type weightInput struct {
	SensorID  string    `json:"sensor_id" validate:"required"`
	Weight    float64   `json:"weight" validate:"gte=0"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room"`
}

// handleIngestTap handles POST /v1/events/tap. The tap is published on the
// bus like one from a reader, so it reaches the engine through the same
// subscription. Room defaults to the active session's room and timestamp to
// now.
func (s *Server) handleIngestTap(w http.ResponseWriter, r *http.Request) {
	var in tapInput
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	room, err := s.ingestRoom(in.Room)
	if err != nil {
		writeErr(w, err)
		return
	}
	ev := model.TapEvent{StudentID: in.StudentID, ReaderID: in.ReaderID, Timestamp: s.stamp(in.Timestamp)}
	s.publishDeviceEvent(w, r, events.TapTopic(room), ev)
}

// handleIngestWeight handles POST /v1/events/weight.
func (s *Server) handleIngestWeight(w http.ResponseWriter, r *http.Request) {
	var in weightInput
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	room, err := s.ingestRoom(in.Room)
	if err != nil {
		writeErr(w, err)
		return
	}
	ev := model.WeightEvent{SensorID: in.SensorID, Weight: in.Weight, Timestamp: s.stamp(in.Timestamp)}
	s.publishDeviceEvent(w, r, events.WeightTopic(room), ev)
}

func (s *Server) publishDeviceEvent(w http.ResponseWriter, r *http.Request, topic string, ev any) {
	if err := s.cfg.Publisher.Publish(r.Context(), topic, ev); err != nil {
		writeError(w, http.StatusServiceUnavailable, "publish: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"topic": topic, "event": ev})
}

func (s *Server) ingestRoom(room string) (string, error) {
	if room = strings.TrimSpace(room); room != "" {
		return room, nil
	}
	session, _, _, err := s.cfg.Engine.Snapshot()
	if err != nil {
		if errors.Is(err, model.ErrNoActiveSession) {
			return "", inputError("room is required when no session is active")
		}
		return "", err
	}
	return session.Room, nil
}

func (s *Server) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

// handleListDevices handles GET /v1/devices. ?silent=true lists only
// devices the reaper has flagged.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := []presence.Entry{}
	if s.cfg.Presence != nil {
		onlySilent := r.URL.Query().Get("silent") == "true"
		for _, d := range s.cfg.Presence.Devices() {
			if onlySilent && !d.Silent {
				continue
			}
			devices = append(devices, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func parseLimit(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, inputError("limit must be a non-negative integer")
	}
	return n, nil
}
