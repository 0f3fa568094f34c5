package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// TopicSnapshot is the first event on a stream opened with ?snapshot=true.
// It carries the same body as GET /v1/states and has no event ID.
const TopicSnapshot = "seatcheck.snapshot"

const (
	replayCapacity = 1000
	subscriberBuf  = 64
	keepaliveEvery = 15 * time.Second
)

type streamEvent struct {
	ID        uint64
	Topic     string
	SessionID string // empty when the payload is not tied to a session
	Data      []byte
}

// replayLog holds the most recent events, oldest first, for Last-Event-ID
// resumption.
type replayLog struct {
	buf  []streamEvent
	next int
	full bool
}

func newReplayLog(capacity int) *replayLog {
	return &replayLog{buf: make([]streamEvent, capacity)}
}

func (l *replayLog) add(e streamEvent) {
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
}

// after returns every held event with an ID greater than id.
func (l *replayLog) after(id uint64) []streamEvent {
	var ordered []streamEvent
	if l.full {
		ordered = append(ordered, l.buf[l.next:]...)
	}
	ordered = append(ordered, l.buf[:l.next]...)

	var out []streamEvent
	for _, e := range ordered {
		if e.ID > id {
			out = append(out, e)
		}
	}
	return out
}

type streamSub struct {
	topics  []string // events.MatchTopic patterns; empty matches all
	session string   // empty matches all sessions
	ch      chan streamEvent
}

func (s *streamSub) wants(e streamEvent) bool {
	if s.session != "" && e.SessionID != "" && e.SessionID != s.session {
		return false
	}
	if len(s.topics) == 0 {
		return true
	}
	for _, p := range s.topics {
		if events.MatchTopic(p, e.Topic) {
			return true
		}
	}
	return false
}

// streamHub fans events out to SSE subscribers. A subscriber that falls
// behind by more than its buffer loses events.
type streamHub struct {
	mu   sync.Mutex
	seq  uint64
	log  *replayLog
	subs map[*streamSub]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{log: newReplayLog(replayCapacity), subs: make(map[*streamSub]struct{})}
}

func (h *streamHub) broadcast(topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	e := streamEvent{ID: h.seq, Topic: topic, SessionID: sessionOf(data), Data: data}
	h.log.add(e)
	for sub := range h.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// attach registers sub. When resumeAfter is non-nil it also returns the
// held events sub would have seen since that ID; registering and reading
// the backlog under one lock means nothing is missed or sent twice.
func (h *streamHub) attach(sub *streamSub, resumeAfter *uint64) []streamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	if resumeAfter == nil {
		return nil
	}
	var backlog []streamEvent
	for _, e := range h.log.after(*resumeAfter) {
		if sub.wants(e) {
			backlog = append(backlog, e)
		}
	}
	return backlog
}

func (h *streamHub) detach(sub *streamSub) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// sessionOf pulls the session ID out of the event payloads that carry one.
func sessionOf(data []byte) string {
	var peek struct {
		SessionID string `json:"session_id"`
		Change    struct {
			SessionID string `json:"session_id"`
		} `json:"change"`
		Session *struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if json.Unmarshal(data, &peek) != nil {
		return ""
	}
	switch {
	case peek.SessionID != "":
		return peek.SessionID
	case peek.Change.SessionID != "":
		return peek.Change.SessionID
	case peek.Session != nil:
		return peek.Session.ID
	}
	return ""
}

// handleEventStream handles GET /v1/events/stream.
//
// Query parameters: topics (comma separated patterns), session (only events
// for that session ID, plus events tied to none) and snapshot=true.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	q := r.URL.Query()
	sub := &streamSub{session: q.Get("session"), ch: make(chan streamEvent, subscriberBuf)}
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			sub.topics = append(sub.topics, t)
		}
	}
	var resumeAfter *uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			resumeAfter = &id
		}
	}

	backlog := s.hub.attach(sub, resumeAfter)
	defer s.hub.detach(sub)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if q.Get("snapshot") == "true" {
		body, err := s.statesBody()
		if err != nil && !errors.Is(err, model.ErrNoActiveSession) {
			s.logger.Warn("server: stream snapshot", "err", err)
		}
		if data, err := json.Marshal(body); err == nil {
			writeStreamEvent(w, streamEvent{Topic: TopicSnapshot, Data: data})
		}
	}
	for _, e := range backlog {
		writeStreamEvent(w, e)
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-sub.ch:
			writeStreamEvent(w, e)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, e streamEvent) {
	if e.ID != 0 {
		fmt.Fprintf(w, "id:%d\n", e.ID)
	}
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", e.Topic, e.Data)
}

// RelayTopics are the bus topics Relay forwards by default: events raised by
// components that publish only to the bus.
var RelayTopics = []string{
	events.TopicSessionChanged,
	events.TopicAttendanceSubmitted,
	events.TopicDeviceSilent,
}

// Relay forwards every payload published on topics to SSE clients until ctx
// is cancelled. Topics must be exact; the payload is passed through as is.
func (s *Server) Relay(ctx context.Context, sub events.Subscriber, topics ...string) error {
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("relay %s: %w", topic, err)
		}
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case data, ok := <-ch:
					if !ok {
						return
					}
					s.hub.broadcast(topic, data)
				}
			}
		}()
	}
	return nil
}
