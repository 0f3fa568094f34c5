// Package presence tracks when tap readers and seat sensors were last heard
// from.
//
// The engine only sees a gap in events when a device goes quiet. The
// Tracker turns that gap into something an operator can see: a background
// reaper flags devices that have been silent longer than a threshold, and
// the server lists them on GET /v1/devices.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Kind identifies the type of device.
type Kind string

const (
	KindReader Kind = "reader"
	KindSensor Kind = "sensor"
)

// Entry is a device's live presence state.
type Entry struct {
	DeviceID   string    `json:"device_id"`
	Kind       Kind      `json:"kind"`
	Room       string    `json:"room,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	IdleSecs   float64   `json:"idle_secs"`
	EventCount int64     `json:"event_count"`
	Silent     bool      `json:"silent,omitempty"`
	SilentAt   time.Time `json:"silent_at,omitzero"`
}

// Sighting is one event observed from a device.
type Sighting struct {
	DeviceID string
	Kind     Kind
	Room     string
	At       time.Time // when the event was observed; zero means now
}

// ReaperConfig configures the background silent-device reaper.
type ReaperConfig struct {
	// SilentAfter is how long a device must be quiet before it is flagged.
	// Default: 2 minutes.
	SilentAfter time.Duration

	// EvictAfter is how long a silent device stays listed before it is
	// forgotten. Default: 24 hours.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 15 seconds.
	SweepInterval time.Duration

	// OnSilent is called for each device newly flagged as silent, outside
	// the lock.
	OnSilent func(Entry)
}

// Tracker maintains an in-memory table of devices.
type Tracker struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
	now     func() time.Time
	logger  *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type deviceState struct {
	kind       Kind
	room       string
	firstSeen  time.Time
	lastSeen   time.Time
	eventCount int64
	silent     bool
	silentAt   time.Time
}

// New creates a tracker. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		devices: make(map[string]*deviceState),
		now:     time.Now,
		logger:  logger,
	}
}

func key(kind Kind, id string) string { return string(kind) + "/" + id }

// Record notes that a device produced an event.
func (t *Tracker) Record(s Sighting) {
	if s.DeviceID == "" {
		return
	}
	at := s.At
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(s.Kind, s.DeviceID)
	state, ok := t.devices[k]
	if !ok {
		state = &deviceState{kind: s.Kind, firstSeen: at}
		t.devices[k] = state
	}
	if state.silent {
		t.logger.Info("presence: device back", "device_id", s.DeviceID, "kind", s.Kind, "silent_for", at.Sub(state.silentAt))
		state.silent = false
		state.silentAt = time.Time{}
	}
	if at.After(state.lastSeen) {
		state.lastSeen = at
	}
	if s.Room != "" {
		state.room = s.Room
	}
	state.eventCount++
}

// Devices returns a snapshot of every tracked device, most recently seen
// first.
func (t *Tracker) Devices() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.devices))
	for k, state := range t.devices {
		entries = append(entries, Entry{
			DeviceID:   k[len(state.kind)+1:],
			Kind:       state.kind,
			Room:       state.room,
			FirstSeen:  state.firstSeen,
			LastSeen:   state.lastSeen,
			IdleSecs:   now.Sub(state.lastSeen).Seconds(),
			EventCount: state.eventCount,
			Silent:     state.silent,
			SilentAt:   state.silentAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].DeviceID < entries[j].DeviceID
	})
	return entries
}

// StartReaper launches a background goroutine that periodically flags
// silent devices. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.SilentAfter == 0 {
		cfg.SilentAfter = 2 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 15 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	t.logger.Info("presence: reaper started",
		"silent_after", cfg.SilentAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()
	var newlySilent []Entry

	t.mu.Lock()
	for k, state := range t.devices {
		if state.silent {
			if now.Sub(state.silentAt) > cfg.EvictAfter {
				delete(t.devices, k)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.SilentAfter {
			state.silent = true
			state.silentAt = now
			newlySilent = append(newlySilent, Entry{
				DeviceID:   k[len(state.kind)+1:],
				Kind:       state.kind,
				Room:       state.room,
				FirstSeen:  state.firstSeen,
				LastSeen:   state.lastSeen,
				IdleSecs:   now.Sub(state.lastSeen).Seconds(),
				EventCount: state.eventCount,
				Silent:     true,
				SilentAt:   now,
			})
		}
	}
	t.mu.Unlock()

	for _, e := range newlySilent {
		t.logger.Warn("presence: device silent",
			"device_id", e.DeviceID,
			"kind", e.Kind,
			"room", e.Room,
			"threshold", cfg.SilentAfter)
		if cfg.OnSilent != nil {
			cfg.OnSilent(e)
		}
	}
}
