package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrBusClosed is returned by LocalBus after Close.
var ErrBusClosed = errors.New("event bus closed")

// LocalBus is an in-process Bus with NATS-style subject matching. It stands
// in for NATS when no server is configured. Delivery is non-blocking: a
// subscriber whose buffer is full misses the message, as with NATS.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]*localSub
	nextID int
	closed bool
}

type localSub struct {
	pattern string
	ch      chan []byte
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]*localSub)}
}

// Publish JSON-encodes event and delivers it to every matching subscriber.
func (b *LocalBus) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.PublishRaw(topic, data)
}

// PublishRaw delivers an already-encoded payload.
func (b *LocalBus) PublishRaw(topic string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, s := range b.subs {
		if !MatchTopic(s.pattern, topic) {
			continue
		}
		select {
		case s.ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe registers a pattern and returns its delivery channel.
func (b *LocalBus) Subscribe(pattern string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrBusClosed
	}

	id := b.nextID
	b.nextID++
	s := &localSub{pattern: pattern, ch: make(chan []byte, 256)}
	b.subs[id] = s

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return s.ch, cancel, nil
}

// Close closes every subscription channel and rejects further use.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	return nil
}
