package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// Channel turns a raw Subscriber into typed, session-scoped device event
// streams.
type Channel struct {
	sub    Subscriber
	logger *slog.Logger
}

// NewChannel wraps sub.
func NewChannel(sub Subscriber, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{sub: sub, logger: logger}
}

// Subscription is a typed event stream bound to one session. C is closed
// after Cancel.
type Subscription[T any] struct {
	session *model.Session
	out     chan T
	cancel  func()
	done    chan struct{}
	once    sync.Once
}

type (
	TapSubscription    = Subscription[model.TapEvent]
	WeightSubscription = Subscription[model.WeightEvent]
)

// C returns the receive side of the stream.
func (s *Subscription[T]) C() <-chan T { return s.out }

// Session returns the session the subscription was opened for.
func (s *Subscription[T]) Session() *model.Session { return s.session }

// Cancel unsubscribes. It does not wait for in-flight events to be consumed
// and is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// SubscribeTaps subscribes to card taps from the session's room.
func (c *Channel) SubscribeTaps(session *model.Session) (*TapSubscription, error) {
	if session == nil {
		return nil, model.ErrNoActiveSession
	}
	return subscribe[model.TapEvent](c, session, TapTopic(session.Room))
}

// SubscribeWeights subscribes to seat readings from the session's room.
func (c *Channel) SubscribeWeights(session *model.Session) (*WeightSubscription, error) {
	if session == nil {
		return nil, model.ErrNoActiveSession
	}
	return subscribe[model.WeightEvent](c, session, WeightTopic(session.Room))
}

func subscribe[T any](c *Channel, session *model.Session, topic string) (*Subscription[T], error) {
	raw, cancel, err := c.sub.Subscribe(topic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEventChannelDisconnected, err)
	}
	s := &Subscription[T]{
		session: session,
		out:     make(chan T, 64),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.out)
		for {
			var data []byte
			var ok bool
			select {
			case <-s.done:
				return
			case data, ok = <-raw:
				if !ok {
					return
				}
			}
			var ev T
			if err := json.Unmarshal(data, &ev); err != nil {
				c.logger.Warn("events: dropping undecodable payload", "topic", topic, "err", err)
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}()
	return s, nil
}
