package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

func channelSession(room string) *model.Session {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	key := model.NewSessionKey(start, "CS101", "A", room)
	return model.NewSession(key, model.Weekday(time.Monday), start, start.Add(time.Hour))
}

func TestChannel_TypedTaps(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()
	ch := NewChannel(bus, nil)
	s := channelSession("R-204")

	sub, err := ch.SubscribeTaps(s)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	if sub.Session() != s {
		t.Fatal("subscription should remember its session")
	}

	at := time.Date(2026, 3, 2, 9, 3, 0, 0, time.UTC)
	bus.PublishRaw(TapTopic("R-204"), []byte("not json"))
	if err := bus.Publish(context.Background(), TapTopic("R-204"), model.TapEvent{StudentID: "s-1", Timestamp: at}); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-sub.C():
		if ev.StudentID != "s-1" || !ev.Timestamp.Equal(at) {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tap")
	}
}

func TestChannel_TypedWeightsOverNATS(t *testing.T) {
	url := startTestNATS(t)
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	ws, err := NewChannel(sub, nil).SubscribeWeights(channelSession("Lab 1"))
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cancel()

	if err := pub.Publish(context.Background(), WeightTopic("Lab 1"), model.WeightEvent{SensorID: "seat-3", Weight: 61.5}); err != nil {
		t.Fatal(err)
	}
	pub.conn.Flush()

	select {
	case ev := <-ws.C():
		if ev.SensorID != "seat-3" || ev.Weight != 61.5 {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for weight")
	}
}

func TestChannel_CancelClosesStream(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()
	sub, err := NewChannel(bus, nil).SubscribeTaps(channelSession("R-1"))
	if err != nil {
		t.Fatal(err)
	}

	sub.Cancel()
	sub.Cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}

	// Publishing after cancel must not reach anyone or panic.
	if err := bus.PublishRaw(TapTopic("R-1"), []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
}

func TestChannel_Errors(t *testing.T) {
	bus := NewLocalBus()
	ch := NewChannel(bus, nil)
	if _, err := ch.SubscribeTaps(nil); !errors.Is(err, model.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	bus.Close()
	if _, err := ch.SubscribeWeights(channelSession("R-1")); !errors.Is(err, model.ErrEventChannelDisconnected) {
		t.Fatalf("expected ErrEventChannelDisconnected, got %v", err)
	}
}
