package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// Watch records a sighting for every tap and weight event on the bus until
// ctx is cancelled. It listens on every room, not just the active session's.
// Sightings are stamped on arrival; device clocks are not trusted here.
func (t *Tracker) Watch(ctx context.Context, sub events.Subscriber) error {
	taps, cancelTaps, err := sub.Subscribe(events.TopicAllTaps)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicAllTaps, err)
	}
	weights, cancelWeights, err := sub.Subscribe(events.TopicAllWeights)
	if err != nil {
		cancelTaps()
		return fmt.Errorf("subscribe %s: %w", events.TopicAllWeights, err)
	}

	go func() {
		defer cancelTaps()
		defer cancelWeights()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-taps:
				if !ok {
					return
				}
				var ev model.TapEvent
				if err := json.Unmarshal(data, &ev); err != nil {
					continue
				}
				t.Record(Sighting{DeviceID: ev.ReaderID, Kind: KindReader})
			case data, ok := <-weights:
				if !ok {
					return
				}
				var ev model.WeightEvent
				if err := json.Unmarshal(data, &ev); err != nil {
					continue
				}
				t.Record(Sighting{DeviceID: ev.SensorID, Kind: KindSensor})
			}
		}
	}()
	return nil
}
