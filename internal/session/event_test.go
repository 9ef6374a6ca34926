package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// drainEvents collects every event currently buffered on the bus.
func drainEvents(bus *EventBus) []Event {
	var out []Event
	for {
		select {
		case ev := <-bus.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// eventKinds projects an event sequence onto its kind tags.
func eventKinds(events []Event) []EventKind {
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func TestEventBusDeliversInSourceOrder(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Publish(Event{Kind: EventStateChanged, State: "recording"})
	bus.Publish(Event{Kind: EventSpeechStarted})
	bus.Publish(Event{Kind: EventSpeechEnded, DurationMS: 1500})

	events := drainEvents(bus)
	require.Equal(t, []EventKind{EventStateChanged, EventSpeechStarted, EventSpeechEnded}, eventKinds(events))
	require.Equal(t, "recording", events[0].State)
	require.Equal(t, int64(1500), events[2].DurationMS)
}

func TestEventBusPublishNeverBlocksAndDropsOldest(t *testing.T) {
	bus := NewEventBus(nil)
	for i := 0; i < eventBufferSize+8; i++ {
		bus.Publish(Event{Kind: EventSpeechStarted, DurationMS: int64(i)})
	}

	events := drainEvents(bus)
	require.Len(t, events, eventBufferSize)
	// The newest events survive; the 8 oldest were evicted.
	require.Equal(t, int64(8), events[0].DurationMS)
	require.Equal(t, int64(eventBufferSize+7), events[len(events)-1].DurationMS)
}

func TestNilEventBusIsInert(t *testing.T) {
	var bus *EventBus
	bus.Publish(Event{Kind: EventError, Message: "dropped"})
	require.Nil(t, bus.Events())
}

func TestEventSerializesTaggedFields(t *testing.T) {
	raw, err := json.Marshal(Event{
		Kind:             EventTranscriptionComplete,
		Text:             "hi",
		AudioDurationS:   1.5,
		ProcessingTimeMS: 200,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"transcription_complete","text":"hi","audio_duration_s":1.5,"processing_time_ms":200}`, string(raw))

	raw, err = json.Marshal(Event{Kind: EventSpeechEnded, DurationMS: 1500})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"speech_ended","duration_ms":1500}`, string(raw))
}
