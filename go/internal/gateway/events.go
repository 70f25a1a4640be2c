package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers/events"
)

// EventTypeTimerSnapshot is sent once to each client right after it connects
const EventTypeTimerSnapshot events.EventType = "TimerSnapshot"

// TimerEvent is the message written to websocket clients
type TimerEvent struct {
	ID        string           `json:"id"`
	TimerName string           `json:"timer_name"`
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	// State is the timer reconciled at Timestamp; absent for TimerDeleted
	State *models.TimerState `json:"state,omitempty"`
	Data  json.RawMessage    `json:"data,omitempty"`
}

// ParseEventPayload decodes Data into the payload struct for the event type
func ParseEventPayload(event *TimerEvent) (interface{}, error) {
	switch event.Type {
	case events.EventTypeTimerCreated, events.EventTypeTimerUpdated, events.EventTypeTimerReset:
		var payload events.TimerChangedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case events.EventTypeTimerDeleted:
		var payload events.TimerDeletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerSnapshot:
		return event.State, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
