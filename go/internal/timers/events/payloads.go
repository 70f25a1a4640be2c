package events

import (
	"encoding/json"
	"time"

	"github.com/metagame/metagame/go/internal/models"
)

// Event payload types shared between the timers, outbox and gateway packages

// EventType names a timer domain event. It is also the last token of the NATS subject.
type EventType string

const (
	EventTypeTimerCreated EventType = "TimerCreated"
	EventTypeTimerUpdated EventType = "TimerUpdated"
	EventTypeTimerReset   EventType = "TimerReset"
	EventTypeTimerDeleted EventType = "TimerDeleted"
)

// TimerChangedPayload is the payload for TimerCreated, TimerUpdated and TimerReset events
type TimerChangedPayload struct {
	Timer     models.Timer `json:"timer"`
	Reason    string       `json:"reason,omitempty"`
	ChangedAt time.Time    `json:"changed_at"`
}

// TimerDeletedPayload is the payload for a TimerDeleted event
type TimerDeletedPayload struct {
	Name      string    `json:"name"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Envelope is the message body published to NATS for every outbox event
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	TimerName string          `json:"timerName"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Subject returns the NATS subject an event of type t is published on
func Subject(prefix string, t EventType) string {
	return prefix + "." + string(t)
}
