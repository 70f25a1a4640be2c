package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/metagame/metagame/go/internal/timers/events"
)

// OutboxEvent is one row of timer_outbox
type OutboxEvent struct {
	ID        uuid.UUID        `json:"id"`
	TimerName string           `json:"timer_name"`
	EventType events.EventType `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
	SentAt    *time.Time       `json:"sent_at,omitempty"`
}
