package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Timer struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	OrangeTimeMs   int64          `json:"orange_time_ms"`
	PurpleTimeMs   int64          `json:"purple_time_ms"`
	ActiveTeam     sql.NullString `json:"active_team"`
	IsPaused       bool           `json:"is_paused"`
	LastUpdateTime time.Time      `json:"last_update_time"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type TimerOutbox struct {
	ID        uuid.UUID       `json:"id"`
	TimerName string          `json:"timer_name"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    sql.NullTime    `json:"sent_at"`
}
