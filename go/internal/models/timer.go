package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Team identifies one side of a shared timer.
type Team string

const (
	// TeamNone means no team's clock is running.
	TeamNone   Team = ""
	TeamOrange Team = "orange"
	TeamPurple Team = "purple"
)

// DefaultInitialDuration is the starting budget for each team (10 hours).
const DefaultInitialDuration = 10 * time.Hour

// ParseTeam converts user input into a Team. Empty, "none" and "null" map to TeamNone.
func ParseTeam(s string) (Team, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return TeamNone, nil
	case string(TeamOrange):
		return TeamOrange, nil
	case string(TeamPurple):
		return TeamPurple, nil
	default:
		return TeamNone, fmt.Errorf("unknown team %q", s)
	}
}

// Valid reports whether t is one of the known values, including TeamNone.
func (t Team) Valid() bool {
	return t == TeamNone || t == TeamOrange || t == TeamPurple
}

// Opposite returns the other team. TeamNone has no opposite.
func (t Team) Opposite() Team {
	switch t {
	case TeamOrange:
		return TeamPurple
	case TeamPurple:
		return TeamOrange
	default:
		return TeamNone
	}
}

func (t Team) String() string {
	if t == TeamNone {
		return "none"
	}
	return string(t)
}

// MarshalJSON encodes TeamNone as null.
func (t Team) MarshalJSON() ([]byte, error) {
	if t == TeamNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON accepts null, a team name, or "none".
func (t *Team) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TeamNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTeam(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Timer is the stored row of a shared two-team countdown.
type Timer struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	OrangeTimeMs   int64     `json:"orange_time_ms"`
	PurpleTimeMs   int64     `json:"purple_time_ms"`
	ActiveTeam     Team      `json:"active_team"`
	IsPaused       bool      `json:"is_paused"`
	LastUpdateTime time.Time `json:"last_update_time"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Running reports whether the active team's clock is counting down.
func (t Timer) Running() bool {
	return !t.IsPaused && t.ActiveTeam != TeamNone
}

// RemainingMs returns the stored remaining time for team.
func (t Timer) RemainingMs(team Team) int64 {
	switch team {
	case TeamOrange:
		return t.OrangeTimeMs
	case TeamPurple:
		return t.PurpleTimeMs
	default:
		return 0
	}
}

// TimerState is a reconciled, read-only view of a Timer at CalculatedAt.
type TimerState struct {
	Name         string    `json:"name"`
	OrangeTimeMs int64     `json:"orange_time_ms"`
	PurpleTimeMs int64     `json:"purple_time_ms"`
	ActiveTeam   Team      `json:"active_team"`
	IsPaused     bool      `json:"is_paused"`
	CalculatedAt time.Time `json:"calculated_at"`
}
