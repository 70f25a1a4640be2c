package timers

import (
	"fmt"
	"strings"
	"time"

	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers/events"
)

// WritePolicy selects how concurrent writers to the same timer are reconciled.
type WritePolicy string

const (
	// WritePolicyLastWriteWins upserts unconditionally; a racing writer may discard crystallized time.
	WritePolicyLastWriteWins WritePolicy = "last_write_wins"
	// WritePolicyCompareAndSwap rejects a write if the stored version moved since it was read.
	WritePolicyCompareAndSwap WritePolicy = "compare_and_swap"
)

// ParseWritePolicy parses a policy name, defaulting to last-write-wins when empty.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", WritePolicyLastWriteWins:
		return WritePolicyLastWriteWins, nil
	case WritePolicyCompareAndSwap:
		return WritePolicyCompareAndSwap, nil
	default:
		return "", fmt.Errorf("unknown write policy %q", s)
	}
}

// Config holds engine settings
type Config struct {
	InitialDuration    time.Duration
	WritePolicy        WritePolicy
	MaxConflictRetries int
}

// DefaultConfig returns the reference behaviour: 10h per team, last write wins.
func DefaultConfig() Config {
	return Config{
		InitialDuration:    models.DefaultInitialDuration,
		WritePolicy:        WritePolicyLastWriteWins,
		MaxConflictRetries: 2,
	}
}

// UpdateTimerRequest is a partial update. Nil fields are left unchanged.
// ActiveTeam pointing at models.TeamNone clears the active team.
type UpdateTimerRequest struct {
	ActiveTeam   *models.Team `json:"active_team,omitempty"`
	IsPaused     *bool        `json:"is_paused,omitempty"`
	OrangeTimeMs *int64       `json:"orange_time_ms,omitempty"`
	PurpleTimeMs *int64       `json:"purple_time_ms,omitempty"`

	// Reason is recorded on the emitted change event only
	Reason string `json:"reason,omitempty"`
}

// HasExplicitTime reports whether the caller supplied either remaining-time field.
func (r UpdateTimerRequest) HasExplicitTime() bool {
	return r.OrangeTimeMs != nil || r.PurpleTimeMs != nil
}

// SaveTimerRequest is what the engine hands to the repository for a write
type SaveTimerRequest struct {
	Timer models.Timer
	// ExpectedVersion guards the write when set (compare-and-swap)
	ExpectedVersion *int64
	EventType       events.EventType
	Reason          string
}
