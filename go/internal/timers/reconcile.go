package timers

import (
	"time"

	"github.com/metagame/metagame/go/internal/models"
)

// Elapsed returns the wall-clock time since the timer's anchor. Clock skew
// (an anchor in the future) counts as zero elapsed time.
func Elapsed(t models.Timer, now time.Time) time.Duration {
	delta := now.Sub(t.LastUpdateTime)
	if delta < 0 {
		return 0
	}
	return delta
}

// Reconcile projects the stored timer onto now without touching storage.
func Reconcile(t models.Timer, now time.Time) models.TimerState {
	projected := crystallize(t, now)
	return models.TimerState{
		Name:         projected.Name,
		OrangeTimeMs: projected.OrangeTimeMs,
		PurpleTimeMs: projected.PurpleTimeMs,
		ActiveTeam:   projected.ActiveTeam,
		IsPaused:     projected.IsPaused,
		CalculatedAt: now,
	}
}

// crystallize deducts the elapsed time from the active team when the timer is
// running. The anchor is left alone; callers re-anchor when they persist.
func crystallize(t models.Timer, now time.Time) models.Timer {
	if !t.Running() {
		return t
	}
	elapsedMs := Elapsed(t, now).Milliseconds()
	switch t.ActiveTeam {
	case models.TeamOrange:
		t.OrangeTimeMs = floorZero(t.OrangeTimeMs - elapsedMs)
	case models.TeamPurple:
		t.PurpleTimeMs = floorZero(t.PurpleTimeMs - elapsedMs)
	}
	return t
}

func floorZero(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}
