// Package timerv1 holds the wire messages and Connect bindings of
// metagame.timer.v1.TimerService. Messages are plain JSON structs.
package timerv1

import "github.com/metagame/metagame/go/internal/models"

type GetTimerRequest struct {
	Name string `json:"name"`
}

type GetTimerResponse struct {
	Timer *models.Timer `json:"timer"`
}

type ListTimersRequest struct{}

type ListTimersResponse struct {
	Timers []models.Timer `json:"timers"`
}

type GetTimerStateRequest struct {
	Name string `json:"name"`
}

type GetTimerStateResponse struct {
	State *models.TimerState `json:"state"`
}

// UpdateTimerRequest is a partial update. Omitted fields are left unchanged;
// ActiveTeam "none" clears the active team.
type UpdateTimerRequest struct {
	Name         string `json:"name"`
	ActiveTeam   string `json:"active_team,omitempty"`
	IsPaused     *bool  `json:"is_paused,omitempty"`
	OrangeTimeMs *int64 `json:"orange_time_ms,omitempty"`
	PurpleTimeMs *int64 `json:"purple_time_ms,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type UpdateTimerResponse struct {
	Timer *models.Timer `json:"timer"`
}

type ResetTimerRequest struct {
	Name string `json:"name"`
}

type ResetTimerResponse struct {
	Timer *models.Timer `json:"timer"`
}

type CreateTimerRequest struct {
	Name string `json:"name"`
}

type CreateTimerResponse struct {
	Timer *models.Timer `json:"timer"`
}

type DeleteTimerRequest struct {
	Name string `json:"name"`
}

type DeleteTimerResponse struct{}

type PauseTimerRequest struct {
	Name string `json:"name"`
}

type PauseTimerResponse struct {
	Timer *models.Timer `json:"timer"`
}

// StartTurnRequest starts Team's clock. RequestedTeam is the team the caller
// acts for; empty means unattributed.
type StartTurnRequest struct {
	Name          string `json:"name"`
	RequestedTeam string `json:"requested_team,omitempty"`
	Team          string `json:"team"`
}

type StartTurnResponse struct {
	Timer *models.Timer `json:"timer"`
}

type SwitchTurnRequest struct {
	Name          string `json:"name"`
	RequestedTeam string `json:"requested_team,omitempty"`
}

type SwitchTurnResponse struct {
	Timer *models.Timer `json:"timer"`
}
