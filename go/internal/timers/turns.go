package timers

import (
	"context"
	"fmt"

	"github.com/metagame/metagame/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ActionKind is the kind of turn action a team asks for
type ActionKind int

const (
	ActionStartTurn ActionKind = iota
	ActionEndTurn
	ActionPause
	ActionReset
)

func (k ActionKind) String() string {
	switch k {
	case ActionStartTurn:
		return "start_turn"
	case ActionEndTurn:
		return "end_turn"
	case ActionPause:
		return "pause"
	case ActionReset:
		return "reset"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is a turn action. Target is only meaningful for ActionStartTurn.
type Action struct {
	Kind   ActionKind
	Target models.Team
}

// StartTurn builds the action of starting target's clock
func StartTurn(target models.Team) Action {
	return Action{Kind: ActionStartTurn, Target: target}
}

// EndTurn is the action of handing the turn to the other team
var EndTurn = Action{Kind: ActionEndTurn}

// Authorize decides whether requested may perform action while active holds
// the turn. An empty requested team means the call is not attributed to a
// team and is allowed.
func Authorize(requested, active models.Team, action Action) error {
	if requested == models.TeamNone {
		return nil
	}

	switch action.Kind {
	case ActionStartTurn:
		if requested != action.Target {
			return fmt.Errorf("%w: team %s cannot start a turn for %s", ErrForbidden, requested, action.Target)
		}
	case ActionEndTurn:
		if active != models.TeamNone && active != requested {
			return fmt.Errorf("%w: team %s cannot end the turn of %s", ErrForbidden, requested, active)
		}
	}
	return nil
}

// NextTeam picks who plays after a switch. With nobody active the requester
// takes the turn, otherwise it goes to the other team.
func NextTeam(active, requested models.Team) models.Team {
	if active == models.TeamNone {
		return requested
	}
	return active.Opposite()
}

// TimerEngine is the subset of App the turn layer drives
type TimerEngine interface {
	GetTimerByName(ctx context.Context, name string) (*models.Timer, error)
	UpdateTimer(ctx context.Context, name string, req UpdateTimerRequest) (*models.Timer, error)
	ResetTimer(ctx context.Context, name string) (*models.Timer, error)
}

// Turns maps turn-taking actions onto timer updates. Authorization happens
// here; the engine itself does not know about teams asking for things.
type Turns struct {
	engine TimerEngine
}

// NewTurns creates a turn layer over engine
func NewTurns(engine TimerEngine) *Turns {
	return &Turns{engine: engine}
}

// Pause stops the clock and clears the active team. Whose turn it was is lost.
func (t *Turns) Pause(ctx context.Context, name string) (*models.Timer, error) {
	noTeam := models.TeamNone
	paused := true
	timer, err := t.engine.UpdateTimer(ctx, name, UpdateTimerRequest{
		ActiveTeam: &noTeam,
		IsPaused:   &paused,
		Reason:     ActionPause.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pause timer: %w", err)
	}
	return timer, nil
}

// StartForTeam starts team's clock on behalf of requested
func (t *Turns) StartForTeam(ctx context.Context, name string, requested, team models.Team) (*models.Timer, error) {
	if team == models.TeamNone || !team.Valid() {
		return nil, fmt.Errorf("%w: a team is required to start a turn", ErrInvalidArgument)
	}
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: unknown team %q", ErrInvalidArgument, string(requested))
	}
	if err := Authorize(requested, models.TeamNone, StartTurn(team)); err != nil {
		log.Warn().Str("timer", name).Str("requested", requested.String()).Str("target", team.String()).Msg("start turn rejected")
		return nil, err
	}

	running := false
	timer, err := t.engine.UpdateTimer(ctx, name, UpdateTimerRequest{
		ActiveTeam: &team,
		IsPaused:   &running,
		Reason:     ActionStartTurn.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start turn: %w", err)
	}
	return timer, nil
}

// SwitchTurn ends the current turn on behalf of requested. The read of the
// active team and the following write are separate store round trips.
func (t *Turns) SwitchTurn(ctx context.Context, name string, requested models.Team) (*models.Timer, error) {
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: unknown team %q", ErrInvalidArgument, string(requested))
	}

	current, err := t.engine.GetTimerByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to switch turn: %w", err)
	}
	if err := Authorize(requested, current.ActiveTeam, EndTurn); err != nil {
		log.Warn().Str("timer", name).Str("requested", requested.String()).Str("active", current.ActiveTeam.String()).Msg("switch turn rejected")
		return nil, err
	}

	next := NextTeam(current.ActiveTeam, requested)
	running := false
	timer, err := t.engine.UpdateTimer(ctx, name, UpdateTimerRequest{
		ActiveTeam: &next,
		IsPaused:   &running,
		Reason:     ActionEndTurn.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to switch turn: %w", err)
	}
	return timer, nil
}

// Reset puts the timer back to its initial state
func (t *Turns) Reset(ctx context.Context, name string) (*models.Timer, error) {
	timer, err := t.engine.ResetTimer(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to reset timer: %w", err)
	}
	return timer, nil
}
