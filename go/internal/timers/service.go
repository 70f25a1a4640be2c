package timers

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers/timerv1"
)

// TimersApp defines what the service layer needs from the timers application
type TimersApp interface {
	GetTimerByName(ctx context.Context, name string) (*models.Timer, error)
	GetAllTimers(ctx context.Context) ([]models.Timer, error)
	GetCurrentTimerState(ctx context.Context, name string) (*models.TimerState, error)
	UpdateTimer(ctx context.Context, name string, req UpdateTimerRequest) (*models.Timer, error)
	ResetTimer(ctx context.Context, name string) (*models.Timer, error)
	CreateTimer(ctx context.Context, name string) (*models.Timer, error)
	DeleteTimer(ctx context.Context, name string) error
}

// TurnsApp defines what the service layer needs from the turn layer
type TurnsApp interface {
	Pause(ctx context.Context, name string) (*models.Timer, error)
	StartForTeam(ctx context.Context, name string, requested, team models.Team) (*models.Timer, error)
	SwitchTurn(ctx context.Context, name string, requested models.Team) (*models.Timer, error)
}

// Service implements the TimerService Connect interface
type Service struct {
	app   TimersApp
	turns TurnsApp
}

// NewService creates a new timers Connect service
func NewService(app TimersApp, turns TurnsApp) *Service {
	return &Service{
		app:   app,
		turns: turns,
	}
}

// Verify that Service implements the TimerServiceHandler interface
var _ timerv1.TimerServiceHandler = (*Service)(nil)

// GetTimer returns the stored row for a timer
func (s *Service) GetTimer(ctx context.Context, req *connect.Request[timerv1.GetTimerRequest]) (*connect.Response[timerv1.GetTimerResponse], error) {
	timer, err := s.app.GetTimerByName(ctx, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.GetTimerResponse{Timer: timer}), nil
}

// ListTimers returns every stored timer
func (s *Service) ListTimers(ctx context.Context, req *connect.Request[timerv1.ListTimersRequest]) (*connect.Response[timerv1.ListTimersResponse], error) {
	timers, err := s.app.GetAllTimers(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	if timers == nil {
		timers = []models.Timer{}
	}
	return connect.NewResponse(&timerv1.ListTimersResponse{Timers: timers}), nil
}

// GetTimerState returns the reconciled state at request time
func (s *Service) GetTimerState(ctx context.Context, req *connect.Request[timerv1.GetTimerStateRequest]) (*connect.Response[timerv1.GetTimerStateResponse], error) {
	state, err := s.app.GetCurrentTimerState(ctx, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.GetTimerStateResponse{State: state}), nil
}

// UpdateTimer applies a partial update
func (s *Service) UpdateTimer(ctx context.Context, req *connect.Request[timerv1.UpdateTimerRequest]) (*connect.Response[timerv1.UpdateTimerResponse], error) {
	appReq := UpdateTimerRequest{
		IsPaused:     req.Msg.IsPaused,
		OrangeTimeMs: req.Msg.OrangeTimeMs,
		PurpleTimeMs: req.Msg.PurpleTimeMs,
		Reason:       req.Msg.Reason,
	}
	if req.Msg.ActiveTeam != "" {
		team, err := models.ParseTeam(req.Msg.ActiveTeam)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		appReq.ActiveTeam = &team
	}

	timer, err := s.app.UpdateTimer(ctx, req.Msg.Name, appReq)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.UpdateTimerResponse{Timer: timer}), nil
}

// ResetTimer puts a timer back to its initial state
func (s *Service) ResetTimer(ctx context.Context, req *connect.Request[timerv1.ResetTimerRequest]) (*connect.Response[timerv1.ResetTimerResponse], error) {
	timer, err := s.app.ResetTimer(ctx, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.ResetTimerResponse{Timer: timer}), nil
}

// CreateTimer creates a timer in its initial state
func (s *Service) CreateTimer(ctx context.Context, req *connect.Request[timerv1.CreateTimerRequest]) (*connect.Response[timerv1.CreateTimerResponse], error) {
	timer, err := s.app.CreateTimer(ctx, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.CreateTimerResponse{Timer: timer}), nil
}

// DeleteTimer removes a timer
func (s *Service) DeleteTimer(ctx context.Context, req *connect.Request[timerv1.DeleteTimerRequest]) (*connect.Response[timerv1.DeleteTimerResponse], error) {
	if err := s.app.DeleteTimer(ctx, req.Msg.Name); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.DeleteTimerResponse{}), nil
}

// PauseTimer stops the clock and clears the active team
func (s *Service) PauseTimer(ctx context.Context, req *connect.Request[timerv1.PauseTimerRequest]) (*connect.Response[timerv1.PauseTimerResponse], error) {
	timer, err := s.turns.Pause(ctx, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.PauseTimerResponse{Timer: timer}), nil
}

// StartTurn starts a team's clock
func (s *Service) StartTurn(ctx context.Context, req *connect.Request[timerv1.StartTurnRequest]) (*connect.Response[timerv1.StartTurnResponse], error) {
	requested, err := models.ParseTeam(req.Msg.RequestedTeam)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	team, err := models.ParseTeam(req.Msg.Team)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	timer, err := s.turns.StartForTeam(ctx, req.Msg.Name, requested, team)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.StartTurnResponse{Timer: timer}), nil
}

// SwitchTurn hands the turn to the other team
func (s *Service) SwitchTurn(ctx context.Context, req *connect.Request[timerv1.SwitchTurnRequest]) (*connect.Response[timerv1.SwitchTurnResponse], error) {
	requested, err := models.ParseTeam(req.Msg.RequestedTeam)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	timer, err := s.turns.SwitchTurn(ctx, req.Msg.Name, requested)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&timerv1.SwitchTurnResponse{Timer: timer}), nil
}

// toConnectError maps engine failure kinds onto Connect codes
func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrForbidden):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, ErrStoreFailure):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("unexpected timer error: %w", err))
	}
}
