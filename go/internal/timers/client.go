package timers

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers/timerv1"
)

// Client calls a remote TimerService and maps Connect codes back onto the
// package error sentinels.
type Client struct {
	rpc *timerv1.TimerServiceClient
}

// NewClient creates a client for the service served at baseURL
func NewClient(httpClient *http.Client, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{rpc: timerv1.NewTimerServiceClient(httpClient, baseURL, opts...)}
}

func (c *Client) GetTimer(ctx context.Context, name string) (*models.Timer, error) {
	res, err := c.rpc.GetTimer(ctx, connect.NewRequest(&timerv1.GetTimerRequest{Name: name}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func (c *Client) ListTimers(ctx context.Context) ([]models.Timer, error) {
	res, err := c.rpc.ListTimers(ctx, connect.NewRequest(&timerv1.ListTimersRequest{}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timers, nil
}

func (c *Client) GetTimerState(ctx context.Context, name string) (*models.TimerState, error) {
	res, err := c.rpc.GetTimerState(ctx, connect.NewRequest(&timerv1.GetTimerStateRequest{Name: name}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.State, nil
}

// UpdateTimer sends a partial update. A non-nil req.ActiveTeam of TeamNone
// clears the team on the server.
func (c *Client) UpdateTimer(ctx context.Context, name string, req UpdateTimerRequest) (*models.Timer, error) {
	msg := &timerv1.UpdateTimerRequest{
		Name:         name,
		IsPaused:     req.IsPaused,
		OrangeTimeMs: req.OrangeTimeMs,
		PurpleTimeMs: req.PurpleTimeMs,
		Reason:       req.Reason,
	}
	if req.ActiveTeam != nil {
		msg.ActiveTeam = req.ActiveTeam.String()
	}

	res, err := c.rpc.UpdateTimer(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func (c *Client) ResetTimer(ctx context.Context, name string) (*models.Timer, error) {
	res, err := c.rpc.ResetTimer(ctx, connect.NewRequest(&timerv1.ResetTimerRequest{Name: name}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func (c *Client) CreateTimer(ctx context.Context, name string) (*models.Timer, error) {
	res, err := c.rpc.CreateTimer(ctx, connect.NewRequest(&timerv1.CreateTimerRequest{Name: name}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func (c *Client) DeleteTimer(ctx context.Context, name string) error {
	if _, err := c.rpc.DeleteTimer(ctx, connect.NewRequest(&timerv1.DeleteTimerRequest{Name: name})); err != nil {
		return fromConnectError(err)
	}
	return nil
}

func (c *Client) PauseTimer(ctx context.Context, name string) (*models.Timer, error) {
	res, err := c.rpc.PauseTimer(ctx, connect.NewRequest(&timerv1.PauseTimerRequest{Name: name}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func (c *Client) StartTurn(ctx context.Context, name string, requested, team models.Team) (*models.Timer, error) {
	res, err := c.rpc.StartTurn(ctx, connect.NewRequest(&timerv1.StartTurnRequest{
		Name:          name,
		RequestedTeam: string(requested),
		Team:          string(team),
	}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func (c *Client) SwitchTurn(ctx context.Context, name string, requested models.Team) (*models.Timer, error) {
	res, err := c.rpc.SwitchTurn(ctx, connect.NewRequest(&timerv1.SwitchTurnRequest{
		Name:          name,
		RequestedTeam: string(requested),
	}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg.Timer, nil
}

func fromConnectError(err error) error {
	var sentinel error
	switch connect.CodeOf(err) {
	case connect.CodeNotFound:
		sentinel = ErrNotFound
	case connect.CodePermissionDenied:
		sentinel = ErrForbidden
	case connect.CodeInvalidArgument:
		sentinel = ErrInvalidArgument
	case connect.CodeAlreadyExists:
		sentinel = ErrAlreadyExists
	case connect.CodeAborted:
		sentinel = ErrConflict
	case connect.CodeUnavailable:
		sentinel = ErrStoreFailure
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
