package timerv1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// TimerServiceName is the fully-qualified name of the TimerService service.
const TimerServiceName = "metagame.timer.v1.TimerService"

// Fully-qualified procedure names, also used as HTTP routes.
const (
	TimerServiceGetTimerProcedure      = "/metagame.timer.v1.TimerService/GetTimer"
	TimerServiceListTimersProcedure    = "/metagame.timer.v1.TimerService/ListTimers"
	TimerServiceGetTimerStateProcedure = "/metagame.timer.v1.TimerService/GetTimerState"
	TimerServiceUpdateTimerProcedure   = "/metagame.timer.v1.TimerService/UpdateTimer"
	TimerServiceResetTimerProcedure    = "/metagame.timer.v1.TimerService/ResetTimer"
	TimerServiceCreateTimerProcedure   = "/metagame.timer.v1.TimerService/CreateTimer"
	TimerServiceDeleteTimerProcedure   = "/metagame.timer.v1.TimerService/DeleteTimer"
	TimerServicePauseTimerProcedure    = "/metagame.timer.v1.TimerService/PauseTimer"
	TimerServiceStartTurnProcedure     = "/metagame.timer.v1.TimerService/StartTurn"
	TimerServiceSwitchTurnProcedure    = "/metagame.timer.v1.TimerService/SwitchTurn"
)

// TimerServiceHandler is implemented by the server side of TimerService
type TimerServiceHandler interface {
	GetTimer(context.Context, *connect.Request[GetTimerRequest]) (*connect.Response[GetTimerResponse], error)
	ListTimers(context.Context, *connect.Request[ListTimersRequest]) (*connect.Response[ListTimersResponse], error)
	GetTimerState(context.Context, *connect.Request[GetTimerStateRequest]) (*connect.Response[GetTimerStateResponse], error)
	UpdateTimer(context.Context, *connect.Request[UpdateTimerRequest]) (*connect.Response[UpdateTimerResponse], error)
	ResetTimer(context.Context, *connect.Request[ResetTimerRequest]) (*connect.Response[ResetTimerResponse], error)
	CreateTimer(context.Context, *connect.Request[CreateTimerRequest]) (*connect.Response[CreateTimerResponse], error)
	DeleteTimer(context.Context, *connect.Request[DeleteTimerRequest]) (*connect.Response[DeleteTimerResponse], error)
	PauseTimer(context.Context, *connect.Request[PauseTimerRequest]) (*connect.Response[PauseTimerResponse], error)
	StartTurn(context.Context, *connect.Request[StartTurnRequest]) (*connect.Response[StartTurnResponse], error)
	SwitchTurn(context.Context, *connect.Request[SwitchTurnRequest]) (*connect.Response[SwitchTurnResponse], error)
}

// NewTimerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewTimerServiceHandler(svc TimerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	routes := map[string]http.Handler{
		TimerServiceGetTimerProcedure:      connect.NewUnaryHandler(TimerServiceGetTimerProcedure, svc.GetTimer, opts...),
		TimerServiceListTimersProcedure:    connect.NewUnaryHandler(TimerServiceListTimersProcedure, svc.ListTimers, opts...),
		TimerServiceGetTimerStateProcedure: connect.NewUnaryHandler(TimerServiceGetTimerStateProcedure, svc.GetTimerState, opts...),
		TimerServiceUpdateTimerProcedure:   connect.NewUnaryHandler(TimerServiceUpdateTimerProcedure, svc.UpdateTimer, opts...),
		TimerServiceResetTimerProcedure:    connect.NewUnaryHandler(TimerServiceResetTimerProcedure, svc.ResetTimer, opts...),
		TimerServiceCreateTimerProcedure:   connect.NewUnaryHandler(TimerServiceCreateTimerProcedure, svc.CreateTimer, opts...),
		TimerServiceDeleteTimerProcedure:   connect.NewUnaryHandler(TimerServiceDeleteTimerProcedure, svc.DeleteTimer, opts...),
		TimerServicePauseTimerProcedure:    connect.NewUnaryHandler(TimerServicePauseTimerProcedure, svc.PauseTimer, opts...),
		TimerServiceStartTurnProcedure:     connect.NewUnaryHandler(TimerServiceStartTurnProcedure, svc.StartTurn, opts...),
		TimerServiceSwitchTurnProcedure:    connect.NewUnaryHandler(TimerServiceSwitchTurnProcedure, svc.SwitchTurn, opts...),
	}

	return "/" + TimerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// TimerServiceClient is a client for metagame.timer.v1.TimerService
type TimerServiceClient struct {
	getTimer      *connect.Client[GetTimerRequest, GetTimerResponse]
	listTimers    *connect.Client[ListTimersRequest, ListTimersResponse]
	getTimerState *connect.Client[GetTimerStateRequest, GetTimerStateResponse]
	updateTimer   *connect.Client[UpdateTimerRequest, UpdateTimerResponse]
	resetTimer    *connect.Client[ResetTimerRequest, ResetTimerResponse]
	createTimer   *connect.Client[CreateTimerRequest, CreateTimerResponse]
	deleteTimer   *connect.Client[DeleteTimerRequest, DeleteTimerResponse]
	pauseTimer    *connect.Client[PauseTimerRequest, PauseTimerResponse]
	startTurn     *connect.Client[StartTurnRequest, StartTurnResponse]
	switchTurn    *connect.Client[SwitchTurnRequest, SwitchTurnResponse]
}

// NewTimerServiceClient constructs a client for TimerService. baseURL is the
// server root, e.g. http://localhost:8080.
func NewTimerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TimerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSONCodec()}, opts...)

	return &TimerServiceClient{
		getTimer:      connect.NewClient[GetTimerRequest, GetTimerResponse](httpClient, baseURL+TimerServiceGetTimerProcedure, opts...),
		listTimers:    connect.NewClient[ListTimersRequest, ListTimersResponse](httpClient, baseURL+TimerServiceListTimersProcedure, opts...),
		getTimerState: connect.NewClient[GetTimerStateRequest, GetTimerStateResponse](httpClient, baseURL+TimerServiceGetTimerStateProcedure, opts...),
		updateTimer:   connect.NewClient[UpdateTimerRequest, UpdateTimerResponse](httpClient, baseURL+TimerServiceUpdateTimerProcedure, opts...),
		resetTimer:    connect.NewClient[ResetTimerRequest, ResetTimerResponse](httpClient, baseURL+TimerServiceResetTimerProcedure, opts...),
		createTimer:   connect.NewClient[CreateTimerRequest, CreateTimerResponse](httpClient, baseURL+TimerServiceCreateTimerProcedure, opts...),
		deleteTimer:   connect.NewClient[DeleteTimerRequest, DeleteTimerResponse](httpClient, baseURL+TimerServiceDeleteTimerProcedure, opts...),
		pauseTimer:    connect.NewClient[PauseTimerRequest, PauseTimerResponse](httpClient, baseURL+TimerServicePauseTimerProcedure, opts...),
		startTurn:     connect.NewClient[StartTurnRequest, StartTurnResponse](httpClient, baseURL+TimerServiceStartTurnProcedure, opts...),
		switchTurn:    connect.NewClient[SwitchTurnRequest, SwitchTurnResponse](httpClient, baseURL+TimerServiceSwitchTurnProcedure, opts...),
	}
}

func (c *TimerServiceClient) GetTimer(ctx context.Context, req *connect.Request[GetTimerRequest]) (*connect.Response[GetTimerResponse], error) {
	return c.getTimer.CallUnary(ctx, req)
}

func (c *TimerServiceClient) ListTimers(ctx context.Context, req *connect.Request[ListTimersRequest]) (*connect.Response[ListTimersResponse], error) {
	return c.listTimers.CallUnary(ctx, req)
}

func (c *TimerServiceClient) GetTimerState(ctx context.Context, req *connect.Request[GetTimerStateRequest]) (*connect.Response[GetTimerStateResponse], error) {
	return c.getTimerState.CallUnary(ctx, req)
}

func (c *TimerServiceClient) UpdateTimer(ctx context.Context, req *connect.Request[UpdateTimerRequest]) (*connect.Response[UpdateTimerResponse], error) {
	return c.updateTimer.CallUnary(ctx, req)
}

func (c *TimerServiceClient) ResetTimer(ctx context.Context, req *connect.Request[ResetTimerRequest]) (*connect.Response[ResetTimerResponse], error) {
	return c.resetTimer.CallUnary(ctx, req)
}

func (c *TimerServiceClient) CreateTimer(ctx context.Context, req *connect.Request[CreateTimerRequest]) (*connect.Response[CreateTimerResponse], error) {
	return c.createTimer.CallUnary(ctx, req)
}

func (c *TimerServiceClient) DeleteTimer(ctx context.Context, req *connect.Request[DeleteTimerRequest]) (*connect.Response[DeleteTimerResponse], error) {
	return c.deleteTimer.CallUnary(ctx, req)
}

func (c *TimerServiceClient) PauseTimer(ctx context.Context, req *connect.Request[PauseTimerRequest]) (*connect.Response[PauseTimerResponse], error) {
	return c.pauseTimer.CallUnary(ctx, req)
}

func (c *TimerServiceClient) StartTurn(ctx context.Context, req *connect.Request[StartTurnRequest]) (*connect.Response[StartTurnResponse], error) {
	return c.startTurn.CallUnary(ctx, req)
}

func (c *TimerServiceClient) SwitchTurn(ctx context.Context, req *connect.Request[SwitchTurnRequest]) (*connect.Response[SwitchTurnResponse], error) {
	return c.switchTurn.CallUnary(ctx, req)
}
