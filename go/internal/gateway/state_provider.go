package gateway

import (
	"context"

	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers"
)

// StateProvider returns the reconciled state of a timer. *timers.App
// satisfies it directly when the gateway runs in-process.
type StateProvider interface {
	GetCurrentTimerState(ctx context.Context, name string) (*models.TimerState, error)
}

// RemoteStateProvider reads timer state through the TimerService API
type RemoteStateProvider struct {
	client *timers.Client
}

func NewRemoteStateProvider(client *timers.Client) *RemoteStateProvider {
	return &RemoteStateProvider{client: client}
}

func (p *RemoteStateProvider) GetCurrentTimerState(ctx context.Context, name string) (*models.TimerState, error) {
	return p.client.GetTimerState(ctx, name)
}
