package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Service is the timer gateway: websocket clients plus the JetStream consumer feeding them
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService wires the gateway. A nil nc gives a gateway that only serves
// snapshots, which is what the in-memory store runs with.
func NewService(ctx context.Context, config Config, nc *nats.Conn, provider StateProvider, clock clockwork.Clock) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, clock)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, provider),
	}

	if nc != nil {
		consumer, err := NewEventConsumer(ctx, nc, connectionManager, clock, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// Start runs the gateway until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("consumer", s.eventConsumer != nil).Msg("starting timer gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer == nil {
		<-ctx.Done()
		return nil
	}
	return s.eventConsumer.Start(ctx)
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("timer gateway routes registered")
}

// Stats returns connection counts
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
