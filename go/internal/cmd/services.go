package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/gateway"
	"github.com/metagame/metagame/go/internal/outbox"
	"github.com/metagame/metagame/go/internal/timers"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Timers  *timers.Service
	Gateway *gateway.Service

	app   *timers.App
	nc    *nats.Conn
	close []func()
}

// setupServices wires db → repository → app → service. database is nil
// for the memory store.
func setupServices(ctx context.Context, config *Config, database *sql.DB, clock clockwork.Clock) (*Services, error) {
	var repo timers.TimerRepository
	if database != nil {
		repo = timers.NewRepository(database)
	} else {
		repo = timers.NewMemoryRepository(clock.Now)
	}

	app := timers.NewApp(repo, clock, config.timersConfig())
	services := &Services{
		Timers: timers.NewService(app, timers.NewTurns(app)),
		app:    app,
	}

	if err := app.EnsureTimers(ctx, config.Timers.Seed...); err != nil {
		return nil, fmt.Errorf("failed to seed timers: %w", err)
	}

	if config.Gateway.Enabled {
		if err := services.setupGateway(ctx, config, clock); err != nil {
			services.Close()
			return nil, err
		}
	}
	return services, nil
}

// setupGateway serves live updates in-process. Events only flow through
// the Postgres outbox, so the memory store gets snapshots only.
func (s *Services) setupGateway(ctx context.Context, config *Config, clock clockwork.Clock) error {
	if config.Store.Driver == storeDriverPostgres {
		natsCfg := outbox.DefaultJetStreamConfig()
		natsCfg.URL = config.NATS.URL

		nc, err := outbox.Connect(natsCfg)
		if err != nil {
			return err
		}
		s.nc = nc
		s.close = append(s.close, nc.Close)

		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		if err := outbox.EnsureStream(ctx, js, natsCfg); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
	} else {
		log.Warn().Msg("gateway running without an event stream; clients receive snapshots only")
	}

	svc, err := gateway.NewService(ctx, config.gatewayConfig(), s.nc, s.app, clock)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	s.Gateway = svc
	return nil
}

func (c *Config) gatewayConfig() gateway.Config {
	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JetStreamConfig.ConsumerName = c.Gateway.ConsumerName
	return gatewayCfg
}

func (s *Services) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
}
