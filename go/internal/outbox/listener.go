package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to sweep for missed events
	MaxRetries       int
	RetryDelay       time.Duration // Linear backoff step between publish attempts
	PingInterval     time.Duration
	BatchSize        int // Max events per fallback sweep
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "timer_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// EventStore is what the relay needs from the outbox table
type EventStore interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
}

// Listener relays timer_outbox rows to the broker. Rows are picked up as
// soon as postgres notifies about them, and a periodic sweep catches any
// notification that was lost while disconnected.
type Listener struct {
	store     EventStore
	publisher Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
	cfg       ListenerConfig

	notify <-chan *pq.Notification
	ping   func() error
	close  func() error

	running atomic.Bool
}

func NewListener(store EventStore, publisher Publisher, metrics MetricsCollector, clock clockwork.Clock, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for notifications")
	return newListener(store, publisher, metrics, clock, cfg, l.Notify, l.Ping, l.Close), nil
}

func newListener(
	store EventStore,
	publisher Publisher,
	metrics MetricsCollector,
	clock clockwork.Clock,
	cfg ListenerConfig,
	notify <-chan *pq.Notification,
	ping func() error,
	closeFn func() error,
) *Listener {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &Listener{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
		cfg:       cfg,
		notify:    notify,
		ping:      ping,
		close:     closeFn,
	}
}

// Running reports whether Start's loop is active
func (l *Listener) Running() bool {
	return l.running.Load()
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.running.Store(true)
	defer l.running.Store(false)

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	// rows written while the relay was down
	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.close()
		case note := <-l.notify:
			if note == nil {
				// connection was re-established; notifications may have been missed
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.Chan():
			if err := l.ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// handleNotification publishes the outbox row whose id is the notification payload
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.store.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			// the fallback sweep got there first
			log.Debug().Str("event_id", id.String()).Msg("outbox event already sent")
			return nil
		}
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	if err := l.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// processUnsent sweeps the oldest unsent rows
func (l *Listener) processUnsent(ctx context.Context) error {
	start := l.clock.Now()
	unsent, err := l.store.FetchUnsent(ctx, l.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	published := 0
	for _, event := range unsent {
		if err := l.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
			continue
		}
		published++
	}

	l.metrics.RecordBatchProcessed(published, l.clock.Since(start))
	if len(unsent) > 0 {
		log.Info().Int("found", len(unsent)).Int("published", published).Msg("processed unsent outbox events")
	}
	return nil
}

// publishWithRetry publishes with linear backoff, then marks the row sent
func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if delay := l.cfg.RetryDelay * time.Duration(attempt); delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-l.clock.After(delay):
				}
			}
		}

		err := l.publisher.Publish(ctx, event)
		l.metrics.RecordPublishAttempt(event.EventType, attempt+1, err == nil)
		if err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if err := l.store.MarkSent(ctx, event.ID, l.clock.Now()); err != nil {
			return err
		}

		log.Debug().
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.EventType)).
			Str("timer", event.TimerName).
			Int("attempt", attempt+1).
			Msg("published and marked event as sent")
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
