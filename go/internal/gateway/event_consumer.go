package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/timers"
	"github.com/metagame/metagame/go/internal/timers/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	// InactiveThreshold removes the consumer after the gateway instance goes away
	InactiveThreshold time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:        "TIMER_EVENTS",
		ConsumerName:      "timer-gateway",
		SubjectFilter:     "timer.events.>",
		MaxDeliver:        5,
		AckWait:           30 * time.Second,
		MaxAckPending:     100,
		InactiveThreshold: time.Hour,
	}
}

// Broadcaster fans an event out to the clients of one timer
type Broadcaster interface {
	BroadcastToTimer(timerName string, event *TimerEvent) bool
}

// EventConsumer consumes timer events from JetStream and broadcasts them to websocket clients
type EventConsumer struct {
	broadcaster Broadcaster
	clock       clockwork.Clock
	js          jetstream.JetStream
	consumer    jetstream.Consumer
	config      JetStreamConsumerConfig
}

// NewEventConsumer binds a consumer on an existing NATS connection
func NewEventConsumer(ctx context.Context, nc *nats.Conn, broadcaster Broadcaster, clock clockwork.Clock, config JetStreamConsumerConfig) (*EventConsumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		broadcaster: broadcaster,
		clock:       clock,
		js:          js,
		config:      config,
	}
	if err := ec.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	// New clients get a snapshot on connect, so only events from now on matter
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              ec.config.ConsumerName,
		Durable:           ec.config.ConsumerName,
		Description:       "Timer gateway websocket consumer",
		FilterSubject:     ec.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
		InactiveThreshold: ec.config.InactiveThreshold,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes until ctx is done
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.HandleMessage(msg.Data()); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
				// A malformed body never gets better on redelivery
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// HandleMessage decodes an event envelope and broadcasts it
func (ec *EventConsumer) HandleMessage(data []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if envelope.TimerName == "" {
		return fmt.Errorf("event %s has no timer name", envelope.EventID)
	}

	event, err := ec.convertToWebSocketEvent(envelope)
	if err != nil {
		return fmt.Errorf("convert to websocket event: %w", err)
	}

	ec.broadcaster.BroadcastToTimer(envelope.TimerName, event)

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("timer", envelope.TimerName).
		Str("event_type", string(envelope.EventType)).
		Msg("event broadcasted to websocket clients")
	return nil
}

// convertToWebSocketEvent attaches the timer reconciled at delivery time so
// clients can render without another round trip
func (ec *EventConsumer) convertToWebSocketEvent(envelope events.Envelope) (*TimerEvent, error) {
	now := ec.clock.Now()
	event := &TimerEvent{
		ID:        envelope.EventID,
		TimerName: envelope.TimerName,
		Type:      envelope.EventType,
		Timestamp: now,
		Data:      envelope.Payload,
	}

	payload, err := ParseEventPayload(event)
	if err != nil {
		return nil, err
	}
	if changed, ok := payload.(events.TimerChangedPayload); ok {
		state := timers.Reconcile(changed.Timer, now)
		event.State = &state
	}
	return event, nil
}

// GetConsumerInfo returns information about the consumer
func (ec *EventConsumer) GetConsumerInfo(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return ec.consumer.Info(ctx)
}
