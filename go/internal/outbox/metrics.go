package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/timers/events"
)

// MetricsCollector receives relay measurements
type MetricsCollector interface {
	RecordEventProcessed(eventType events.EventType, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordPublishAttempt(eventType events.EventType, attempt int, success bool)
}

// NoOpMetricsCollector discards everything
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventProcessed(events.EventType, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordBatchProcessed(int, time.Duration)                   {}
func (NoOpMetricsCollector) RecordPublishAttempt(events.EventType, int, bool)          {}

// Stats keeps running counters for the health endpoint
type Stats struct {
	clock clockwork.Clock

	mu            sync.Mutex
	processed     uint64
	failed        uint64
	retries       uint64
	batches       uint64
	lastEventTime time.Time
	byType        map[events.EventType]uint64
}

func NewStats(clock clockwork.Clock) *Stats {
	return &Stats{
		clock:  clock,
		byType: make(map[events.EventType]uint64),
	}
}

func (s *Stats) RecordEventProcessed(eventType events.EventType, success bool, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !success {
		s.failed++
		return
	}
	s.processed++
	s.byType[eventType]++
	s.lastEventTime = s.clock.Now()
}

func (s *Stats) RecordBatchProcessed(count int, _ time.Duration) {
	if count == 0 {
		return
	}
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
}

func (s *Stats) RecordPublishAttempt(_ events.EventType, attempt int, _ bool) {
	if attempt <= 1 {
		return
	}
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Processed     uint64                      `json:"events_processed"`
	Failed        uint64                      `json:"events_failed"`
	Retries       uint64                      `json:"publish_retries"`
	Batches       uint64                      `json:"fallback_batches"`
	LastEventTime time.Time                   `json:"last_event_time"`
	ByType        map[events.EventType]uint64 `json:"by_type"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType := make(map[events.EventType]uint64, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return StatsSnapshot{
		Processed:     s.processed,
		Failed:        s.failed,
		Retries:       s.retries,
		Batches:       s.batches,
		LastEventTime: s.lastEventTime,
		ByType:        byType,
	}
}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector, clock clockwork.Clock) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := p.clock.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordEventProcessed(event.EventType, err == nil, p.clock.Since(start))
	return err
}
