package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pendingAlertThreshold flags a backlog the relay is not keeping up with
const pendingAlertThreshold = 1000

type HealthStatus struct {
	Healthy           bool          `json:"healthy"`
	PendingEvents     int           `json:"pending_events"`
	DatabaseConnected bool          `json:"database_connected"`
	NATSConnected     bool          `json:"nats_connected"`
	ListenerActive    bool          `json:"listener_active"`
	Stats             StatsSnapshot `json:"stats"`
	Errors            []string      `json:"errors"`
}

// HealthStore is what the health check needs from the outbox table
type HealthStore interface {
	Ping(ctx context.Context) error
	CountPending(ctx context.Context) (int, error)
}

type HealthChecker struct {
	store     HealthStore
	connected func() bool
	running   func() bool
	stats     *Stats
	clock     clockwork.Clock
	threshold time.Duration // How long pending events may sit before unhealthy
	startedAt time.Time
}

// NewHealthChecker builds a checker. connected reports broker connectivity
// and running reports whether the listener loop is active.
func NewHealthChecker(store HealthStore, connected, running func() bool, stats *Stats, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		store:     store,
		connected: connected,
		running:   running,
		stats:     stats,
		clock:     clock,
		threshold: threshold,
		startedAt: clock.Now(),
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Stats:   h.stats.Snapshot(),
		Errors:  []string{},
	}

	if err := h.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	status.NATSConnected = h.connected()
	if !status.NATSConnected {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	status.ListenerActive = h.running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.store.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > pendingAlertThreshold {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// A backlog with nothing processed yet has been waiting since start
	last := status.Stats.LastEventTime
	if last.IsZero() {
		last = h.startedAt
	}
	if status.PendingEvents > 0 {
		if since := h.clock.Since(last); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
