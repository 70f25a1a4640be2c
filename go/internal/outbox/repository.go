package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metagame/metagame/go/internal/timers/events"
)

// ErrEventNotFound is returned when an outbox row is missing or already sent
var ErrEventNotFound = errors.New("outbox event not found or already sent")

const outboxColumns = `id, timer_name, event_type, payload, created_at, sent_at`

const fetchUnsentByID = `SELECT ` + outboxColumns + `
FROM timer_outbox
WHERE id = $1 AND sent_at IS NULL`

const fetchUnsent = `SELECT ` + outboxColumns + `
FROM timer_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`

const markSent = `UPDATE timer_outbox SET sent_at = $2 WHERE id = $1`

const countPending = `SELECT COUNT(*) FROM timer_outbox WHERE sent_at IS NULL`

// Repository reads and acknowledges timer_outbox rows through a pgx pool
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchByID returns the unsent event with the given id
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.pool.QueryRow(ctx, fetchUnsentByID, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return event, nil
}

// FetchUnsent returns up to limit unsent events, oldest first
func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, fetchUnsent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var result []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		result = append(result, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}
	return result, nil
}

// MarkSent records that the event reached the broker
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	if _, err := r.pool.Exec(ctx, markSent, id, sentAt); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

// CountPending returns the number of events not yet published
func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

// Ping checks the pool can reach postgres
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanEvent(row pgx.Row) (*OutboxEvent, error) {
	var (
		event     OutboxEvent
		eventType string
		payload   []byte
		sentAt    *time.Time
	)
	if err := row.Scan(&event.ID, &event.TimerName, &eventType, &payload, &event.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	event.EventType = events.EventType(eventType)
	event.Payload = payload
	event.SentAt = sentAt
	return &event, nil
}
