package timers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/sqlutil"
	"github.com/metagame/metagame/go/internal/timers/db"
	"github.com/metagame/metagame/go/internal/timers/events"
)

// pqUniqueViolation is the SQLSTATE postgres returns for a duplicate key
const pqUniqueViolation = "23505"

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateTimer(ctx context.Context, arg db.CreateTimerParams) (db.Timer, error)
	GetTimerByName(ctx context.Context, name string) (db.Timer, error)
	ListTimers(ctx context.Context) ([]db.Timer, error)
	UpsertTimer(ctx context.Context, arg db.UpsertTimerParams) (db.Timer, error)
	UpdateTimerIfVersion(ctx context.Context, arg db.UpdateTimerIfVersionParams) (db.Timer, error)
	DeleteTimer(ctx context.Context, name string) (int64, error)
	InsertTimerOutbox(ctx context.Context, arg db.InsertTimerOutboxParams) error
}

// Repository implements timer data access on postgres. Every write is paired
// with a timer_outbox row in the same transaction.
type Repository struct {
	queries Querier
	inTx    func(ctx context.Context, fn func(q Querier) error) error
}

// NewRepository creates a new timers repository backed by database
func NewRepository(database *sql.DB) *Repository {
	queries := db.New(database)
	return &Repository{
		queries: queries,
		inTx: func(ctx context.Context, fn func(q Querier) error) error {
			return sqlutil.Run(ctx, database, queries.WithTx, func(q *db.Queries) error {
				return fn(q)
			})
		},
	}
}

// newRepositoryWithQuerier runs "transactions" directly against q. Used in tests.
func newRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{
		queries: q,
		inTx: func(ctx context.Context, fn func(q Querier) error) error {
			return fn(q)
		},
	}
}

// GetTimerByName retrieves a timer by its unique name
func (r *Repository) GetTimerByName(ctx context.Context, name string) (*models.Timer, error) {
	timer, err := r.queries.GetTimerByName(ctx, name)
	if err != nil {
		return nil, classify("get timer", err)
	}
	return dbTimerToModel(timer), nil
}

// ListTimers returns all timers ordered by name
func (r *Repository) ListTimers(ctx context.Context) ([]models.Timer, error) {
	rows, err := r.queries.ListTimers(ctx)
	if err != nil {
		return nil, classify("list timers", err)
	}

	result := make([]models.Timer, len(rows))
	for i, row := range rows {
		result[i] = *dbTimerToModel(row)
	}
	return result, nil
}

// CreateTimer inserts a new timer and a TimerCreated outbox event
func (r *Repository) CreateTimer(ctx context.Context, timer models.Timer) (*models.Timer, error) {
	var created db.Timer
	err := r.inTx(ctx, func(q Querier) error {
		row, err := q.CreateTimer(ctx, db.CreateTimerParams{
			ID:             timer.ID,
			Name:           timer.Name,
			OrangeTimeMs:   timer.OrangeTimeMs,
			PurpleTimeMs:   timer.PurpleTimeMs,
			ActiveTeam:     sqlutil.ToSqlStringOrNull(string(timer.ActiveTeam)),
			IsPaused:       timer.IsPaused,
			LastUpdateTime: timer.LastUpdateTime,
		})
		if err != nil {
			return err
		}
		created = row

		return insertOutbox(ctx, q, row.Name, events.EventTypeTimerCreated, events.TimerChangedPayload{
			Timer:     *dbTimerToModel(row),
			ChangedAt: row.LastUpdateTime,
		})
	})
	if err != nil {
		return nil, classify("create timer", err)
	}
	return dbTimerToModel(created), nil
}

// SaveTimer writes the full timer state by name. When ExpectedVersion is set
// the write only succeeds if the stored version still matches.
func (r *Repository) SaveTimer(ctx context.Context, req SaveTimerRequest) (*models.Timer, error) {
	var saved db.Timer
	err := r.inTx(ctx, func(q Querier) error {
		row, err := r.writeTimer(ctx, q, req)
		if err != nil {
			return err
		}
		saved = row

		eventType := req.EventType
		if eventType == "" {
			eventType = events.EventTypeTimerUpdated
		}
		return insertOutbox(ctx, q, row.Name, eventType, events.TimerChangedPayload{
			Timer:     *dbTimerToModel(row),
			Reason:    req.Reason,
			ChangedAt: row.LastUpdateTime,
		})
	})
	if err != nil {
		return nil, classify("save timer", err)
	}
	return dbTimerToModel(saved), nil
}

func (r *Repository) writeTimer(ctx context.Context, q Querier, req SaveTimerRequest) (db.Timer, error) {
	t := req.Timer
	activeTeam := sqlutil.ToSqlStringOrNull(string(t.ActiveTeam))

	if req.ExpectedVersion == nil {
		return q.UpsertTimer(ctx, db.UpsertTimerParams{
			ID:             t.ID,
			Name:           t.Name,
			OrangeTimeMs:   t.OrangeTimeMs,
			PurpleTimeMs:   t.PurpleTimeMs,
			ActiveTeam:     activeTeam,
			IsPaused:       t.IsPaused,
			LastUpdateTime: t.LastUpdateTime,
		})
	}

	row, err := q.UpdateTimerIfVersion(ctx, db.UpdateTimerIfVersionParams{
		Name:           t.Name,
		Version:        *req.ExpectedVersion,
		OrangeTimeMs:   t.OrangeTimeMs,
		PurpleTimeMs:   t.PurpleTimeMs,
		ActiveTeam:     activeTeam,
		IsPaused:       t.IsPaused,
		LastUpdateTime: t.LastUpdateTime,
	})
	if errors.Is(err, sql.ErrNoRows) {
		// no row matched: either the timer is gone or its version moved
		if _, getErr := q.GetTimerByName(ctx, t.Name); getErr != nil {
			return db.Timer{}, getErr
		}
		return db.Timer{}, ErrConflict
	}
	return row, err
}

// DeleteTimer removes a timer and records a TimerDeleted outbox event
func (r *Repository) DeleteTimer(ctx context.Context, name string, deletedAt time.Time) error {
	err := r.inTx(ctx, func(q Querier) error {
		rows, err := q.DeleteTimer(ctx, name)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}

		return insertOutbox(ctx, q, name, events.EventTypeTimerDeleted, events.TimerDeletedPayload{
			Name:      name,
			DeletedAt: deletedAt,
		})
	})
	if err != nil {
		return classify("delete timer", err)
	}
	return nil
}

func insertOutbox(ctx context.Context, q Querier, timerName string, eventType events.EventType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	err = q.InsertTimerOutbox(ctx, db.InsertTimerOutboxParams{
		ID:        uuid.New(),
		TimerName: timerName,
		EventType: string(eventType),
		Payload:   data,
	})
	if err != nil {
		return fmt.Errorf("insert outbox %s: %w", eventType, err)
	}
	return nil
}

// classify maps driver errors onto the package sentinels
func classify(op string, err error) error {
	var pqErr *pq.Error
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation:
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
	}
}

// dbTimerToModel converts a database timer to domain model
func dbTimerToModel(t db.Timer) *models.Timer {
	return &models.Timer{
		ID:             t.ID,
		Name:           t.Name,
		OrangeTimeMs:   t.OrangeTimeMs,
		PurpleTimeMs:   t.PurpleTimeMs,
		ActiveTeam:     models.Team(sqlutil.FromSqlString(t.ActiveTeam, "")),
		IsPaused:       t.IsPaused,
		LastUpdateTime: t.LastUpdateTime,
		Version:        t.Version,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
