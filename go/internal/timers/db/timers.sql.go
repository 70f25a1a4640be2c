package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const timerColumns = `id, name, orange_time_ms, purple_time_ms, active_team, is_paused, last_update_time, version, created_at, updated_at`

func scanTimer(row interface{ Scan(...interface{}) error }) (Timer, error) {
	var i Timer
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.OrangeTimeMs,
		&i.PurpleTimeMs,
		&i.ActiveTeam,
		&i.IsPaused,
		&i.LastUpdateTime,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createTimer = `-- name: CreateTimer :one
INSERT INTO timers (
    id, name, orange_time_ms, purple_time_ms, active_team, is_paused, last_update_time
) VALUES (
    $1, $2, $3, $4, $5, $6, $7
)
RETURNING ` + timerColumns

type CreateTimerParams struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	OrangeTimeMs   int64          `json:"orange_time_ms"`
	PurpleTimeMs   int64          `json:"purple_time_ms"`
	ActiveTeam     sql.NullString `json:"active_team"`
	IsPaused       bool           `json:"is_paused"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}

func (q *Queries) CreateTimer(ctx context.Context, arg CreateTimerParams) (Timer, error) {
	row := q.db.QueryRowContext(ctx, createTimer,
		arg.ID,
		arg.Name,
		arg.OrangeTimeMs,
		arg.PurpleTimeMs,
		arg.ActiveTeam,
		arg.IsPaused,
		arg.LastUpdateTime,
	)
	return scanTimer(row)
}

const getTimerByName = `-- name: GetTimerByName :one
SELECT ` + timerColumns + `
FROM timers
WHERE name = $1`

func (q *Queries) GetTimerByName(ctx context.Context, name string) (Timer, error) {
	row := q.db.QueryRowContext(ctx, getTimerByName, name)
	return scanTimer(row)
}

const listTimers = `-- name: ListTimers :many
SELECT ` + timerColumns + `
FROM timers
ORDER BY name`

func (q *Queries) ListTimers(ctx context.Context) ([]Timer, error) {
	rows, err := q.db.QueryContext(ctx, listTimers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Timer
	for rows.Next() {
		i, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertTimer = `-- name: UpsertTimer :one
INSERT INTO timers (
    id, name, orange_time_ms, purple_time_ms, active_team, is_paused, last_update_time
) VALUES (
    $1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (name) DO UPDATE SET
    orange_time_ms   = EXCLUDED.orange_time_ms,
    purple_time_ms   = EXCLUDED.purple_time_ms,
    active_team      = EXCLUDED.active_team,
    is_paused        = EXCLUDED.is_paused,
    last_update_time = EXCLUDED.last_update_time,
    version          = timers.version + 1,
    updated_at       = NOW()
RETURNING ` + timerColumns

type UpsertTimerParams struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	OrangeTimeMs   int64          `json:"orange_time_ms"`
	PurpleTimeMs   int64          `json:"purple_time_ms"`
	ActiveTeam     sql.NullString `json:"active_team"`
	IsPaused       bool           `json:"is_paused"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}

func (q *Queries) UpsertTimer(ctx context.Context, arg UpsertTimerParams) (Timer, error) {
	row := q.db.QueryRowContext(ctx, upsertTimer,
		arg.ID,
		arg.Name,
		arg.OrangeTimeMs,
		arg.PurpleTimeMs,
		arg.ActiveTeam,
		arg.IsPaused,
		arg.LastUpdateTime,
	)
	return scanTimer(row)
}

const updateTimerIfVersion = `-- name: UpdateTimerIfVersion :one
UPDATE timers SET
    orange_time_ms   = $3,
    purple_time_ms   = $4,
    active_team      = $5,
    is_paused        = $6,
    last_update_time = $7,
    version          = version + 1,
    updated_at       = NOW()
WHERE name = $1 AND version = $2
RETURNING ` + timerColumns

type UpdateTimerIfVersionParams struct {
	Name           string         `json:"name"`
	Version        int64          `json:"version"`
	OrangeTimeMs   int64          `json:"orange_time_ms"`
	PurpleTimeMs   int64          `json:"purple_time_ms"`
	ActiveTeam     sql.NullString `json:"active_team"`
	IsPaused       bool           `json:"is_paused"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}

func (q *Queries) UpdateTimerIfVersion(ctx context.Context, arg UpdateTimerIfVersionParams) (Timer, error) {
	row := q.db.QueryRowContext(ctx, updateTimerIfVersion,
		arg.Name,
		arg.Version,
		arg.OrangeTimeMs,
		arg.PurpleTimeMs,
		arg.ActiveTeam,
		arg.IsPaused,
		arg.LastUpdateTime,
	)
	return scanTimer(row)
}

const deleteTimer = `-- name: DeleteTimer :execrows
DELETE FROM timers
WHERE name = $1`

func (q *Queries) DeleteTimer(ctx context.Context, name string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTimer, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertTimerOutbox = `-- name: InsertTimerOutbox :exec
INSERT INTO timer_outbox (id, timer_name, event_type, payload)
VALUES ($1, $2, $3, $4)`

type InsertTimerOutboxParams struct {
	ID        uuid.UUID       `json:"id"`
	TimerName string          `json:"timer_name"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func (q *Queries) InsertTimerOutbox(ctx context.Context, arg InsertTimerOutboxParams) error {
	_, err := q.db.ExecContext(ctx, insertTimerOutbox,
		arg.ID,
		arg.TimerName,
		arg.EventType,
		[]byte(arg.Payload),
	)
	return err
}
