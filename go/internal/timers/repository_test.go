package timers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers/db"
	"github.com/metagame/metagame/go/internal/timers/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier is an in-memory stand-in for the generated queries
type fakeQuerier struct {
	rows   map[string]db.Timer
	outbox []db.InsertTimerOutboxParams
	err    error
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{rows: make(map[string]db.Timer)}
}

func (f *fakeQuerier) CreateTimer(_ context.Context, arg db.CreateTimerParams) (db.Timer, error) {
	if f.err != nil {
		return db.Timer{}, f.err
	}
	if _, ok := f.rows[arg.Name]; ok {
		return db.Timer{}, &pq.Error{Code: pqUniqueViolation, Message: "duplicate key value"}
	}
	row := db.Timer{
		ID:             arg.ID,
		Name:           arg.Name,
		OrangeTimeMs:   arg.OrangeTimeMs,
		PurpleTimeMs:   arg.PurpleTimeMs,
		ActiveTeam:     arg.ActiveTeam,
		IsPaused:       arg.IsPaused,
		LastUpdateTime: arg.LastUpdateTime,
		Version:        1,
	}
	f.rows[arg.Name] = row
	return row, nil
}

func (f *fakeQuerier) GetTimerByName(_ context.Context, name string) (db.Timer, error) {
	if f.err != nil {
		return db.Timer{}, f.err
	}
	row, ok := f.rows[name]
	if !ok {
		return db.Timer{}, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeQuerier) ListTimers(context.Context) ([]db.Timer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var rows []db.Timer
	for _, name := range []string{"a", "b", "c"} {
		if row, ok := f.rows[name]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeQuerier) UpsertTimer(_ context.Context, arg db.UpsertTimerParams) (db.Timer, error) {
	if f.err != nil {
		return db.Timer{}, f.err
	}
	row, ok := f.rows[arg.Name]
	if !ok {
		row = db.Timer{ID: arg.ID, Name: arg.Name}
	}
	row.OrangeTimeMs = arg.OrangeTimeMs
	row.PurpleTimeMs = arg.PurpleTimeMs
	row.ActiveTeam = arg.ActiveTeam
	row.IsPaused = arg.IsPaused
	row.LastUpdateTime = arg.LastUpdateTime
	row.Version++
	f.rows[arg.Name] = row
	return row, nil
}

func (f *fakeQuerier) UpdateTimerIfVersion(_ context.Context, arg db.UpdateTimerIfVersionParams) (db.Timer, error) {
	if f.err != nil {
		return db.Timer{}, f.err
	}
	row, ok := f.rows[arg.Name]
	if !ok || row.Version != arg.Version {
		return db.Timer{}, sql.ErrNoRows
	}
	row.OrangeTimeMs = arg.OrangeTimeMs
	row.PurpleTimeMs = arg.PurpleTimeMs
	row.ActiveTeam = arg.ActiveTeam
	row.IsPaused = arg.IsPaused
	row.LastUpdateTime = arg.LastUpdateTime
	row.Version++
	f.rows[arg.Name] = row
	return row, nil
}

func (f *fakeQuerier) DeleteTimer(_ context.Context, name string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if _, ok := f.rows[name]; !ok {
		return 0, nil
	}
	delete(f.rows, name)
	return 1, nil
}

func (f *fakeQuerier) InsertTimerOutbox(_ context.Context, arg db.InsertTimerOutboxParams) error {
	if f.err != nil {
		return f.err
	}
	f.outbox = append(f.outbox, arg)
	return nil
}

func TestRepositoryCreateTimer(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)
	ctx := context.Background()

	timer, err := repo.CreateTimer(ctx, models.Timer{
		ID:             uuid.New(),
		Name:           "a",
		OrangeTimeMs:   initialMs,
		PurpleTimeMs:   initialMs,
		IsPaused:       true,
		LastUpdateTime: anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TeamNone, timer.ActiveTeam)
	assert.False(t, q.rows["a"].ActiveTeam.Valid, "no team is stored as NULL")

	require.Len(t, q.outbox, 1)
	assert.Equal(t, string(events.EventTypeTimerCreated), q.outbox[0].EventType)
	assert.Equal(t, "a", q.outbox[0].TimerName)

	_, err = repo.CreateTimer(ctx, models.Timer{ID: uuid.New(), Name: "a"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRepositorySaveTimerWritesOutbox(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)
	ctx := context.Background()

	saved, err := repo.SaveTimer(ctx, SaveTimerRequest{
		Timer:     runningTimer(models.TeamOrange, 1000, 2000),
		EventType: events.EventTypeTimerReset,
		Reason:    "reset",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TeamOrange, saved.ActiveTeam)
	assert.Equal(t, "orange", q.rows["T1"].ActiveTeam.String)

	require.Len(t, q.outbox, 1)
	assert.Equal(t, string(events.EventTypeTimerReset), q.outbox[0].EventType)

	var payload events.TimerChangedPayload
	require.NoError(t, json.Unmarshal(q.outbox[0].Payload, &payload))
	assert.Equal(t, "reset", payload.Reason)
	assert.Equal(t, int64(1000), payload.Timer.OrangeTimeMs)
	assert.Equal(t, models.TeamOrange, payload.Timer.ActiveTeam)
	assert.True(t, anchor.Equal(payload.ChangedAt))
}

func TestRepositorySaveTimerDefaultsToUpdatedEvent(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)

	_, err := repo.SaveTimer(context.Background(), SaveTimerRequest{Timer: runningTimer(models.TeamNone, 1, 1)})
	require.NoError(t, err)

	require.Len(t, q.outbox, 1)
	assert.Equal(t, string(events.EventTypeTimerUpdated), q.outbox[0].EventType)
}

func TestRepositorySaveTimerCompareAndSwap(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)
	ctx := context.Background()

	first, err := repo.SaveTimer(ctx, SaveTimerRequest{Timer: runningTimer(models.TeamNone, 1, 1)})
	require.NoError(t, err)

	stale := first.Version - 1
	_, err = repo.SaveTimer(ctx, SaveTimerRequest{Timer: *first, ExpectedVersion: &stale})
	assert.ErrorIs(t, err, ErrConflict)

	current := first.Version
	second, err := repo.SaveTimer(ctx, SaveTimerRequest{Timer: *first, ExpectedVersion: &current})
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)

	missing := runningTimer(models.TeamNone, 1, 1)
	missing.Name = "gone"
	_, err = repo.SaveTimer(ctx, SaveTimerRequest{Timer: missing, ExpectedVersion: &current})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryDeleteTimer(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)
	ctx := context.Background()
	deletedAt := anchor.Add(time.Minute)

	_, err := repo.SaveTimer(ctx, SaveTimerRequest{Timer: runningTimer(models.TeamNone, 1, 1)})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteTimer(ctx, "T1", deletedAt))
	require.Len(t, q.outbox, 2)
	assert.Equal(t, string(events.EventTypeTimerDeleted), q.outbox[1].EventType)

	var payload events.TimerDeletedPayload
	require.NoError(t, json.Unmarshal(q.outbox[1].Payload, &payload))
	assert.Equal(t, "T1", payload.Name)
	assert.True(t, deletedAt.Equal(payload.DeletedAt))

	err = repo.DeleteTimer(ctx, "T1", deletedAt)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryErrors(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)
	ctx := context.Background()

	_, err := repo.GetTimerByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	driverErr := errors.New("connection reset by peer")
	q.err = driverErr

	_, err = repo.GetTimerByName(ctx, "a")
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, driverErr)

	_, err = repo.ListTimers(ctx)
	assert.ErrorIs(t, err, ErrStoreFailure)

	_, err = repo.SaveTimer(ctx, SaveTimerRequest{Timer: runningTimer(models.TeamNone, 1, 1)})
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestRepositoryListTimers(t *testing.T) {
	q := newFakeQuerier()
	repo := newRepositoryWithQuerier(q)
	ctx := context.Background()

	for _, name := range []string{"b", "a"} {
		timer := runningTimer(models.TeamPurple, 5, 6)
		timer.Name = name
		_, err := repo.SaveTimer(ctx, SaveTimerRequest{Timer: timer})
		require.NoError(t, err)
	}

	timers, err := repo.ListTimers(ctx)
	require.NoError(t, err)
	require.Len(t, timers, 2)
	assert.Equal(t, "a", timers[0].Name)
	assert.Equal(t, models.TeamPurple, timers[1].ActiveTeam)
}
