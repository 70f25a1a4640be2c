package timers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialMs = int64(36000000)

func newTestApp(t *testing.T, config Config) (*App, *MemoryRepository, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(anchor)
	repo := NewMemoryRepository(clock.Now)
	return NewApp(repo, clock, config), repo, clock
}

func seedTimer(t *testing.T, repo TimerRepository, timer models.Timer) *models.Timer {
	t.Helper()
	saved, err := repo.SaveTimer(context.Background(), SaveTimerRequest{Timer: timer})
	require.NoError(t, err)
	return saved
}

func ptr[T any](v T) *T { return &v }

// failingSaveRepo rejects every write
type failingSaveRepo struct {
	*MemoryRepository
	err error
}

func (r failingSaveRepo) SaveTimer(context.Context, SaveTimerRequest) (*models.Timer, error) {
	return nil, r.err
}

// racingRepo lands a competing write between the engine's read and its write
type racingRepo struct {
	*MemoryRepository
	races int
	saves int
}

func (r *racingRepo) SaveTimer(ctx context.Context, req SaveTimerRequest) (*models.Timer, error) {
	r.saves++
	if r.races > 0 {
		r.races--
		stored, err := r.MemoryRepository.GetTimerByName(ctx, req.Timer.Name)
		if err != nil {
			return nil, err
		}
		if _, err := r.MemoryRepository.SaveTimer(ctx, SaveTimerRequest{Timer: *stored}); err != nil {
			return nil, err
		}
	}
	return r.MemoryRepository.SaveTimer(ctx, req)
}

func TestCreateTimer(t *testing.T) {
	app, _, _ := newTestApp(t, DefaultConfig())
	ctx := context.Background()

	timer, err := app.CreateTimer(ctx, "T1")
	require.NoError(t, err)

	assert.Equal(t, "T1", timer.Name)
	assert.Equal(t, initialMs, timer.OrangeTimeMs)
	assert.Equal(t, initialMs, timer.PurpleTimeMs)
	assert.Equal(t, models.TeamNone, timer.ActiveTeam)
	assert.True(t, timer.IsPaused)
	assert.True(t, anchor.Equal(timer.LastUpdateTime))
	assert.Equal(t, int64(1), timer.Version)

	_, err = app.CreateTimer(ctx, "T1")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = app.CreateTimer(ctx, "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateTimerUsesConfiguredDuration(t *testing.T) {
	app, _, _ := newTestApp(t, Config{InitialDuration: 5 * time.Minute})

	timer, err := app.CreateTimer(context.Background(), "short")
	require.NoError(t, err)

	assert.Equal(t, int64(300000), timer.OrangeTimeMs)
	assert.Equal(t, int64(300000), timer.PurpleTimeMs)
}

func TestEnsureTimers(t *testing.T) {
	app, _, _ := newTestApp(t, DefaultConfig())
	ctx := context.Background()

	_, err := app.CreateTimer(ctx, "main")
	require.NoError(t, err)
	_, err = app.UpdateTimer(ctx, "main", UpdateTimerRequest{OrangeTimeMs: ptr(int64(42))})
	require.NoError(t, err)

	require.NoError(t, app.EnsureTimers(ctx, "main", "side"))
	require.NoError(t, app.EnsureTimers(ctx, "main", "side"))

	timers, err := app.GetAllTimers(ctx)
	require.NoError(t, err)
	require.Len(t, timers, 2)
	assert.Equal(t, "main", timers[0].Name)
	assert.Equal(t, int64(42), timers[0].OrangeTimeMs, "existing timers are left alone")
	assert.Equal(t, "side", timers[1].Name)
}

func TestNotFound(t *testing.T) {
	app, _, _ := newTestApp(t, DefaultConfig())
	ctx := context.Background()

	_, err := app.GetTimerByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = app.GetCurrentTimerState(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = app.UpdateTimer(ctx, "missing", UpdateTimerRequest{IsPaused: ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = app.ResetTimer(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = app.DeleteTimer(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	timers, err := app.GetAllTimers(ctx)
	require.NoError(t, err)
	assert.Empty(t, timers, "a failed update must not create the timer")
}

func TestGetCurrentTimerStateMonotonic(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

	prev, err := app.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		clock.Advance(7 * time.Second)
		state, err := app.GetCurrentTimerState(ctx, "T1")
		require.NoError(t, err)

		assert.LessOrEqual(t, state.OrangeTimeMs, prev.OrangeTimeMs)
		assert.GreaterOrEqual(t, state.OrangeTimeMs, int64(0))
		assert.Equal(t, int64(50000), state.PurpleTimeMs)
		prev = state
	}
	assert.Equal(t, int64(0), prev.OrangeTimeMs)
}

func TestGetCurrentTimerStateDoesNotWrite(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamPurple, 100000, 50000))

	before, err := repo.GetTimerByName(ctx, "T1")
	require.NoError(t, err)

	clock.Advance(3 * time.Second)
	first, err := app.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)
	second, err := app.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)

	after, err := repo.GetTimerByName(ctx, "T1")
	require.NoError(t, err)

	assert.Equal(t, *before, *after)
	assert.Equal(t, *first, *second)
	assert.Equal(t, int64(47000), first.PurpleTimeMs)
}

func TestUpdateTimerCrystallizesElapsedTime(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

	clock.Advance(30 * time.Second)
	timer, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{IsPaused: ptr(true)})
	require.NoError(t, err)

	assert.Equal(t, int64(70000), timer.OrangeTimeMs)
	assert.Equal(t, int64(50000), timer.PurpleTimeMs)
	assert.True(t, timer.IsPaused)
	assert.Equal(t, models.TeamOrange, timer.ActiveTeam)
	assert.True(t, clock.Now().Equal(timer.LastUpdateTime))

	stored, err := app.GetTimerByName(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, *timer, *stored)
}

func TestUpdateTimerSubMillisecondWritesKeepElapsedTime(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

	for i := 0; i < 1000; i++ {
		clock.Advance(1999 * time.Microsecond)
		_, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{})
		require.NoError(t, err)
	}

	// 1000 * 1.999ms = 1999ms of orange time, the last 0.999ms not yet whole.
	timer, err := app.GetTimerByName(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(98001), timer.OrangeTimeMs)
	assert.Equal(t, int64(50000), timer.PurpleTimeMs)
	assert.True(t, timer.LastUpdateTime.Equal(clock.Now().Truncate(time.Millisecond)))

	state, err := app.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(98001), state.OrangeTimeMs)
}

func TestUpdateTimerExplicitTimeBypassesCrystallization(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

	clock.Advance(30 * time.Second)
	timer, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{OrangeTimeMs: ptr(int64(5000))})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), timer.OrangeTimeMs)
	assert.Equal(t, int64(50000), timer.PurpleTimeMs)
	assert.False(t, timer.IsPaused)
	assert.True(t, clock.Now().Equal(timer.LastUpdateTime))
}

func TestUpdateTimerExplicitTimeSkipsActiveTeamDeduction(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamPurple, 100000, 50000))

	clock.Advance(10 * time.Second)
	timer, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{OrangeTimeMs: ptr(int64(90000))})
	require.NoError(t, err)

	assert.Equal(t, int64(90000), timer.OrangeTimeMs)
	assert.Equal(t, int64(50000), timer.PurpleTimeMs, "caller-supplied times are trusted as already reconciled")
}

func TestUpdateTimerFloorsAtZero(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamPurple, 100000, 2000))

	clock.Advance(time.Minute)
	timer, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{ActiveTeam: ptr(models.TeamOrange)})
	require.NoError(t, err)

	assert.Equal(t, int64(0), timer.PurpleTimeMs)
	assert.Equal(t, int64(100000), timer.OrangeTimeMs)
	assert.Equal(t, models.TeamOrange, timer.ActiveTeam)
}

func TestUpdateTimerReanchorsPausedTimer(t *testing.T) {
	app, _, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()

	_, err := app.CreateTimer(ctx, "T1")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	timer, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{})
	require.NoError(t, err)

	assert.Equal(t, initialMs, timer.OrangeTimeMs)
	assert.Equal(t, initialMs, timer.PurpleTimeMs)
	assert.True(t, clock.Now().Equal(timer.LastUpdateTime))
}

func TestUpdateTimerClearsActiveTeam(t *testing.T) {
	app, repo, clock := newTestApp(t, DefaultConfig())
	ctx := context.Background()
	seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

	clock.Advance(time.Second)
	timer, err := app.UpdateTimer(ctx, "T1", UpdateTimerRequest{ActiveTeam: ptr(models.TeamNone)})
	require.NoError(t, err)

	assert.Equal(t, models.TeamNone, timer.ActiveTeam)
	assert.Equal(t, int64(99000), timer.OrangeTimeMs)
}

func TestUpdateTimerValidation(t *testing.T) {
	tests := []struct {
		name string
		req  UpdateTimerRequest
	}{
		{name: "negative orange", req: UpdateTimerRequest{OrangeTimeMs: ptr(int64(-1))}},
		{name: "negative purple", req: UpdateTimerRequest{PurpleTimeMs: ptr(int64(-5000))}},
		{name: "unknown team", req: UpdateTimerRequest{ActiveTeam: ptr(models.Team("green"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, repo, clock := newTestApp(t, DefaultConfig())
			ctx := context.Background()
			before := seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

			clock.Advance(time.Second)
			_, err := app.UpdateTimer(ctx, "T1", tt.req)
			assert.ErrorIs(t, err, ErrInvalidArgument)

			after, err := repo.GetTimerByName(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, *before, *after)
		})
	}
}

func TestResetTimer(t *testing.T) {
	starts := []models.Timer{
		runningTimer(models.TeamOrange, 12, 34),
		runningTimer(models.TeamPurple, 0, 0),
		func() models.Timer {
			tm := runningTimer(models.TeamNone, 999, 1)
			tm.IsPaused = true
			return tm
		}(),
	}

	for i, start := range starts {
		t.Run(fmt.Sprintf("state %d", i), func(t *testing.T) {
			app, repo, clock := newTestApp(t, DefaultConfig())
			seedTimer(t, repo, start)

			clock.Advance(17 * time.Second)
			timer, err := app.ResetTimer(context.Background(), "T1")
			require.NoError(t, err)

			assert.Equal(t, initialMs, timer.OrangeTimeMs)
			assert.Equal(t, initialMs, timer.PurpleTimeMs)
			assert.Equal(t, models.TeamNone, timer.ActiveTeam)
			assert.True(t, timer.IsPaused)
			assert.True(t, clock.Now().Equal(timer.LastUpdateTime))
		})
	}
}

func TestUpdateTimerStoreFailureLeavesTimerUnchanged(t *testing.T) {
	clock := clockwork.NewFakeClockAt(anchor)
	mem := NewMemoryRepository(clock.Now)
	before := seedTimer(t, mem, runningTimer(models.TeamOrange, 100000, 50000))

	storeErr := fmt.Errorf("save timer: %w: connection refused", ErrStoreFailure)
	app := NewApp(failingSaveRepo{MemoryRepository: mem, err: storeErr}, clock, DefaultConfig())

	clock.Advance(30 * time.Second)
	_, err := app.UpdateTimer(context.Background(), "T1", UpdateTimerRequest{IsPaused: ptr(true)})
	assert.ErrorIs(t, err, ErrStoreFailure)

	after, err := mem.GetTimerByName(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
}

func TestDeleteTimer(t *testing.T) {
	app, _, _ := newTestApp(t, DefaultConfig())
	ctx := context.Background()

	_, err := app.CreateTimer(ctx, "T1")
	require.NoError(t, err)
	require.NoError(t, app.DeleteTimer(ctx, "T1"))

	_, err = app.GetTimerByName(ctx, "T1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWritePolicy(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		races     int
		wantErr   error
		wantSaves int
	}{
		{
			name:      "last write wins ignores racing writer",
			config:    DefaultConfig(),
			races:     1,
			wantSaves: 1,
		},
		{
			name:      "compare and swap retries until the row is stable",
			config:    Config{WritePolicy: WritePolicyCompareAndSwap, MaxConflictRetries: 2},
			races:     2,
			wantSaves: 3,
		},
		{
			name:      "compare and swap gives up after retries",
			config:    Config{WritePolicy: WritePolicyCompareAndSwap, MaxConflictRetries: 2},
			races:     3,
			wantErr:   ErrConflict,
			wantSaves: 3,
		},
		{
			name:      "compare and swap without retries",
			config:    Config{WritePolicy: WritePolicyCompareAndSwap},
			races:     1,
			wantErr:   ErrConflict,
			wantSaves: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(anchor)
			repo := &racingRepo{MemoryRepository: NewMemoryRepository(clock.Now)}
			seedTimer(t, repo.MemoryRepository, runningTimer(models.TeamOrange, 100000, 50000))
			repo.races = tt.races

			app := NewApp(repo, clock, tt.config)
			clock.Advance(10 * time.Second)
			timer, err := app.UpdateTimer(context.Background(), "T1", UpdateTimerRequest{IsPaused: ptr(true)})

			assert.Equal(t, tt.wantSaves, repo.saves)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(90000), timer.OrangeTimeMs)
			assert.True(t, timer.IsPaused)
		})
	}
}

func TestMemoryRepositoryVersioning(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(func() time.Time { return anchor })

	created, err := repo.CreateTimer(ctx, runningTimer(models.TeamNone, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	saved, err := repo.SaveTimer(ctx, SaveTimerRequest{Timer: *created, ExpectedVersion: ptr(int64(1))})
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, created.ID, saved.ID)

	_, err = repo.SaveTimer(ctx, SaveTimerRequest{Timer: *created, ExpectedVersion: ptr(int64(1))})
	assert.ErrorIs(t, err, ErrConflict)

	missing := runningTimer(models.TeamNone, 1, 1)
	missing.Name = "other"
	_, err = repo.SaveTimer(ctx, SaveTimerRequest{Timer: missing, ExpectedVersion: ptr(int64(1))})
	assert.ErrorIs(t, err, ErrNotFound)

	// returned rows are copies
	saved.OrangeTimeMs = 12345
	stored, err := repo.GetTimerByName(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.OrangeTimeMs)

	assert.True(t, errors.Is(repo.DeleteTimer(ctx, "nope", anchor), ErrNotFound))
}
