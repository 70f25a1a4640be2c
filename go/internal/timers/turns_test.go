package timers

import (
	"context"
	"testing"
	"time"

	"github.com/metagame/metagame/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyEngine records UpdateTimer calls
type spyEngine struct {
	*App
	updates int
}

func (s *spyEngine) UpdateTimer(ctx context.Context, name string, req UpdateTimerRequest) (*models.Timer, error) {
	s.updates++
	return s.App.UpdateTimer(ctx, name, req)
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name      string
		requested models.Team
		active    models.Team
		action    Action
		allowed   bool
	}{
		{"start own team", models.TeamOrange, models.TeamNone, StartTurn(models.TeamOrange), true},
		{"start other team", models.TeamPurple, models.TeamNone, StartTurn(models.TeamOrange), false},
		{"start other team while it runs", models.TeamPurple, models.TeamOrange, StartTurn(models.TeamOrange), false},
		{"unattributed start", models.TeamNone, models.TeamPurple, StartTurn(models.TeamOrange), true},
		{"end own turn", models.TeamOrange, models.TeamOrange, EndTurn, true},
		{"end turn with nobody active", models.TeamPurple, models.TeamNone, EndTurn, true},
		{"end other team's turn", models.TeamPurple, models.TeamOrange, EndTurn, false},
		{"unattributed end turn", models.TeamNone, models.TeamOrange, EndTurn, true},
		{"pause always allowed", models.TeamPurple, models.TeamOrange, Action{Kind: ActionPause}, true},
		{"reset always allowed", models.TeamOrange, models.TeamPurple, Action{Kind: ActionReset}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.requested, tt.active, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestNextTeam(t *testing.T) {
	assert.Equal(t, models.TeamPurple, NextTeam(models.TeamNone, models.TeamPurple))
	assert.Equal(t, models.TeamOrange, NextTeam(models.TeamNone, models.TeamOrange))
	assert.Equal(t, models.TeamNone, NextTeam(models.TeamNone, models.TeamNone))

	for _, requested := range []models.Team{models.TeamNone, models.TeamOrange, models.TeamPurple} {
		assert.Equal(t, models.TeamPurple, NextTeam(models.TeamOrange, requested))
		assert.Equal(t, models.TeamOrange, NextTeam(models.TeamPurple, requested))
	}
}

func newTestTurns(t *testing.T) (*Turns, *spyEngine, *MemoryRepository, func(time.Duration)) {
	t.Helper()
	app, repo, clock := newTestApp(t, DefaultConfig())
	spy := &spyEngine{App: app}
	return NewTurns(spy), spy, repo, clock.Advance
}

func TestStartForTeamForbiddenLeavesStateAlone(t *testing.T) {
	turns, spy, _, advance := newTestTurns(t)
	ctx := context.Background()

	_, err := spy.CreateTimer(ctx, "T1")
	require.NoError(t, err)
	before, err := spy.GetTimerByName(ctx, "T1")
	require.NoError(t, err)

	advance(5 * time.Second)
	_, err = turns.StartForTeam(ctx, "T1", models.TeamPurple, models.TeamOrange)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, spy.updates)

	after, err := spy.GetTimerByName(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
}

func TestSwitchTurnForbiddenLeavesStateAlone(t *testing.T) {
	turns, spy, repo, advance := newTestTurns(t)
	ctx := context.Background()
	before := seedTimer(t, repo, runningTimer(models.TeamOrange, 100000, 50000))

	advance(5 * time.Second)
	_, err := turns.SwitchTurn(ctx, "T1", models.TeamPurple)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, spy.updates)

	after, err := repo.GetTimerByName(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
}

func TestStartForTeamRequiresTeam(t *testing.T) {
	turns, spy, _, _ := newTestTurns(t)
	ctx := context.Background()
	_, err := spy.CreateTimer(ctx, "T1")
	require.NoError(t, err)

	_, err = turns.StartForTeam(ctx, "T1", models.TeamNone, models.TeamNone)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, spy.updates)
}

func TestSwitchTurn(t *testing.T) {
	tests := []struct {
		name      string
		active    models.Team
		requested models.Team
		want      models.Team
	}{
		{"nobody active, purple asks", models.TeamNone, models.TeamPurple, models.TeamPurple},
		{"nobody active, unattributed", models.TeamNone, models.TeamNone, models.TeamNone},
		{"orange hands over", models.TeamOrange, models.TeamOrange, models.TeamPurple},
		{"purple hands over", models.TeamPurple, models.TeamPurple, models.TeamOrange},
		{"unattributed from orange", models.TeamOrange, models.TeamNone, models.TeamPurple},
		{"unattributed from purple", models.TeamPurple, models.TeamNone, models.TeamOrange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns, _, repo, _ := newTestTurns(t)
			start := runningTimer(tt.active, 100000, 50000)
			start.IsPaused = true
			seedTimer(t, repo, start)

			timer, err := turns.SwitchTurn(context.Background(), "T1", tt.requested)
			require.NoError(t, err)

			assert.Equal(t, tt.want, timer.ActiveTeam)
			assert.False(t, timer.IsPaused)
		})
	}
}

func TestPauseClearsActiveTeam(t *testing.T) {
	turns, _, repo, advance := newTestTurns(t)
	seedTimer(t, repo, runningTimer(models.TeamPurple, 100000, 50000))

	advance(20 * time.Second)
	timer, err := turns.Pause(context.Background(), "T1")
	require.NoError(t, err)

	assert.True(t, timer.IsPaused)
	assert.Equal(t, models.TeamNone, timer.ActiveTeam)
	assert.Equal(t, int64(30000), timer.PurpleTimeMs)
	assert.Equal(t, int64(100000), timer.OrangeTimeMs)
}

func TestTurnsReset(t *testing.T) {
	turns, _, repo, _ := newTestTurns(t)
	seedTimer(t, repo, runningTimer(models.TeamPurple, 1, 2))

	timer, err := turns.Reset(context.Background(), "T1")
	require.NoError(t, err)

	assert.Equal(t, initialMs, timer.OrangeTimeMs)
	assert.Equal(t, initialMs, timer.PurpleTimeMs)
	assert.Equal(t, models.TeamNone, timer.ActiveTeam)
	assert.True(t, timer.IsPaused)
}

func TestTurnsNotFound(t *testing.T) {
	turns, _, _, _ := newTestTurns(t)
	ctx := context.Background()

	_, err := turns.StartForTeam(ctx, "missing", models.TeamOrange, models.TeamOrange)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = turns.SwitchTurn(ctx, "missing", models.TeamOrange)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = turns.Pause(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTurnScenario(t *testing.T) {
	turns, spy, _, advance := newTestTurns(t)
	ctx := context.Background()

	_, err := spy.CreateTimer(ctx, "T1")
	require.NoError(t, err)

	_, err = turns.StartForTeam(ctx, "T1", models.TeamOrange, models.TeamOrange)
	require.NoError(t, err)

	advance(10 * time.Second)
	state, err := spy.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, initialMs-10000, state.OrangeTimeMs)
	assert.Equal(t, initialMs, state.PurpleTimeMs)
	assert.Equal(t, models.TeamOrange, state.ActiveTeam)

	_, err = turns.SwitchTurn(ctx, "T1", models.TeamOrange)
	require.NoError(t, err)

	state, err = spy.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TeamPurple, state.ActiveTeam)
	assert.Equal(t, initialMs-10000, state.OrangeTimeMs)
	assert.Equal(t, initialMs, state.PurpleTimeMs)

	advance(4 * time.Second)
	state, err = spy.GetCurrentTimerState(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, initialMs-10000, state.OrangeTimeMs, "orange stays frozen after the switch")
	assert.Equal(t, initialMs-4000, state.PurpleTimeMs)

	_, err = turns.SwitchTurn(ctx, "T1", models.TeamOrange)
	assert.ErrorIs(t, err, ErrForbidden, "orange cannot end purple's turn")
}
