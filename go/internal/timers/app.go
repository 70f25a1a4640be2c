package timers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers/events"
	"github.com/rs/zerolog/log"
)

// TimerRepository defines what the app layer needs from the record store
type TimerRepository interface {
	GetTimerByName(ctx context.Context, name string) (*models.Timer, error)
	ListTimers(ctx context.Context) ([]models.Timer, error)
	CreateTimer(ctx context.Context, timer models.Timer) (*models.Timer, error)
	SaveTimer(ctx context.Context, req SaveTimerRequest) (*models.Timer, error)
	DeleteTimer(ctx context.Context, name string, deletedAt time.Time) error
}

// App is the timer engine. It never ticks: remaining time is derived from the
// stored anchor and the clock on every read and folded back in on every write.
type App struct {
	repo   TimerRepository
	clock  clockwork.Clock
	config Config
}

// NewApp creates a new timers App
func NewApp(repo TimerRepository, clock clockwork.Clock, config Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.InitialDuration <= 0 {
		config.InitialDuration = models.DefaultInitialDuration
	}
	if config.WritePolicy == "" {
		config.WritePolicy = WritePolicyLastWriteWins
	}
	if config.MaxConflictRetries < 0 {
		config.MaxConflictRetries = 0
	}
	return &App{
		repo:   repo,
		clock:  clock,
		config: config,
	}
}

// InitialTimeMs is the per-team budget a new or reset timer starts with
func (a *App) InitialTimeMs() int64 {
	return a.config.InitialDuration.Milliseconds()
}

// now reads the clock at millisecond resolution. Remaining times are whole
// milliseconds, so an anchor finer than that would drop the sub-millisecond
// remainder of the elapsed time on every crystallizing write.
func (a *App) now() time.Time {
	return a.clock.Now().Truncate(time.Millisecond)
}

// GetTimerByName returns the stored row without reconciliation
func (a *App) GetTimerByName(ctx context.Context, name string) (*models.Timer, error) {
	timer, err := a.repo.GetTimerByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get timer %q: %w", name, err)
	}
	return timer, nil
}

// GetAllTimers returns every stored row ordered by name
func (a *App) GetAllTimers(ctx context.Context) ([]models.Timer, error) {
	timers, err := a.repo.ListTimers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	return timers, nil
}

// GetCurrentTimerState returns the timer projected onto the current time.
// Nothing is written.
func (a *App) GetCurrentTimerState(ctx context.Context, name string) (*models.TimerState, error) {
	timer, err := a.repo.GetTimerByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get timer %q: %w", name, err)
	}
	state := Reconcile(*timer, a.now())
	return &state, nil
}

// UpdateTimer applies a partial update. Elapsed time is crystallized into the
// active team first unless the request carries explicit time values.
func (a *App) UpdateTimer(ctx context.Context, name string, req UpdateTimerRequest) (*models.Timer, error) {
	if err := validateUpdateTimerRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return a.update(ctx, name, req, events.EventTypeTimerUpdated)
}

// ResetTimer puts both clocks back to the initial duration, paused, with no active team
func (a *App) ResetTimer(ctx context.Context, name string) (*models.Timer, error) {
	initial := a.InitialTimeMs()
	noTeam := models.TeamNone
	paused := true

	return a.update(ctx, name, UpdateTimerRequest{
		ActiveTeam:   &noTeam,
		IsPaused:     &paused,
		OrangeTimeMs: &initial,
		PurpleTimeMs: &initial,
		Reason:       "reset",
	}, events.EventTypeTimerReset)
}

// CreateTimer creates a timer in its initial state
func (a *App) CreateTimer(ctx context.Context, name string) (*models.Timer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("validation failed: %w: timer name is required", ErrInvalidArgument)
	}

	initial := a.InitialTimeMs()
	timer, err := a.repo.CreateTimer(ctx, models.Timer{
		ID:             uuid.New(),
		Name:           name,
		OrangeTimeMs:   initial,
		PurpleTimeMs:   initial,
		ActiveTeam:     models.TeamNone,
		IsPaused:       true,
		LastUpdateTime: a.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timer %q: %w", name, err)
	}

	log.Info().Str("timer", timer.Name).Int64("initial_ms", initial).Msg("created timer")
	return timer, nil
}

// DeleteTimer removes a timer
func (a *App) DeleteTimer(ctx context.Context, name string) error {
	if err := a.repo.DeleteTimer(ctx, name, a.now()); err != nil {
		return fmt.Errorf("failed to delete timer %q: %w", name, err)
	}
	log.Info().Str("timer", name).Msg("deleted timer")
	return nil
}

// EnsureTimers creates any of names that do not exist yet
func (a *App) EnsureTimers(ctx context.Context, names ...string) error {
	for _, name := range names {
		_, err := a.repo.GetTimerByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check timer %q: %w", name, err)
		}
		if _, err := a.CreateTimer(ctx, name); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

func (a *App) update(ctx context.Context, name string, req UpdateTimerRequest, eventType events.EventType) (*models.Timer, error) {
	attempts := 1
	if a.config.WritePolicy == WritePolicyCompareAndSwap {
		attempts += a.config.MaxConflictRetries
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var timer *models.Timer
		timer, err = a.tryUpdate(ctx, name, req, eventType)
		if err == nil {
			return timer, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		log.Debug().
			Str("timer", name).
			Int("attempt", attempt).
			Msg("timer changed underneath update, retrying")
	}
	return nil, fmt.Errorf("failed to update timer %q after %d attempts: %w", name, attempts, err)
}

func (a *App) tryUpdate(ctx context.Context, name string, req UpdateTimerRequest, eventType events.EventType) (*models.Timer, error) {
	stored, err := a.repo.GetTimerByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get timer %q: %w", name, err)
	}

	save := SaveTimerRequest{
		Timer:     applyUpdate(*stored, req, a.now()),
		EventType: eventType,
		Reason:    req.Reason,
	}
	if a.config.WritePolicy == WritePolicyCompareAndSwap {
		version := stored.Version
		save.ExpectedVersion = &version
	}

	timer, err := a.repo.SaveTimer(ctx, save)
	if err != nil {
		return nil, fmt.Errorf("failed to save timer %q: %w", name, err)
	}

	log.Info().
		Str("timer", timer.Name).
		Str("event", string(eventType)).
		Str("active_team", timer.ActiveTeam.String()).
		Bool("paused", timer.IsPaused).
		Int64("orange_ms", timer.OrangeTimeMs).
		Int64("purple_ms", timer.PurpleTimeMs).
		Msg("updated timer")
	return timer, nil
}

// applyUpdate merges req onto stored at now and re-anchors the result
func applyUpdate(stored models.Timer, req UpdateTimerRequest, now time.Time) models.Timer {
	next := stored
	if !req.HasExplicitTime() {
		next = crystallize(stored, now)
	}

	if req.ActiveTeam != nil {
		next.ActiveTeam = *req.ActiveTeam
	}
	if req.IsPaused != nil {
		next.IsPaused = *req.IsPaused
	}
	if req.OrangeTimeMs != nil {
		next.OrangeTimeMs = *req.OrangeTimeMs
	}
	if req.PurpleTimeMs != nil {
		next.PurpleTimeMs = *req.PurpleTimeMs
	}

	next.LastUpdateTime = now
	return next
}

func validateUpdateTimerRequest(req UpdateTimerRequest) error {
	if req.ActiveTeam != nil && !req.ActiveTeam.Valid() {
		return fmt.Errorf("%w: unknown team %q", ErrInvalidArgument, string(*req.ActiveTeam))
	}
	if req.OrangeTimeMs != nil && *req.OrangeTimeMs < 0 {
		return fmt.Errorf("%w: orange_time_ms must not be negative", ErrInvalidArgument)
	}
	if req.PurpleTimeMs != nil && *req.PurpleTimeMs < 0 {
		return fmt.Errorf("%w: purple_time_ms must not be negative", ErrInvalidArgument)
	}
	return nil
}
