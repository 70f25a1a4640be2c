package timers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/metagame/metagame/go/internal/models"
)

// MemoryRepository keeps timers in process memory. It follows the same
// version semantics as Repository but emits no outbox events.
type MemoryRepository struct {
	mu     sync.RWMutex
	timers map[string]models.Timer
	now    func() time.Time
}

// NewMemoryRepository creates an empty in-memory store. now stamps
// created_at/updated_at.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		timers: make(map[string]models.Timer),
		now:    now,
	}
}

func (m *MemoryRepository) GetTimerByName(_ context.Context, name string) (*models.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.timers[name]
	if !ok {
		return nil, fmt.Errorf("get timer: %w", ErrNotFound)
	}
	return &t, nil
}

func (m *MemoryRepository) ListTimers(_ context.Context) ([]models.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Timer, 0, len(m.timers))
	for _, t := range m.timers {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryRepository) CreateTimer(_ context.Context, timer models.Timer) (*models.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[timer.Name]; exists {
		return nil, fmt.Errorf("create timer: %w", ErrAlreadyExists)
	}

	stamp := m.now()
	timer.Version = 1
	timer.CreatedAt = stamp
	timer.UpdatedAt = stamp
	m.timers[timer.Name] = timer
	return &timer, nil
}

func (m *MemoryRepository) SaveTimer(_ context.Context, req SaveTimerRequest) (*models.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := req.Timer
	stored, exists := m.timers[t.Name]
	if req.ExpectedVersion != nil {
		if !exists {
			return nil, fmt.Errorf("save timer: %w", ErrNotFound)
		}
		if stored.Version != *req.ExpectedVersion {
			return nil, fmt.Errorf("save timer: %w", ErrConflict)
		}
	}

	stamp := m.now()
	if exists {
		t.ID = stored.ID
		t.Version = stored.Version + 1
		t.CreatedAt = stored.CreatedAt
	} else {
		t.Version = 1
		t.CreatedAt = stamp
	}
	t.UpdatedAt = stamp
	m.timers[t.Name] = t
	return &t, nil
}

func (m *MemoryRepository) DeleteTimer(_ context.Context, name string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.timers[name]; !ok {
		return fmt.Errorf("delete timer: %w", ErrNotFound)
	}
	delete(m.timers, name)
	return nil
}
