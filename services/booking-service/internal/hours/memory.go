package hours

import (
	"context"
	"sync"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

// MemoryRepository keeps window sets in process. Used by tests and STORAGE_DRIVER=memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	windows map[Target][]model.OperatingWindow
	legacy  map[int64][]model.OperatingWindow
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		windows: map[Target][]model.OperatingWindow{},
		legacy:  map[int64][]model.OperatingWindow{},
	}
}

func (m *MemoryRepository) List(_ context.Context, target Target) ([]model.OperatingWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.OperatingWindow(nil), m.windows[target]...), nil
}

func (m *MemoryRepository) Replace(_ context.Context, target Target, windows []model.OperatingWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(windows) == 0 {
		delete(m.windows, target)
		return nil
	}
	m.windows[target] = append([]model.OperatingWindow(nil), windows...)
	return nil
}

func (m *MemoryRepository) SetLegacyWeeklyHours(venueID int64, windows []model.OperatingWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legacy[venueID] = append([]model.OperatingWindow(nil), windows...)
}

func (m *MemoryRepository) LegacyWeeklyHours(_ context.Context, venueID int64) ([]model.OperatingWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.OperatingWindow(nil), m.legacy[venueID]...), nil
}
