// Package courts exposes the read-only court projection the booking core prices and
// validates against.
package courts

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/Alecxender1402/QuickCourt/libs/db"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

var ErrNotFound = errors.New("court not found")

type PostgresCatalog struct {
	pool *db.Pool
}

func NewPostgresCatalog(pool *db.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) Court(ctx context.Context, id int64) (model.CourtSummary, error) {
	var cs model.CourtSummary
	err := c.pool.QueryRow(ctx, `
		SELECT c.id, c.venue_id, c.price_per_hour, c.is_active, v.is_approved, c.sport_type
		FROM courts c
		JOIN venues v ON v.id = c.venue_id
		WHERE c.id = $1
	`, id).Scan(&cs.ID, &cs.VenueID, &cs.PricePerHour, &cs.IsActive, &cs.VenueApproved, &cs.SportType)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CourtSummary{}, ErrNotFound
	}
	if err != nil {
		return model.CourtSummary{}, err
	}
	return cs, nil
}

// MemoryCatalog is a fixed set of courts for tests and local runs.
type MemoryCatalog struct {
	mu     sync.RWMutex
	courts map[int64]model.CourtSummary
}

func NewMemoryCatalog(courts ...model.CourtSummary) *MemoryCatalog {
	m := &MemoryCatalog{courts: map[int64]model.CourtSummary{}}
	for _, c := range courts {
		m.courts[c.ID] = c
	}
	return m
}

func (m *MemoryCatalog) Put(c model.CourtSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courts[c.ID] = c
}

func (m *MemoryCatalog) Court(_ context.Context, id int64) (model.CourtSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courts[id]
	if !ok {
		return model.CourtSummary{}, ErrNotFound
	}
	return c, nil
}
