// Package memledger is an in-process booking ledger with the same guarantees as the
// Postgres one, for tests and STORAGE_DRIVER=memory.
package memledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/storage"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type scope struct {
	courtID int64
	date    timeslot.Date
}

func (s scope) less(o scope) bool {
	if s.courtID != o.courtID {
		return s.courtID < o.courtID
	}
	return s.date.Before(o.date)
}

type idemKey struct {
	userID int64
	key    string
}

type claim struct {
	bookingID   int64
	requestHash string
}

// Ledger serializes reservations per (court, date); other scopes proceed in parallel.
type Ledger struct {
	mu       sync.RWMutex
	nextID   int64
	bookings map[int64]model.Booking
	byScope  map[scope][]int64
	locks    map[scope]*sync.Mutex
	claims   map[idemKey]claim
}

func New() *Ledger {
	return &Ledger{
		bookings: map[int64]model.Booking{},
		byScope:  map[scope][]int64{},
		locks:    map[scope]*sync.Mutex{},
		claims:   map[idemKey]claim{},
	}
}

func (l *Ledger) scopeLock(s scope) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[s]
	if !ok {
		m = &sync.Mutex{}
		l.locks[s] = m
	}
	return m
}

// lockScopes locks every distinct scope in a fixed order and returns the matching unlock.
func (l *Ledger) lockScopes(scopes ...scope) func() {
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].less(scopes[j]) })
	var held []*sync.Mutex
	for i, s := range scopes {
		if i > 0 && s == scopes[i-1] {
			continue
		}
		m := l.scopeLock(s)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (l *Ledger) ListActive(_ context.Context, courtID int64, date timeslot.Date) ([]model.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeLocked(scope{courtID, date}, nil, 0), nil
}

// activeLocked returns active bookings of s other than skip, optionally only those
// overlapping iv.
func (l *Ledger) activeLocked(s scope, iv *timeslot.Interval, skip int64) []model.Booking {
	var out []model.Booking
	for _, id := range l.byScope[s] {
		b := l.bookings[id]
		if !b.Status.Active() || id == skip {
			continue
		}
		if iv != nil && !b.Interval.Overlaps(*iv) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.Start < out[j].Interval.Start })
	return out
}

func (l *Ledger) Get(_ context.Context, id int64) (model.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bookings[id]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (l *Ledger) TryReserve(ctx context.Context, res model.Reservation) (model.Booking, []model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return model.Booking{}, nil, err
	}
	s := scope{res.CourtID, res.Date}
	unlock := l.lockScopes(s)
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.claims[idemKey{res.UserID, res.IdempotencyKey}]; ok && res.IdempotencyKey != "" {
		return model.Booking{}, nil, storage.ErrKeyClaimed
	}
	if conflicts := l.activeLocked(s, &res.Interval, 0); len(conflicts) > 0 {
		return model.Booking{}, conflicts, nil
	}
	return l.insertLocked(res), nil, nil
}

func (l *Ledger) insertLocked(res model.Reservation) model.Booking {
	l.nextID++
	if res.Status == "" {
		res.Status = model.StatusConfirmed
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	b := res.Booking(l.nextID)
	s := scope{b.CourtID, b.Date}
	l.bookings[b.ID] = b
	l.byScope[s] = append(l.byScope[s], b.ID)
	if res.IdempotencyKey != "" {
		l.claims[idemKey{res.UserID, res.IdempotencyKey}] = claim{bookingID: b.ID, requestHash: res.RequestHash}
	}
	return b
}

// FindByIdempotencyKey returns the booking that claimed key for userID and the request hash
// stored with it.
func (l *Ledger) FindByIdempotencyKey(_ context.Context, userID int64, key string) (model.Booking, string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.claims[idemKey{userID, key}]
	if !ok {
		return model.Booking{}, "", storage.ErrNotFound
	}
	return l.bookings[c.bookingID], c.requestHash, nil
}

// Move replaces booking oldID with res in one step. The old booking does not count as a
// conflict. On conflict nothing changes.
func (l *Ledger) Move(ctx context.Context, oldID int64, res model.Reservation, reason string, at time.Time) (model.Booking, model.Booking, []model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return model.Booking{}, model.Booking{}, nil, err
	}
	l.mu.RLock()
	old, ok := l.bookings[oldID]
	l.mu.RUnlock()
	if !ok {
		return model.Booking{}, model.Booking{}, nil, storage.ErrNotFound
	}
	target := scope{res.CourtID, res.Date}
	unlock := l.lockScopes(scope{old.CourtID, old.Date}, target)
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	old = l.bookings[oldID]
	if !old.Status.Active() {
		return model.Booking{}, model.Booking{}, nil, storage.ErrNotActive
	}
	if conflicts := l.activeLocked(target, &res.Interval, oldID); len(conflicts) > 0 {
		return model.Booking{}, model.Booking{}, conflicts, nil
	}
	old.Status = model.StatusCancelled
	old.CancelledAt = &at
	old.CancellationReason = reason
	l.bookings[oldID] = old
	return l.insertLocked(res), old, nil, nil
}

func (l *Ledger) Release(_ context.Context, id int64, reason string, at time.Time) (model.Booking, bool, error) {
	l.mu.RLock()
	b, ok := l.bookings[id]
	l.mu.RUnlock()
	if !ok {
		return model.Booking{}, false, storage.ErrNotFound
	}
	unlock := l.lockScopes(scope{b.CourtID, b.Date})
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	b = l.bookings[id]
	switch b.Status {
	case model.StatusCancelled:
		return b, false, nil
	case model.StatusCompleted:
		return b, false, storage.ErrNotActive
	}
	b.Status = model.StatusCancelled
	b.CancelledAt = &at
	b.CancellationReason = reason
	l.bookings[id] = b
	return b, true, nil
}

func (l *Ledger) SetPaymentStatus(_ context.Context, id int64, status model.PaymentStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[id]
	if !ok {
		return storage.ErrNotFound
	}
	b.PaymentStatus = status
	l.bookings[id] = b
	return nil
}

func (l *Ledger) CompleteEnded(_ context.Context, today timeslot.Date, minute timeslot.TimeOfDay) ([]model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var done []model.Booking
	for id, b := range l.bookings {
		if b.Status != model.StatusConfirmed {
			continue
		}
		if b.Date.Before(today) || (b.Date.Equal(today) && b.Interval.End <= minute) {
			b.Status = model.StatusCompleted
			l.bookings[id] = b
			done = append(done, b)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].ID < done[j].ID })
	l.pruneLocksLocked(today)
	return done, nil
}

// pruneLocksLocked drops scope locks of dates before today that nobody holds.
func (l *Ledger) pruneLocksLocked(today timeslot.Date) {
	for s, m := range l.locks {
		if !s.date.Before(today) || !m.TryLock() {
			continue
		}
		delete(l.locks, s)
		m.Unlock()
	}
}
