package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Alecxender1402/QuickCourt/libs/db"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// openTestPool connects to TEST_DATABASE_URL, applies the schema and creates a fresh court.
func openTestPool(t *testing.T) (*db.Pool, int64, int64) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	var venueID, courtID int64
	if err := pool.QueryRow(ctx, `INSERT INTO venues (owner_id, name, is_approved) VALUES (1, 'test', true) RETURNING id`).Scan(&venueID); err != nil {
		t.Fatalf("insert venue: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO courts (venue_id, name, price_per_hour) VALUES ($1, 'c1', 2000) RETURNING id`, venueID).Scan(&courtID); err != nil {
		t.Fatalf("insert court: %v", err)
	}
	return pool, venueID, courtID
}

func TestBookingRepositoryReserveRelease(t *testing.T) {
	pool, venueID, courtID := openTestPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()
	date := timeslot.MustDate("2030-01-07")

	res := model.Reservation{
		CourtID: courtID, VenueID: venueID, UserID: 1, Date: date,
		Interval: timeslot.MustInterval("09:00", "10:00"), Status: model.StatusConfirmed, TotalAmount: 2000,
	}
	b, conflicts, err := repo.TryReserve(ctx, res)
	if err != nil || len(conflicts) != 0 {
		t.Fatalf("TryReserve failed: %v %v", conflicts, err)
	}
	if !b.Date.Equal(date) || b.Interval.String() != "09:00-10:00" || b.TotalAmount != 2000 {
		t.Fatalf("unexpected booking %+v", b)
	}

	res.Interval = timeslot.MustInterval("10:00", "11:00")
	if _, conflicts, err := repo.TryReserve(ctx, res); err != nil || len(conflicts) != 0 {
		t.Fatalf("abutting reservation failed: %v %v", conflicts, err)
	}

	res.Interval = timeslot.MustInterval("09:30", "10:30")
	_, conflicts, err = repo.TryReserve(ctx, res)
	if err != nil || len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %v %v", conflicts, err)
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	cancelled, released, err := repo.Release(ctx, b.ID, "rain", at)
	if err != nil || !released || cancelled.Status != model.StatusCancelled {
		t.Fatalf("Release failed: %+v %v", cancelled, err)
	}
	again, released, err := repo.Release(ctx, b.ID, "again", at.Add(time.Hour))
	if err != nil || released || again.CancellationReason != "rain" {
		t.Fatalf("second Release should return existing record: %+v %v", again, err)
	}

	active, err := repo.ListActive(ctx, courtID, date)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected 1 active booking, got %v %v", active, err)
	}
}

func TestBookingRepositoryParallelReserve(t *testing.T) {
	pool, venueID, courtID := openTestPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, conflicts, err := repo.TryReserve(ctx, model.Reservation{
				CourtID: courtID, VenueID: venueID, UserID: 1, Date: timeslot.MustDate("2030-01-08"),
				Interval: timeslot.MustInterval("14:00", "15:00"), Status: model.StatusConfirmed,
			})
			if err != nil {
				t.Errorf("TryReserve failed: %v", err)
				return
			}
			if len(conflicts) == 0 {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestBookingRepositoryMove(t *testing.T) {
	pool, venueID, courtID := openTestPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()
	date := timeslot.MustDate("2030-01-09")
	res := func(start, end string) model.Reservation {
		return model.Reservation{
			CourtID: courtID, VenueID: venueID, UserID: 42, Date: date,
			Interval: timeslot.MustInterval(start, end), Status: model.StatusConfirmed,
		}
	}

	old, _, err := repo.TryReserve(ctx, res("16:00", "17:00"))
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	next, cancelled, conflicts, err := repo.Move(ctx, old.ID, res("16:30", "17:30"), "moved", time.Now().UTC())
	if err != nil || len(conflicts) != 0 {
		t.Fatalf("Move failed: %v %v", conflicts, err)
	}
	if cancelled.ID != old.ID || cancelled.Status != model.StatusCancelled || next.Interval.String() != "16:30-17:30" {
		t.Fatalf("unexpected move result %+v %+v", next, cancelled)
	}

	blocker := res("17:30", "18:30")
	blocker.UserID = 43
	if _, conflicts, err := repo.TryReserve(ctx, blocker); err != nil || len(conflicts) != 0 {
		t.Fatalf("blocker failed: %v %v", conflicts, err)
	}
	_, _, conflicts, err = repo.Move(ctx, next.ID, res("17:00", "18:00"), "moved again", time.Now().UTC())
	if err != nil || len(conflicts) != 1 || conflicts[0].UserID != 43 {
		t.Fatalf("expected the blocker as conflict, got %v %v", conflicts, err)
	}
	if b, _ := repo.Get(ctx, next.ID); b.Status != model.StatusConfirmed {
		t.Fatalf("booking must stay confirmed after a failed move, got %s", b.Status)
	}
	if _, _, _, err := repo.Move(ctx, old.ID, res("20:00", "21:00"), "", time.Now().UTC()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestBookingRepositoryIdempotencyKey(t *testing.T) {
	pool, venueID, courtID := openTestPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()
	key := fmt.Sprintf("court-%d", courtID)

	res := model.Reservation{
		CourtID: courtID, VenueID: venueID, UserID: 42, Date: timeslot.MustDate("2030-01-10"),
		Interval: timeslot.MustInterval("09:00", "10:00"), Status: model.StatusConfirmed,
		IdempotencyKey: key, RequestHash: "h1",
	}
	b, _, err := repo.TryReserve(ctx, res)
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	got, hash, err := repo.FindByIdempotencyKey(ctx, 42, key)
	if err != nil || got.ID != b.ID || hash != "h1" {
		t.Fatalf("unexpected lookup %+v %q %v", got, hash, err)
	}

	res.Interval = timeslot.MustInterval("11:00", "12:00")
	if _, _, err := repo.TryReserve(ctx, res); !errors.Is(err, ErrKeyClaimed) {
		t.Fatalf("expected ErrKeyClaimed, got %v", err)
	}
	if _, _, err := repo.FindByIdempotencyKey(ctx, 43, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("keys must be per user, got %v", err)
	}
}
