package hours

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type courtsStub map[int64]model.CourtSummary

func (c courtsStub) Court(_ context.Context, id int64) (model.CourtSummary, error) {
	court, ok := c[id]
	if !ok {
		return model.CourtSummary{}, errors.New("court not found")
	}
	return court, nil
}

func window(day time.Weekday, open, close string) model.OperatingWindow {
	return model.OperatingWindow{
		DayOfWeek: day,
		OpenTime:  timeslot.MustTimeOfDay(open),
		CloseTime: timeslot.MustTimeOfDay(close),
		IsOpen:    true,
	}
}

func newTestStore() (*Store, *MemoryRepository) {
	repo := NewMemoryRepository()
	courts := courtsStub{
		7: {ID: 7, VenueID: 3, PricePerHour: 2000, IsActive: true, VenueApproved: true},
		8: {ID: 8, VenueID: 3, PricePerHour: 2000, IsActive: true, VenueApproved: true},
	}
	return NewStore(repo, courts, repo), repo
}

// 2024-01-08 is a Monday.
var monday = timeslot.MustDate("2024-01-08")

func TestWindowsForClosedByDefault(t *testing.T) {
	store, _ := newTestStore()
	wins, err := store.WindowsFor(context.Background(), 7, monday)
	if err != nil {
		t.Fatalf("WindowsFor failed: %v", err)
	}
	if len(wins) != 0 {
		t.Fatalf("expected no windows, got %v", wins)
	}
}

func TestReplaceWipesOldWindows(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{window(time.Monday, "09:00", "21:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}
	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{window(time.Tuesday, "10:00", "18:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}

	wins, err := store.WindowsFor(ctx, 7, monday)
	if err != nil {
		t.Fatalf("WindowsFor failed: %v", err)
	}
	if len(wins) != 0 {
		t.Fatalf("monday windows should be gone, got %v", wins)
	}
	wins, err = store.WindowsFor(ctx, 7, monday.AddDays(1))
	if err != nil {
		t.Fatalf("WindowsFor failed: %v", err)
	}
	if len(wins) != 1 || wins[0].OpenTime.String() != "10:00" {
		t.Fatalf("unexpected tuesday windows %v", wins)
	}
}

func TestChainFallsBackCourtVenueLegacy(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore()

	repo.SetLegacyWeeklyHours(3, []model.OperatingWindow{window(time.Monday, "06:00", "12:00")})
	wins, err := store.WindowsFor(ctx, 7, monday)
	if err != nil {
		t.Fatalf("WindowsFor failed: %v", err)
	}
	if len(wins) != 1 || wins[0].OpenTime.String() != "06:00" {
		t.Fatalf("expected legacy hours, got %v", wins)
	}

	if err := store.ReplaceWindows(ctx, VenueTarget(3), []model.OperatingWindow{window(time.Monday, "08:00", "22:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}
	wins, _ = store.WindowsFor(ctx, 7, monday)
	if len(wins) != 1 || wins[0].OpenTime.String() != "08:00" {
		t.Fatalf("expected venue hours, got %v", wins)
	}

	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{window(time.Monday, "09:00", "21:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}
	wins, _ = store.WindowsFor(ctx, 7, monday)
	if len(wins) != 1 || wins[0].OpenTime.String() != "09:00" {
		t.Fatalf("expected court hours, got %v", wins)
	}

	// Court 8 has nothing of its own and still sees the venue set.
	wins, _ = store.WindowsFor(ctx, 8, monday)
	if len(wins) != 1 || wins[0].OpenTime.String() != "08:00" {
		t.Fatalf("expected venue hours for court 8, got %v", wins)
	}
}

func TestChainStopsAtFirstConfiguredProvider(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	// Court has windows, but none on Monday: Monday is closed, the venue is not consulted.
	if err := store.ReplaceWindows(ctx, VenueTarget(3), []model.OperatingWindow{window(time.Monday, "08:00", "22:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}
	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{window(time.Tuesday, "10:00", "18:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}
	wins, err := store.WindowsFor(ctx, 7, monday)
	if err != nil {
		t.Fatalf("WindowsFor failed: %v", err)
	}
	if len(wins) != 0 {
		t.Fatalf("expected closed monday, got %v", wins)
	}
}

func TestWindowsForFiltersEffectiveRange(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	from := timeslot.MustDate("2024-02-01")
	w := window(time.Monday, "09:00", "21:00")
	w.EffectiveFrom = &from
	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{w}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}

	all, _ := store.WeekdayWindows(ctx, 7, monday)
	if len(all) != 1 {
		t.Fatalf("WeekdayWindows should ignore effective range, got %v", all)
	}
	inEffect, _ := store.WindowsFor(ctx, 7, monday)
	if len(inEffect) != 0 {
		t.Fatalf("window not yet in effect should be filtered, got %v", inEffect)
	}
	inEffect, _ = store.WindowsFor(ctx, 7, timeslot.MustDate("2024-02-05"))
	if len(inEffect) != 1 {
		t.Fatalf("expected window in effect, got %v", inEffect)
	}
}

func TestReplaceWindowsValidation(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore()

	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{window(time.Monday, "09:00", "21:00")}); err != nil {
		t.Fatalf("ReplaceWindows failed: %v", err)
	}

	from, to := timeslot.MustDate("2024-03-01"), timeslot.MustDate("2024-02-01")
	bad := [][]model.OperatingWindow{
		{window(time.Monday, "09:00", "09:00")},
		{window(time.Monday, "21:00", "09:00")},
		{{DayOfWeek: 7, IsOpen: false}},
		{{DayOfWeek: time.Monday, OpenTime: timeslot.MustTimeOfDay("09:00"), CloseTime: timeslot.MustTimeOfDay("10:00"), IsOpen: true, EffectiveFrom: &from, EffectiveTo: &to}},
		{window(time.Tuesday, "10:00", "18:00"), window(time.Wednesday, "18:00", "10:00")},
	}
	for i, set := range bad {
		err := store.ReplaceWindows(ctx, CourtTarget(7), set)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
	}

	// Nothing was written by the rejected sets.
	wins, _ := repo.List(ctx, CourtTarget(7))
	if len(wins) != 1 || wins[0].DayOfWeek != time.Monday {
		t.Fatalf("rejected replace must not touch stored windows, got %v", wins)
	}

	// Closed windows do not need valid times.
	if err := store.ReplaceWindows(ctx, CourtTarget(7), []model.OperatingWindow{{DayOfWeek: time.Sunday}}); err != nil {
		t.Fatalf("closed window should validate: %v", err)
	}
	if err := store.ReplaceWindows(ctx, Target{Kind: "field", ID: 1}, nil); err == nil {
		t.Fatal("expected error for unknown target kind")
	}
}

func TestLegacyWindowConversion(t *testing.T) {
	w := legacyWindow(1, "09:00:00", "21:00", false)
	if !w.IsOpen || w.OpenTime.String() != "09:00" || w.CloseTime.String() != "21:00" {
		t.Fatalf("unexpected window %+v", w)
	}
	if legacyWindow(1, "09:00", "21:00", true).IsOpen {
		t.Fatal("closed row must map to a closed window")
	}
	if legacyWindow(1, "nine", "21:00", false).IsOpen {
		t.Fatal("unparsable row must map to a closed window")
	}
	if legacyWindow(1, "21:00", "09:00", false).IsOpen {
		t.Fatal("inverted row must map to a closed window")
	}
}

func TestCachedRepositoryRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	inner := NewMemoryRepository()
	prefix := "hours-test-" + time.Now().Format("150405.000000")
	cache := NewCachedRepository(inner, rdb, time.Minute, prefix, nil)
	target := CourtTarget(42)
	defer rdb.Del(ctx, cache.key(target))

	from := timeslot.MustDate("2024-01-01")
	w := window(time.Monday, "09:00", "21:00")
	w.EffectiveFrom = &from
	if err := cache.Replace(ctx, target, []model.OperatingWindow{w}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, err := cache.List(ctx, target)
	if err != nil || len(got) != 1 {
		t.Fatalf("List failed: %v %v", got, err)
	}

	// Served from cache even after the inner repository changes behind its back.
	_ = inner.Replace(ctx, target, nil)
	got, _ = cache.List(ctx, target)
	if len(got) != 1 || got[0].EffectiveFrom == nil || !got[0].EffectiveFrom.Equal(from) {
		t.Fatalf("expected cached window, got %v", got)
	}

	// Replace through the cache invalidates.
	if err := cache.Replace(ctx, target, []model.OperatingWindow{window(time.Tuesday, "10:00", "18:00")}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, _ = cache.List(ctx, target)
	if len(got) != 1 || got[0].DayOfWeek != time.Tuesday {
		t.Fatalf("expected fresh window after replace, got %v", got)
	}
}
