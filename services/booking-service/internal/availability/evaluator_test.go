package availability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type stubHours map[time.Weekday][]model.OperatingWindow

func (s stubHours) WeekdayWindows(_ context.Context, _ int64, date timeslot.Date) ([]model.OperatingWindow, error) {
	return s[date.Weekday()], nil
}

type failingHours struct{}

func (failingHours) WeekdayWindows(context.Context, int64, timeslot.Date) ([]model.OperatingWindow, error) {
	return nil, errors.New("db down")
}

var (
	// Monday 2024-01-01 10:00 UTC.
	evalNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	mondays = stubHours{time.Monday: {openWindow(time.Monday, "09:00", "21:00")}}
)

func check(t *testing.T, ev *Evaluator, date, start, end string) Decision {
	t.Helper()
	iv := timeslot.Interval{Start: timeslot.MustTimeOfDay(start), End: timeslot.MustTimeOfDay(end)}
	d, err := ev.Check(context.Background(), 7, timeslot.MustDate(date), iv, evalNow)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	return d
}

func expectKind(t *testing.T, d Decision, kind model.RejectionKind) *model.Rejection {
	t.Helper()
	if d.Accepted() {
		t.Fatalf("expected %s, got accepted", kind)
	}
	if d.Rejection.Kind != kind {
		t.Fatalf("expected %s, got %s (%s)", kind, d.Rejection.Kind, d.Rejection.Message)
	}
	return d.Rejection
}

func TestCheckPastRules(t *testing.T) {
	ev := NewEvaluator(mondays, time.UTC)

	expectKind(t, check(t, ev, "2023-12-25", "15:00", "16:00"), model.RejectPastDate)
	expectKind(t, check(t, ev, "2024-01-01", "09:00", "10:00"), model.RejectPastTime)
	// Starting exactly now is rejected too.
	expectKind(t, check(t, ev, "2024-01-01", "10:00", "11:00"), model.RejectPastTime)

	if d := check(t, ev, "2024-01-01", "10:01", "11:00"); !d.Accepted() {
		t.Fatalf("expected 10:01-11:00 to be accepted, got %s", d.Rejection.Kind)
	}
}

func TestCheckUsesVenueLocation(t *testing.T) {
	// 2024-01-01 10:00 UTC is already 20:00 local in UTC+10.
	ev := NewEvaluator(mondays, time.FixedZone("UTC+10", 10*3600))
	expectKind(t, check(t, ev, "2024-01-01", "15:00", "16:00"), model.RejectPastTime)
	if d := check(t, ev, "2024-01-01", "20:30", "21:00"); !d.Accepted() {
		t.Fatalf("expected 20:30-21:00 local to be accepted, got %s", d.Rejection.Kind)
	}
}

func TestCheckInvalidRangeAfterPastRules(t *testing.T) {
	ev := NewEvaluator(mondays, time.UTC)
	expectKind(t, check(t, ev, "2024-01-08", "16:00", "15:00"), model.RejectInvalidRange)
	expectKind(t, check(t, ev, "2024-01-08", "15:00", "15:00"), model.RejectInvalidRange)
	// A past date wins over a reversed range.
	expectKind(t, check(t, ev, "2023-12-25", "16:00", "15:00"), model.RejectPastDate)
}

func TestCheckClosedByDefault(t *testing.T) {
	ev := NewEvaluator(stubHours{}, time.UTC)
	rej := expectKind(t, check(t, ev, "2024-01-07", "15:00", "16:00"), model.RejectVenueClosed)
	if rej.Message != "The venue is closed on Sunday" {
		t.Fatalf("unexpected message %q", rej.Message)
	}
	if rej.Weekday == nil || *rej.Weekday != time.Sunday {
		t.Fatalf("expected weekday Sunday, got %v", rej.Weekday)
	}

	closedMonday := stubHours{time.Monday: {{DayOfWeek: time.Monday, IsOpen: false}}}
	ev = NewEvaluator(closedMonday, time.UTC)
	expectKind(t, check(t, ev, "2024-01-08", "15:00", "16:00"), model.RejectVenueClosed)
}

func TestCheckEffectiveRange(t *testing.T) {
	from, to := timeslot.MustDate("2024-02-01"), timeslot.MustDate("2024-02-29")
	w := openWindow(time.Monday, "09:00", "21:00")
	w.EffectiveFrom, w.EffectiveTo = &from, &to
	ev := NewEvaluator(stubHours{time.Monday: {w}}, time.UTC)

	expectKind(t, check(t, ev, "2024-01-08", "15:00", "16:00"), model.RejectOutsideEffectiveRange)
	expectKind(t, check(t, ev, "2024-03-04", "15:00", "16:00"), model.RejectOutsideEffectiveRange)
	if d := check(t, ev, "2024-02-05", "15:00", "16:00"); !d.Accepted() {
		t.Fatalf("expected acceptance inside effective range, got %s", d.Rejection.Kind)
	}
}

func TestCheckOutsideOperatingHours(t *testing.T) {
	ev := NewEvaluator(mondays, time.UTC)

	rej := expectKind(t, check(t, ev, "2024-01-08", "21:00", "22:00"), model.RejectOutsideOperatingHours)
	if rej.Boundary == nil || rej.Boundary.String() != "21:00" || !strings.Contains(rej.Message, "21:00") {
		t.Fatalf("expected closing boundary 21:00, got %v %q", rej.Boundary, rej.Message)
	}

	rej = expectKind(t, check(t, ev, "2024-01-08", "08:00", "10:00"), model.RejectOutsideOperatingHours)
	if rej.Message != "Venue opens at 09:00" {
		t.Fatalf("unexpected message %q", rej.Message)
	}

	// Ending exactly at close is fine.
	if d := check(t, ev, "2024-01-08", "20:00", "21:00"); !d.Accepted() {
		t.Fatalf("expected 20:00-21:00 to be accepted, got %s", d.Rejection.Kind)
	}
}

func TestCheckSplitShifts(t *testing.T) {
	ev := NewEvaluator(stubHours{time.Monday: {
		openWindow(time.Monday, "07:00", "12:00"),
		openWindow(time.Monday, "16:00", "22:00"),
	}}, time.UTC)

	if d := check(t, ev, "2024-01-08", "17:00", "18:00"); !d.Accepted() {
		t.Fatalf("expected evening slot to be accepted, got %s", d.Rejection.Kind)
	}
	rej := expectKind(t, check(t, ev, "2024-01-08", "15:00", "16:30"), model.RejectOutsideOperatingHours)
	if rej.Boundary.String() != "16:00" {
		t.Fatalf("expected boundary of nearest window 16:00, got %s", rej.Boundary)
	}
}

func TestCheckPropagatesStoreErrors(t *testing.T) {
	ev := NewEvaluator(failingHours{}, time.UTC)
	iv := timeslot.MustInterval("15:00", "16:00")
	if _, err := ev.Check(context.Background(), 7, timeslot.MustDate("2024-01-08"), iv, evalNow); err == nil {
		t.Fatal("expected store error")
	}
}
