package availability

import (
	"context"
	"sort"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// AvailableSlots returns slots of length duration inside window, stepping by step minutes,
// that start at or after earliest and do not overlap any busy interval.
func AvailableSlots(window timeslot.Interval, duration, step int, busy []timeslot.Interval, earliest timeslot.TimeOfDay) []timeslot.Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !window.Valid() {
		return nil
	}
	if int(window.Start)+duration > int(window.End) {
		return nil
	}

	var slots []timeslot.Interval
	for t := window.Start; int(t)+duration <= int(window.End); t += timeslot.TimeOfDay(step) {
		if t < earliest {
			continue
		}
		slot := timeslot.Interval{Start: t, End: t + timeslot.TimeOfDay(duration)}
		if !timeslot.OverlapsAny(slot, busy) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// FreeSlots lists bookable slots for a court on date given the currently busy intervals.
// The listing is advisory: a slot shown here is not held for the caller.
func (e *Evaluator) FreeSlots(ctx context.Context, courtID int64, date timeslot.Date, duration, step int, busy []timeslot.Interval, now time.Time) ([]timeslot.Interval, error) {
	today, minute := e.Today(now)
	if date.Before(today) {
		return nil, nil
	}
	var earliest timeslot.TimeOfDay
	if date.Equal(today) {
		earliest = minute + 1
	}

	wins, err := e.hours.WeekdayWindows(ctx, courtID, date)
	if err != nil {
		return nil, err
	}
	for _, w := range wins {
		if !w.IsOpen && w.InEffect(date) {
			return nil, nil
		}
	}

	seen := map[timeslot.TimeOfDay]bool{}
	var out []timeslot.Interval
	for _, w := range wins {
		if !w.IsOpen || !w.InEffect(date) {
			continue
		}
		for _, s := range AvailableSlots(w.Hours(), duration, step, busy, earliest) {
			if !seen[s.Start] {
				seen[s.Start] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}
