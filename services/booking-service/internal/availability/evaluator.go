package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// WeekdaySource yields the resolved windows for a court on date's weekday, in effect or not.
type WeekdaySource interface {
	WeekdayWindows(ctx context.Context, courtID int64, date timeslot.Date) ([]model.OperatingWindow, error)
}

// Decision is the outcome of Check. A nil Rejection means the interval may be reserved.
type Decision struct {
	Rejection *model.Rejection
	// Window is the operating window that admitted the interval.
	Window model.OperatingWindow
}

func (d Decision) Accepted() bool { return d.Rejection == nil }

// Evaluator applies the date, time and operating-hours rules to a candidate interval.
// It never writes; "now" is always supplied by the caller.
type Evaluator struct {
	hours WeekdaySource
	loc   *time.Location
}

func NewEvaluator(hours WeekdaySource, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{hours: hours, loc: loc}
}

// Location is the zone used to derive the civil date and time of "now".
func (e *Evaluator) Location() *time.Location { return e.loc }

// Today returns the civil date and minute of now in the venue location.
func (e *Evaluator) Today(now time.Time) (timeslot.Date, timeslot.TimeOfDay) {
	local := now.In(e.loc)
	return timeslot.DateOf(local), timeslot.MinutesOf(local)
}

// Check runs the rules in order and stops at the first failure.
func (e *Evaluator) Check(ctx context.Context, courtID int64, date timeslot.Date, iv timeslot.Interval, now time.Time) (Decision, error) {
	today, minute := e.Today(now)

	if date.Before(today) {
		return reject(model.RejectPastDate, fmt.Sprintf("Cannot book %s, the date is in the past", date)), nil
	}
	if date.Equal(today) && iv.Start <= minute {
		return reject(model.RejectPastTime, fmt.Sprintf("Start time %s has already passed", iv.Start)), nil
	}
	if !iv.Valid() {
		return reject(model.RejectInvalidRange, fmt.Sprintf("Start time %s must be before end time %s", iv.Start, iv.End)), nil
	}

	wins, err := e.hours.WeekdayWindows(ctx, courtID, date)
	if err != nil {
		return Decision{}, fmt.Errorf("operating hours for court %d: %w", courtID, err)
	}

	weekday := date.Weekday()
	var open []model.OperatingWindow
	for _, w := range wins {
		if !w.IsOpen {
			// A closed entry in effect on date is an explicit closure.
			if w.InEffect(date) {
				return closed(weekday), nil
			}
			continue
		}
		open = append(open, w)
	}
	if len(open) == 0 {
		return closed(weekday), nil
	}

	var current []model.OperatingWindow
	for _, w := range open {
		if w.InEffect(date) {
			current = append(current, w)
		}
	}
	if len(current) == 0 {
		return reject(model.RejectOutsideEffectiveRange,
			fmt.Sprintf("Operating hours for %s do not apply on %s", weekday, date)), nil
	}

	for _, w := range current {
		if iv.Within(w.OpenTime, w.CloseTime) {
			return Decision{Window: w}, nil
		}
	}

	w := nearest(current, iv)
	rej := &model.Rejection{Kind: model.RejectOutsideOperatingHours}
	if iv.Start < w.OpenTime {
		b := w.OpenTime
		rej.Boundary = &b
		rej.Message = "Venue opens at " + b.String()
	} else {
		b := w.CloseTime
		rej.Boundary = &b
		rej.Message = "Venue closes at " + b.String()
	}
	return Decision{Rejection: rej}, nil
}

// nearest picks the window whose hours are closest to the interval start.
func nearest(wins []model.OperatingWindow, iv timeslot.Interval) model.OperatingWindow {
	best, bestDist := wins[0], -1
	for _, w := range wins {
		var d int
		switch {
		case iv.Start < w.OpenTime:
			d = int(w.OpenTime - iv.Start)
		case iv.Start >= w.CloseTime:
			d = int(iv.Start - w.CloseTime)
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = w, d
		}
	}
	return best
}

func reject(kind model.RejectionKind, msg string) Decision {
	return Decision{Rejection: &model.Rejection{Kind: kind, Message: msg}}
}

func closed(day time.Weekday) Decision {
	return Decision{Rejection: &model.Rejection{
		Kind:    model.RejectVenueClosed,
		Message: "The venue is closed on " + day.String(),
		Weekday: &day,
	}}
}
