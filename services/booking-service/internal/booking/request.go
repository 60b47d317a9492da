package booking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/hours"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type CreateRequest struct {
	CourtID   int64
	Date      string
	StartTime string
	EndTime   string
	UserID    int64
	Notes     string
	// IdempotencyKey makes retries of the same create return the first booking.
	IdempotencyKey string
}

const maxIdempotencyKeyLen = 255

// fingerprint identifies the booking a create asks for, so a key reused for another
// request can be told apart from a retry.
func (r CreateRequest) fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s|%s", r.CourtID, r.Date, r.StartTime, r.EndTime, r.Notes)))
	return hex.EncodeToString(sum[:])
}

type CheckRequest struct {
	CourtID   int64
	Date      string
	StartTime string
	EndTime   string
}

type CancelRequest struct {
	BookingID int64
	UserID    int64
	Role      string
	Reason    string
}

// RescheduleRequest moves a booking to a new date and interval on the same court.
type RescheduleRequest struct {
	BookingID int64
	UserID    int64
	Role      string
	Date      string
	StartTime string
	EndTime   string
}

type WindowInput struct {
	DayOfWeek int
	OpenTime  string
	CloseTime string
	IsOpen    bool
}

// SetHoursRequest replaces every window of a court or venue. The optional effective range
// applies to all windows in the request.
type SetHoursRequest struct {
	Target        string
	TargetID      int64
	Windows       []WindowInput
	EffectiveFrom string
	EffectiveTo   string
	UserID        int64
	Role          string
}

type SlotsRequest struct {
	CourtID         int64
	Date            string
	DurationMinutes int
	StepMinutes     int
}

// Result is the outcome of a write. Exactly one of Booking and Rejection is meaningful.
type Result struct {
	Booking   model.Booking
	Rejection *model.Rejection
	// Replayed is set when Booking was created by an earlier request with the same key.
	Replayed bool
}

func (r Result) OK() bool { return r.Rejection == nil }

func rejected(kind model.RejectionKind, format string, args ...any) *model.Rejection {
	return &model.Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalid(err error) *model.Rejection {
	return &model.Rejection{Kind: model.RejectValidation, Message: err.Error()}
}

// parseSlot parses the date and interval of a request. A reversed interval is not an error
// here; the evaluator reports it as INVALID_RANGE after the date rules.
func parseSlot(date, start, end string) (timeslot.Date, timeslot.Interval, *model.Rejection) {
	d, err := timeslot.ParseDate(date)
	if err != nil {
		return timeslot.Date{}, timeslot.Interval{}, invalid(fmt.Errorf("date: %w", err))
	}
	s, err := timeslot.ParseTimeOfDay(start)
	if err != nil {
		return timeslot.Date{}, timeslot.Interval{}, invalid(fmt.Errorf("start_time: %w", err))
	}
	e, err := timeslot.ParseTimeOfDay(end)
	if err != nil {
		return timeslot.Date{}, timeslot.Interval{}, invalid(fmt.Errorf("end_time: %w", err))
	}
	return d, timeslot.Interval{Start: s, End: e}, nil
}

func parseWindows(req SetHoursRequest) (hours.Target, []model.OperatingWindow, *model.Rejection) {
	target := hours.Target{Kind: hours.TargetKind(strings.ToLower(strings.TrimSpace(req.Target))), ID: req.TargetID}
	if !target.Valid() {
		return hours.Target{}, nil, rejected(model.RejectValidation, "target must be court or venue with a positive id")
	}

	var from, to *timeslot.Date
	if req.EffectiveFrom != "" {
		d, err := timeslot.ParseDate(req.EffectiveFrom)
		if err != nil {
			return hours.Target{}, nil, invalid(fmt.Errorf("effective_from: %w", err))
		}
		from = &d
	}
	if req.EffectiveTo != "" {
		d, err := timeslot.ParseDate(req.EffectiveTo)
		if err != nil {
			return hours.Target{}, nil, invalid(fmt.Errorf("effective_to: %w", err))
		}
		to = &d
	}

	out := make([]model.OperatingWindow, 0, len(req.Windows))
	for i, in := range req.Windows {
		w := model.OperatingWindow{
			DayOfWeek:     time.Weekday(in.DayOfWeek),
			IsOpen:        in.IsOpen,
			EffectiveFrom: from,
			EffectiveTo:   to,
		}
		if in.IsOpen || in.OpenTime != "" || in.CloseTime != "" {
			open, err := timeslot.ParseTimeOfDay(in.OpenTime)
			if err != nil {
				return hours.Target{}, nil, invalid(fmt.Errorf("window %d open_time: %w", i, err))
			}
			close, err := timeslot.ParseTimeOfDay(in.CloseTime)
			if err != nil {
				return hours.Target{}, nil, invalid(fmt.Errorf("window %d close_time: %w", i, err))
			}
			w.OpenTime, w.CloseTime = open, close
		}
		out = append(out, w)
	}
	return target, out, nil
}
