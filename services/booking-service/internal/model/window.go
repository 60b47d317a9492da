package model

import (
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// OperatingWindow is one weekly open/closed entry for a court or venue.
type OperatingWindow struct {
	DayOfWeek     time.Weekday
	OpenTime      timeslot.TimeOfDay
	CloseTime     timeslot.TimeOfDay
	IsOpen        bool
	EffectiveFrom *timeslot.Date
	EffectiveTo   *timeslot.Date
}

func (w OperatingWindow) HasEffectiveRange() bool {
	return w.EffectiveFrom != nil || w.EffectiveTo != nil
}

// InEffect reports whether d falls inside the window's effective range; an unset bound is open.
func (w OperatingWindow) InEffect(d timeslot.Date) bool {
	if w.EffectiveFrom != nil && d.Before(*w.EffectiveFrom) {
		return false
	}
	if w.EffectiveTo != nil && d.After(*w.EffectiveTo) {
		return false
	}
	return true
}

func (w OperatingWindow) Hours() timeslot.Interval {
	return timeslot.Interval{Start: w.OpenTime, End: w.CloseTime}
}
