package model

import (
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// RejectionKind is the machine-readable reason a request was refused.
type RejectionKind string

const (
	RejectValidation            RejectionKind = "VALIDATION"
	RejectNotFound              RejectionKind = "NOT_FOUND"
	RejectForbidden             RejectionKind = "FORBIDDEN"
	RejectPastDate              RejectionKind = "PAST_DATE"
	RejectPastTime              RejectionKind = "PAST_TIME"
	RejectInvalidRange          RejectionKind = "INVALID_RANGE"
	RejectVenueClosed           RejectionKind = "VENUE_CLOSED"
	RejectOutsideEffectiveRange RejectionKind = "OUTSIDE_EFFECTIVE_RANGE"
	RejectOutsideOperatingHours RejectionKind = "OUTSIDE_OPERATING_HOURS"
	RejectSlotTaken             RejectionKind = "SLOT_TAKEN"
	RejectInvalidTransition     RejectionKind = "INVALID_TRANSITION"
	RejectIdempotencyKeyReused  RejectionKind = "IDEMPOTENCY_KEY_REUSED"
)

// Rejection is an expected refusal, returned as a value rather than an error.
type Rejection struct {
	Kind    RejectionKind
	Message string

	// Boundary is the opening or closing time for OUTSIDE_OPERATING_HOURS.
	Boundary *timeslot.TimeOfDay
	// Weekday is set for VENUE_CLOSED.
	Weekday *time.Weekday
	// Conflicts lists the active bookings overlapping the request for SLOT_TAKEN.
	Conflicts []Booking
}

func (r *Rejection) Error() string {
	return string(r.Kind) + ": " + r.Message
}
