package model

import (
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active statuses hold their interval and take part in overlap checks.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// ActiveStatuses is the set whose intervals may never overlap on one court and date.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentAwaitingCapture PaymentStatus = "awaiting_payment"
	PaymentWaived          PaymentStatus = "waived"
	PaymentFailed          PaymentStatus = "failed"
)

type Booking struct {
	ID                 int64
	CourtID            int64
	VenueID            int64
	UserID             int64
	Date               timeslot.Date
	Interval           timeslot.Interval
	Status             Status
	TotalAmount        int64 // minor currency units
	PaymentStatus      PaymentStatus
	Notes              string
	CreatedAt          time.Time
	CancelledAt        *time.Time
	CancellationReason string
}

// Reservation is the payload written by the ledger when a slot is free.
type Reservation struct {
	CourtID     int64
	VenueID     int64
	UserID      int64
	Date        timeslot.Date
	Interval    timeslot.Interval
	Status      Status
	TotalAmount int64
	Notes       string
	CreatedAt   time.Time

	// IdempotencyKey, when set, is claimed for UserID in the same write as the booking.
	// RequestHash fingerprints the request that claimed it.
	IdempotencyKey string
	RequestHash    string
}

// Booking builds the record stored for r once the ledger assigned an id.
func (r Reservation) Booking(id int64) Booking {
	return Booking{
		ID:            id,
		CourtID:       r.CourtID,
		VenueID:       r.VenueID,
		UserID:        r.UserID,
		Date:          r.Date,
		Interval:      r.Interval,
		Status:        r.Status,
		TotalAmount:   r.TotalAmount,
		PaymentStatus: PaymentPending,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
	}
}
