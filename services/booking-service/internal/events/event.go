package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

// Event types double as Kafka topics and AMQP routing keys.
const (
	TypeBookingConfirmed = "booking.confirmed.v1"
	TypeBookingCancelled = "booking.cancelled.v1"
	TypeBookingCompleted = "booking.completed.v1"
)

// Event carries a full booking snapshot. Delivery is best-effort.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Booking    model.Booking
}

func New(eventType string, b model.Booking, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Booking:    b,
	}
}

// Key partitions events per booking so consumers see one booking's events in order.
func (e Event) Key() string {
	return strconv.FormatInt(e.Booking.ID, 10)
}

type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type bookingPayload struct {
	ID                 int64      `json:"id"`
	CourtID            int64      `json:"court_id"`
	VenueID            int64      `json:"venue_id"`
	UserID             int64      `json:"user_id"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	EndTime            string     `json:"end_time"`
	Status             string     `json:"status"`
	TotalAmount        int64      `json:"total_amount"`
	PaymentStatus      string     `json:"payment_status"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

type envelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Booking    bookingPayload `json:"booking"`
}

// Payload is the JSON body shared by every transport.
func (e Event) Payload() ([]byte, error) {
	b := e.Booking
	return json.Marshal(envelope{
		EventID:    e.ID,
		EventType:  e.Type,
		OccurredAt: e.OccurredAt,
		Booking: bookingPayload{
			ID:                 b.ID,
			CourtID:            b.CourtID,
			VenueID:            b.VenueID,
			UserID:             b.UserID,
			Date:               b.Date.String(),
			StartTime:          b.Interval.Start.String(),
			EndTime:            b.Interval.End.String(),
			Status:             string(b.Status),
			TotalAmount:        b.TotalAmount,
			PaymentStatus:      string(b.PaymentStatus),
			Notes:              b.Notes,
			CreatedAt:          b.CreatedAt,
			CancelledAt:        b.CancelledAt,
			CancellationReason: b.CancellationReason,
		},
	})
}
