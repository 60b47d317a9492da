// Package payment hands confirmed bookings to the payment provider. Failures here never undo
// a booking; the caller records the returned status and logs the error.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

type Recorder interface {
	RecordBooking(ctx context.Context, b model.Booking) (model.PaymentStatus, error)
}

// StripeRecorder opens a PaymentIntent for the booking total.
type StripeRecorder struct {
	api      *client.API
	currency string
	logger   *slog.Logger
}

type StripeConfig struct {
	SecretKey string
	Currency  string
	// BaseURL overrides the Stripe API endpoint, e.g. for stripe-mock.
	BaseURL string
}

func NewStripeRecorder(cfg StripeConfig, logger *slog.Logger) (*StripeRecorder, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	var backends *stripe.Backends
	if cfg.BaseURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.BaseURL),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &StripeRecorder{api: api, currency: currency, logger: logger}, nil
}

func (r *StripeRecorder) RecordBooking(ctx context.Context, b model.Booking) (model.PaymentStatus, error) {
	if b.TotalAmount <= 0 {
		return model.PaymentWaived, nil
	}
	bookingID := strconv.FormatInt(b.ID, 10)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(b.TotalAmount),
		Currency: stripe.String(r.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String("Court " + strconv.FormatInt(b.CourtID, 10) + " " + b.Date.String() + " " + b.Interval.String()),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", bookingID)
	params.AddMetadata("court_id", strconv.FormatInt(b.CourtID, 10))
	params.AddMetadata("user_id", strconv.FormatInt(b.UserID, 10))
	// Stripe-level idempotency: a retried side effect reuses the same intent.
	params.IdempotencyKey = stripe.String("booking-" + bookingID)

	pi, err := r.api.PaymentIntents.New(params)
	if err != nil {
		return model.PaymentFailed, err
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, "payment intent created", "booking_id", b.ID, "payment_intent_id", pi.ID, "amount", b.TotalAmount)
	}
	return model.PaymentAwaitingCapture, nil
}

// LogRecorder is used when no payment provider is configured.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) RecordBooking(ctx context.Context, b model.Booking) (model.PaymentStatus, error) {
	if b.TotalAmount <= 0 {
		return model.PaymentWaived, nil
	}
	r.logger.InfoContext(ctx, "payment provider disabled, booking awaits payment", "booking_id", b.ID, "amount", b.TotalAmount)
	return model.PaymentAwaitingCapture, nil
}
