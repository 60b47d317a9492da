package events

import (
	"context"
	"log/slog"

	otelx "github.com/Alecxender1402/QuickCourt/libs/otel"
)

// LogNotifier only logs events. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, ev Event) error {
	traceparent, _ := otelx.TraceContextStrings(ctx)
	n.logger.InfoContext(ctx, "booking event",
		"traceparent", traceparent,
		"event_id", ev.ID,
		"event_type", ev.Type,
		"booking_id", ev.Booking.ID,
		"court_id", ev.Booking.CourtID,
		"date", ev.Booking.Date.String(),
		"interval", ev.Booking.Interval.String(),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
