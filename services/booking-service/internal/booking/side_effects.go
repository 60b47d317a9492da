package booking

import (
	"context"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/events"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

// detach runs fn after the ledger committed, outside any transaction. fn gets a context that
// keeps the caller's trace but not its cancellation.
func (s *Service) detach(ctx context.Context, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Service) afterConfirm(ctx context.Context, b model.Booking, now time.Time) {
	s.detach(ctx, func(ctx context.Context) {
		status, err := s.payments.RecordBooking(ctx, b)
		if err != nil {
			s.logger.ErrorContext(ctx, "payment record failed", "booking_id", b.ID, "err", err)
		}
		if status != "" && status != b.PaymentStatus {
			if err := s.ledger.SetPaymentStatus(ctx, b.ID, status); err != nil {
				s.logger.ErrorContext(ctx, "payment status update failed", "booking_id", b.ID, "err", err)
			} else {
				b.PaymentStatus = status
			}
		}
		s.publish(ctx, events.New(events.TypeBookingConfirmed, b, now))
	})
}

func (s *Service) afterCancel(ctx context.Context, b model.Booking, now time.Time) {
	s.publishAsync(ctx, events.New(events.TypeBookingCancelled, b, now))
}

func (s *Service) publishAsync(ctx context.Context, ev events.Event) {
	s.detach(ctx, func(ctx context.Context) { s.publish(ctx, ev) })
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "event publish failed", "event_type", ev.Type, "booking_id", ev.Booking.ID, "err", err)
	}
}

// Wait blocks until every pending side effect finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
