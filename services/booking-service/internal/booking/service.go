// Package booking composes the availability rules and the ledger into the create, cancel and
// reschedule operations exposed to callers.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/availability"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/courts"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/events"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/hours"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/payment"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/storage"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// Ledger is the authoritative booking store.
type Ledger interface {
	ListActive(ctx context.Context, courtID int64, date timeslot.Date) ([]model.Booking, error)
	TryReserve(ctx context.Context, res model.Reservation) (model.Booking, []model.Booking, error)
	Release(ctx context.Context, id int64, reason string, at time.Time) (model.Booking, bool, error)
	// Move cancels oldID and reserves res atomically. It returns the new booking and the
	// cancelled one, or the conflicts when nothing was written.
	Move(ctx context.Context, oldID int64, res model.Reservation, reason string, at time.Time) (model.Booking, model.Booking, []model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Booking, string, error)
	Get(ctx context.Context, id int64) (model.Booking, error)
	SetPaymentStatus(ctx context.Context, id int64, status model.PaymentStatus) error
	CompleteEnded(ctx context.Context, today timeslot.Date, minute timeslot.TimeOfDay) ([]model.Booking, error)
}

type CourtCatalog interface {
	Court(ctx context.Context, id int64) (model.CourtSummary, error)
}

type HoursWriter interface {
	ReplaceWindows(ctx context.Context, target hours.Target, windows []model.OperatingWindow) error
}

type Deps struct {
	Courts    CourtCatalog
	Hours     HoursWriter
	Evaluator *availability.Evaluator
	Ledger    Ledger
	Payments  payment.Recorder
	Notifier  events.Notifier
	Logger    *slog.Logger
}

type Config struct {
	// ElevatedRoles may cancel any booking and set operating hours.
	ElevatedRoles []string
	// SideEffectTimeout bounds each post-commit payment/notification call.
	SideEffectTimeout time.Duration
}

type Service struct {
	courts   CourtCatalog
	hours    HoursWriter
	eval     *availability.Evaluator
	ledger   Ledger
	payments payment.Recorder
	notifier events.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer

	elevated          map[string]bool
	sideEffectTimeout time.Duration
	wg                sync.WaitGroup
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Payments == nil {
		deps.Payments = payment.NewLogRecorder(deps.Logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = events.NewLogNotifier(deps.Logger)
	}
	if len(cfg.ElevatedRoles) == 0 {
		cfg.ElevatedRoles = []string{"owner", "admin"}
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 10 * time.Second
	}
	elevated := map[string]bool{}
	for _, r := range cfg.ElevatedRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			elevated[r] = true
		}
	}
	return &Service{
		courts:            deps.Courts,
		hours:             deps.Hours,
		eval:              deps.Evaluator,
		ledger:            deps.Ledger,
		payments:          deps.Payments,
		notifier:          deps.Notifier,
		logger:            deps.Logger,
		tracer:            otel.Tracer("booking-service/booking"),
		elevated:          elevated,
		sideEffectTimeout: cfg.SideEffectTimeout,
	}
}

func (s *Service) isElevated(role string) bool {
	return s.elevated[strings.ToLower(strings.TrimSpace(role))]
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+name, trace.WithAttributes(attrs...))
}

// finish annotates span with the outcome and ends it.
func finish(span trace.Span, rej *model.Rejection, err error) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case rej != nil:
		span.SetAttributes(attribute.String("booking.rejection", string(rej.Kind)))
	}
	span.End()
}

// bookableCourt resolves the court and reports NOT_FOUND for missing, inactive or unapproved ones.
func (s *Service) bookableCourt(ctx context.Context, id int64) (model.CourtSummary, *model.Rejection, error) {
	court, err := s.courts.Court(ctx, id)
	if errors.Is(err, courts.ErrNotFound) {
		return model.CourtSummary{}, rejected(model.RejectNotFound, "Court %d was not found", id), nil
	}
	if err != nil {
		return model.CourtSummary{}, nil, fmt.Errorf("load court %d: %w", id, err)
	}
	if !court.Bookable() {
		return model.CourtSummary{}, rejected(model.RejectNotFound, "Court %d is not available for booking", id), nil
	}
	return court, nil, nil
}

// CreateBooking validates the request, checks availability and reserves the interval.
// Payment and notification run after the reservation committed and never undo it.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest, now time.Time) (res Result, err error) {
	ctx, span := s.startSpan(ctx, "CreateBooking", attribute.Int64("court.id", req.CourtID), attribute.String("booking.date", req.Date))
	defer func() { finish(span, res.Rejection, err) }()

	if req.UserID <= 0 {
		return Result{Rejection: rejected(model.RejectValidation, "user id is required")}, nil
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return Result{Rejection: rejected(model.RejectValidation, "idempotency key longer than %d characters", maxIdempotencyKeyLen)}, nil
	}
	if req.IdempotencyKey != "" {
		if res, done, err := s.replay(ctx, req); done || err != nil {
			return res, err
		}
	}
	date, iv, rej := parseSlot(req.Date, req.StartTime, req.EndTime)
	if rej != nil {
		return Result{Rejection: rej}, nil
	}

	court, rej, err := s.bookableCourt(ctx, req.CourtID)
	if err != nil || rej != nil {
		return Result{Rejection: rej}, err
	}

	decision, err := s.eval.Check(ctx, court.ID, date, iv, now)
	if err != nil {
		return Result{}, err
	}
	if !decision.Accepted() {
		return Result{Rejection: decision.Rejection}, nil
	}

	r := s.newReservation(court, req.UserID, date, iv, req.Notes, now)
	if req.IdempotencyKey != "" {
		r.IdempotencyKey, r.RequestHash = req.IdempotencyKey, req.fingerprint()
	}
	b, conflicts, err := s.ledger.TryReserve(ctx, r)
	if errors.Is(err, storage.ErrKeyClaimed) {
		// A concurrent request with the same key won.
		out, done, err := s.replay(ctx, req)
		if err == nil && !done {
			err = fmt.Errorf("idempotency key claimed without a booking: %w", storage.ErrConcurrency)
		}
		return out, err
	}
	if err != nil {
		return Result{}, fmt.Errorf("reserve court %d: %w", court.ID, err)
	}
	if len(conflicts) > 0 {
		return Result{Rejection: slotTaken(iv, conflicts)}, nil
	}

	s.logger.InfoContext(ctx, "booking confirmed", "booking_id", b.ID, "court_id", b.CourtID, "date", b.Date.String(), "interval", b.Interval.String())
	s.afterConfirm(ctx, b, now)
	return Result{Booking: b}, nil
}

func (s *Service) newReservation(court model.CourtSummary, userID int64, date timeslot.Date, iv timeslot.Interval, notes string, now time.Time) model.Reservation {
	return model.Reservation{
		CourtID:     court.ID,
		VenueID:     court.VenueID,
		UserID:      userID,
		Date:        date,
		Interval:    iv,
		Status:      model.StatusConfirmed,
		TotalAmount: court.PriceFor(iv.DurationMinutes()),
		Notes:       notes,
		CreatedAt:   now.UTC(),
	}
}

// replay answers a create whose idempotency key the user already spent. done is false when
// the key is unused.
func (s *Service) replay(ctx context.Context, req CreateRequest) (res Result, done bool, err error) {
	b, hash, err := s.ledger.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if hash != req.fingerprint() {
		return Result{Rejection: rejected(model.RejectIdempotencyKeyReused, "Idempotency key was already used for a different request")}, true, nil
	}
	s.logger.InfoContext(ctx, "booking create replayed", "booking_id", b.ID, "user_id", req.UserID)
	return Result{Booking: b, Replayed: true}, true, nil
}

func slotTaken(iv timeslot.Interval, conflicts []model.Booking) *model.Rejection {
	taken := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		taken = append(taken, c.Interval.String())
	}
	return &model.Rejection{
		Kind:      model.RejectSlotTaken,
		Message:   fmt.Sprintf("The slot %s overlaps existing bookings: already booked %s", iv, strings.Join(taken, ", ")),
		Conflicts: conflicts,
	}
}

// Availability is the answer to CheckAvailability. Price is the quote for the interval
// when it is available.
type Availability struct {
	Rejection *model.Rejection
	Price     int64
}

func (a Availability) Available() bool { return a.Rejection == nil }

// CheckAvailability runs the same checks as CreateBooking without reserving anything.
// The answer is advisory; only CreateBooking holds a slot.
func (s *Service) CheckAvailability(ctx context.Context, req CheckRequest, now time.Time) (out Availability, err error) {
	ctx, span := s.startSpan(ctx, "CheckAvailability", attribute.Int64("court.id", req.CourtID))
	defer func() { finish(span, out.Rejection, err) }()

	date, iv, rej := parseSlot(req.Date, req.StartTime, req.EndTime)
	if rej != nil {
		return Availability{Rejection: rej}, nil
	}
	court, rej, err := s.bookableCourt(ctx, req.CourtID)
	if err != nil || rej != nil {
		return Availability{Rejection: rej}, err
	}
	decision, err := s.eval.Check(ctx, court.ID, date, iv, now)
	if err != nil {
		return Availability{}, err
	}
	if !decision.Accepted() {
		return Availability{Rejection: decision.Rejection}, nil
	}

	active, err := s.ledger.ListActive(ctx, court.ID, date)
	if err != nil {
		return Availability{}, fmt.Errorf("list bookings: %w", err)
	}
	var conflicts []model.Booking
	for _, b := range active {
		if b.Interval.Overlaps(iv) {
			conflicts = append(conflicts, b)
		}
	}
	if len(conflicts) > 0 {
		return Availability{Rejection: slotTaken(iv, conflicts)}, nil
	}
	return Availability{Price: court.PriceFor(iv.DurationMinutes())}, nil
}

// CancelBooking releases a booking owned by the caller, or any booking for elevated roles.
// Cancelling an already cancelled booking returns it unchanged.
func (s *Service) CancelBooking(ctx context.Context, req CancelRequest, now time.Time) (res Result, err error) {
	ctx, span := s.startSpan(ctx, "CancelBooking", attribute.Int64("booking.id", req.BookingID))
	defer func() { finish(span, res.Rejection, err) }()

	current, rej, err := s.ownedBooking(ctx, req.BookingID, req.UserID, req.Role)
	if err != nil || rej != nil {
		return Result{Rejection: rej}, err
	}
	switch current.Status {
	case model.StatusCancelled:
		return Result{Booking: current}, nil
	case model.StatusCompleted:
		return Result{Rejection: rejected(model.RejectInvalidTransition, "Booking %d is already completed", current.ID)}, nil
	}

	b, released, err := s.ledger.Release(ctx, current.ID, strings.TrimSpace(req.Reason), now.UTC())
	if errors.Is(err, storage.ErrNotActive) {
		return Result{Rejection: rejected(model.RejectInvalidTransition, "Booking %d is already completed", current.ID)}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("release booking %d: %w", current.ID, err)
	}
	if released {
		s.logger.InfoContext(ctx, "booking cancelled", "booking_id", b.ID, "by_user", req.UserID)
		s.afterCancel(ctx, b, now)
	}
	return Result{Booking: b}, nil
}

func (s *Service) ownedBooking(ctx context.Context, id, userID int64, role string) (model.Booking, *model.Rejection, error) {
	b, err := s.ledger.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Booking{}, rejected(model.RejectNotFound, "Booking %d was not found", id), nil
	}
	if err != nil {
		return model.Booking{}, nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	if b.UserID != userID && !s.isElevated(role) {
		return model.Booking{}, rejected(model.RejectForbidden, "Booking %d belongs to another user", id), nil
	}
	return b, nil, nil
}

// RescheduleBooking cancels the booking and reserves the new slot in one ledger write, so
// either both happen or nothing changes. The result is a new booking.
func (s *Service) RescheduleBooking(ctx context.Context, req RescheduleRequest, now time.Time) (res Result, err error) {
	ctx, span := s.startSpan(ctx, "RescheduleBooking", attribute.Int64("booking.id", req.BookingID))
	defer func() { finish(span, res.Rejection, err) }()

	date, iv, rej := parseSlot(req.Date, req.StartTime, req.EndTime)
	if rej != nil {
		return Result{Rejection: rej}, nil
	}
	old, rej, err := s.ownedBooking(ctx, req.BookingID, req.UserID, req.Role)
	if err != nil || rej != nil {
		return Result{Rejection: rej}, err
	}
	if !old.Status.Active() {
		return Result{Rejection: rejected(model.RejectInvalidTransition, "Booking %d is %s and cannot be rescheduled", old.ID, old.Status)}, nil
	}

	court, rej, err := s.bookableCourt(ctx, old.CourtID)
	if err != nil || rej != nil {
		return Result{Rejection: rej}, err
	}
	decision, err := s.eval.Check(ctx, court.ID, date, iv, now)
	if err != nil {
		return Result{}, err
	}
	if !decision.Accepted() {
		return Result{Rejection: decision.Rejection}, nil
	}

	reason := fmt.Sprintf("rescheduled to %s %s", date, iv)
	next, cancelled, conflicts, err := s.ledger.Move(ctx, old.ID, s.newReservation(court, old.UserID, date, iv, old.Notes, now), reason, now.UTC())
	switch {
	case errors.Is(err, storage.ErrNotActive):
		return Result{Rejection: rejected(model.RejectInvalidTransition, "Booking %d is no longer active and cannot be rescheduled", old.ID)}, nil
	case errors.Is(err, storage.ErrNotFound):
		return Result{Rejection: rejected(model.RejectNotFound, "Booking %d was not found", old.ID)}, nil
	case err != nil:
		return Result{}, fmt.Errorf("move booking %d: %w", old.ID, err)
	case len(conflicts) > 0:
		return Result{Rejection: slotTaken(iv, conflicts)}, nil
	}

	s.logger.InfoContext(ctx, "booking rescheduled", "booking_id", old.ID, "new_booking_id", next.ID)
	s.afterCancel(ctx, cancelled, now)
	s.afterConfirm(ctx, next, now)
	return Result{Booking: next}, nil
}

// SetOperatingHours replaces the windows of a court or venue. Only elevated roles may do so.
func (s *Service) SetOperatingHours(ctx context.Context, req SetHoursRequest) (rej *model.Rejection, err error) {
	ctx, span := s.startSpan(ctx, "SetOperatingHours", attribute.String("hours.target", req.Target), attribute.Int64("hours.target_id", req.TargetID))
	defer func() { finish(span, rej, err) }()

	if !s.isElevated(req.Role) {
		return rejected(model.RejectForbidden, "Only venue owners can change operating hours"), nil
	}
	target, windows, rej := parseWindows(req)
	if rej != nil {
		return rej, nil
	}
	if target.Kind == hours.TargetCourt {
		if _, err := s.courts.Court(ctx, target.ID); errors.Is(err, courts.ErrNotFound) {
			return rejected(model.RejectNotFound, "Court %d was not found", target.ID), nil
		} else if err != nil {
			return nil, fmt.Errorf("load court %d: %w", target.ID, err)
		}
	}

	err = s.hours.ReplaceWindows(ctx, target, windows)
	var verr *hours.ValidationError
	if errors.As(err, &verr) {
		return invalid(verr), nil
	}
	if err != nil {
		return nil, fmt.Errorf("replace windows for %s: %w", target, err)
	}
	s.logger.InfoContext(ctx, "operating hours replaced", "target", target.String(), "windows", len(windows), "by_user", req.UserID)
	return nil, nil
}

// ListActiveBookings returns pending and confirmed bookings of a court on a date.
func (s *Service) ListActiveBookings(ctx context.Context, courtID int64, date string) ([]model.Booking, *model.Rejection, error) {
	d, err := timeslot.ParseDate(date)
	if err != nil {
		return nil, invalid(fmt.Errorf("date: %w", err)), nil
	}
	out, err := s.ledger.ListActive(ctx, courtID, d)
	if err != nil {
		return nil, nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil, nil
}

// FreeSlots lists start times a booking of the requested length could currently take.
func (s *Service) FreeSlots(ctx context.Context, req SlotsRequest, now time.Time) ([]timeslot.Interval, *model.Rejection, error) {
	d, err := timeslot.ParseDate(req.Date)
	if err != nil {
		return nil, invalid(fmt.Errorf("date: %w", err)), nil
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > timeslot.MinutesPerDay {
		return nil, rejected(model.RejectValidation, "duration_minutes must be between 1 and %d", timeslot.MinutesPerDay), nil
	}
	if req.StepMinutes <= 0 {
		req.StepMinutes = req.DurationMinutes
	}
	court, rej, err := s.bookableCourt(ctx, req.CourtID)
	if err != nil || rej != nil {
		return nil, rej, err
	}
	active, err := s.ledger.ListActive(ctx, court.ID, d)
	if err != nil {
		return nil, nil, fmt.Errorf("list bookings: %w", err)
	}
	busy := make([]timeslot.Interval, 0, len(active))
	for _, b := range active {
		busy = append(busy, b.Interval)
	}
	slots, err := s.eval.FreeSlots(ctx, court.ID, d, req.DurationMinutes, req.StepMinutes, busy, now)
	if err != nil {
		return nil, nil, err
	}
	return slots, nil, nil
}

// CompleteFinished marks confirmed bookings that have ended as completed.
func (s *Service) CompleteFinished(ctx context.Context, now time.Time) (n int, err error) {
	ctx, span := s.startSpan(ctx, "CompleteFinished")
	defer func() { finish(span, nil, err) }()

	today, minute := s.eval.Today(now)
	done, err := s.ledger.CompleteEnded(ctx, today, minute)
	if err != nil {
		return 0, fmt.Errorf("complete ended bookings: %w", err)
	}
	for _, b := range done {
		s.publishAsync(ctx, events.New(events.TypeBookingCompleted, b, now))
	}
	span.SetAttributes(attribute.Int("booking.completed", len(done)))
	return len(done), nil
}
