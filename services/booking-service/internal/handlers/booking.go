package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/booking"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/storage"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

const (
	headerUserID         = "X-User-Id"
	headerRole           = "X-Role"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type BookingHandler struct {
	svc      *booking.Service
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*BookingHandler)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(h *BookingHandler) { h.now = now }
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger, opts ...Option) *BookingHandler {
	h := &BookingHandler{
		svc:      svc,
		logger:   logger,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "hhmm", func(fl validator.FieldLevel) bool {
		_, err := timeslot.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "civildate", func(fl validator.FieldLevel) bool {
		_, err := timeslot.ParseDate(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Register mounts every booking route on mux.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/bookings", h.Bookings)
	mux.HandleFunc("/api/v1/bookings/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/bookings/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/operating-hours", h.OperatingHours)
}

type createBookingRequest struct {
	CourtID   int64  `json:"court_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,civildate"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	Notes     string `json:"notes" validate:"max=500"`
}

type cancelBookingRequest struct {
	BookingID int64  `json:"booking_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

type rescheduleBookingRequest struct {
	BookingID int64  `json:"booking_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,civildate"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

type windowRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	OpenTime  string `json:"open_time" validate:"omitempty,hhmm"`
	CloseTime string `json:"close_time" validate:"omitempty,hhmm"`
	IsOpen    bool   `json:"is_open"`
}

type operatingHoursRequest struct {
	Target        string          `json:"target" validate:"required,oneof=court venue"`
	TargetID      int64           `json:"target_id" validate:"required,gt=0"`
	Windows       []windowRequest `json:"windows" validate:"dive"`
	EffectiveFrom string          `json:"effective_from" validate:"omitempty,civildate"`
	EffectiveTo   string          `json:"effective_to" validate:"omitempty,civildate"`
}

type bookingResponse struct {
	ID                 int64  `json:"id"`
	CourtID            int64  `json:"court_id"`
	VenueID            int64  `json:"venue_id"`
	UserID             int64  `json:"user_id"`
	Date               string `json:"date"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	Status             string `json:"status"`
	TotalAmount        int64  `json:"total_amount"`
	PaymentStatus      string `json:"payment_status"`
	Notes              string `json:"notes,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type rejectionResponse struct {
	Kind      string            `json:"kind"`
	Error     string            `json:"error"`
	Boundary  string            `json:"boundary,omitempty"`
	Weekday   string            `json:"weekday,omitempty"`
	Conflicts []bookingResponse `json:"conflicts,omitempty"`
}

type identity struct {
	UserID int64
	Role   string
}

// Bookings creates on POST and lists a court's active bookings for one date on GET.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	who, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.CreateBooking(r.Context(), booking.CreateRequest{
		CourtID:   req.CourtID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		UserID:    who.UserID,
		Notes:     strings.TrimSpace(req.Notes),

		IdempotencyKey: strings.TrimSpace(r.Header.Get(headerIdempotencyKey)),
	}, h.now())
	if err != nil {
		h.internalError(w, r, "create booking failed", err)
		return
	}
	if !res.OK() {
		h.writeRejection(w, res.Rejection)
		return
	}
	if res.Replayed {
		w.Header().Set(headerReplayed, "true")
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(res.Booking))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	courtID, ok := h.queryID(w, r, "court_id")
	if !ok {
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))

	list, rej, err := h.svc.ListActiveBookings(r.Context(), courtID, date)
	if err != nil {
		h.internalError(w, r, "list bookings failed", err)
		return
	}
	if rej != nil {
		h.writeRejection(w, rej)
		return
	}
	items := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		items = append(items, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	who, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req cancelBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.CancelBooking(r.Context(), booking.CancelRequest{
		BookingID: req.BookingID,
		UserID:    who.UserID,
		Role:      who.Role,
		Reason:    strings.TrimSpace(req.Reason),
	}, h.now())
	if err != nil {
		h.internalError(w, r, "cancel booking failed", err)
		return
	}
	if !res.OK() {
		h.writeRejection(w, res.Rejection)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(res.Booking))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	who, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req rescheduleBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.RescheduleBooking(r.Context(), booking.RescheduleRequest{
		BookingID: req.BookingID,
		UserID:    who.UserID,
		Role:      who.Role,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}, h.now())
	if err != nil {
		h.internalError(w, r, "reschedule booking failed", err)
		return
	}
	if !res.OK() {
		h.writeRejection(w, res.Rejection)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(res.Booking))
}

// Availability answers whether a slot could be booked right now, with its price.
// Rule refusals come back as 200 with available=false.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	courtID, ok := h.queryID(w, r, "court_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	out, err := h.svc.CheckAvailability(r.Context(), booking.CheckRequest{
		CourtID:   courtID,
		Date:      strings.TrimSpace(q.Get("date")),
		StartTime: strings.TrimSpace(q.Get("start_time")),
		EndTime:   strings.TrimSpace(q.Get("end_time")),
	}, h.now())
	if err != nil {
		h.internalError(w, r, "availability check failed", err)
		return
	}
	if !out.Available() {
		switch out.Rejection.Kind {
		case model.RejectValidation, model.RejectNotFound:
			h.writeRejection(w, out.Rejection)
			return
		}
		body := toRejectionResponse(out.Rejection)
		writeJSON(w, http.StatusOK, map[string]any{"available": false, "reason": body})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true, "total_amount": out.Price})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	courtID, ok := h.queryID(w, r, "court_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	duration, err := optionalInt(q.Get("duration_minutes"), 60)
	if err != nil {
		h.writeRejection(w, &model.Rejection{Kind: model.RejectValidation, Message: "invalid duration_minutes"})
		return
	}
	step, err := optionalInt(q.Get("slot_step_minutes"), 0)
	if err != nil {
		h.writeRejection(w, &model.Rejection{Kind: model.RejectValidation, Message: "invalid slot_step_minutes"})
		return
	}

	slots, rej, err := h.svc.FreeSlots(r.Context(), booking.SlotsRequest{
		CourtID:         courtID,
		Date:            strings.TrimSpace(q.Get("date")),
		DurationMinutes: duration,
		StepMinutes:     step,
	}, h.now())
	if err != nil {
		h.internalError(w, r, "slots lookup failed", err)
		return
	}
	if rej != nil {
		h.writeRejection(w, rej)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: s.Start.String(), EndTime: s.End.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

func (h *BookingHandler) OperatingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	who, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req operatingHoursRequest
	if !h.decode(w, r, &req) {
		return
	}

	windows := make([]booking.WindowInput, 0, len(req.Windows))
	for _, in := range req.Windows {
		windows = append(windows, booking.WindowInput{
			DayOfWeek: in.DayOfWeek,
			OpenTime:  in.OpenTime,
			CloseTime: in.CloseTime,
			IsOpen:    in.IsOpen,
		})
	}
	rej, err := h.svc.SetOperatingHours(r.Context(), booking.SetHoursRequest{
		Target:        req.Target,
		TargetID:      req.TargetID,
		Windows:       windows,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		UserID:        who.UserID,
		Role:          who.Role,
	})
	if err != nil {
		h.internalError(w, r, "set operating hours failed", err)
		return
	}
	if rej != nil {
		h.writeRejection(w, rej)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) identify(w http.ResponseWriter, r *http.Request) (identity, bool) {
	raw := strings.TrimSpace(r.Header.Get(headerUserID))
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		writeJSON(w, http.StatusUnauthorized, rejectionResponse{Kind: "UNAUTHENTICATED", Error: "missing or invalid " + headerUserID})
		return identity{}, false
	}
	return identity{UserID: id, Role: strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole)))}, true
}

func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeRejection(w, &model.Rejection{Kind: model.RejectValidation, Message: "invalid json body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeRejection(w, &model.Rejection{Kind: model.RejectValidation, Message: validationMessage(err)})
		return false
	}
	return true
}

func (h *BookingHandler) queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeRejection(w, &model.Rejection{Kind: model.RejectValidation, Message: "invalid " + name})
		return 0, false
	}
	return id, true
}

func optionalInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "hhmm":
			parts = append(parts, fe.Field()+" must be HH:MM")
		case "civildate":
			parts = append(parts, fe.Field()+" must be YYYY-MM-DD")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// statusFor maps a rejection kind to its HTTP status.
func statusFor(kind model.RejectionKind) int {
	switch kind {
	case model.RejectValidation:
		return http.StatusBadRequest
	case model.RejectNotFound:
		return http.StatusNotFound
	case model.RejectForbidden:
		return http.StatusForbidden
	case model.RejectSlotTaken, model.RejectInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *BookingHandler) writeRejection(w http.ResponseWriter, rej *model.Rejection) {
	writeJSON(w, statusFor(rej.Kind), toRejectionResponse(rej))
}

// internalError answers infrastructure failures. Lost write races are retryable and get 503.
func (h *BookingHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, storage.ErrConcurrency) {
		h.logger.WarnContext(r.Context(), msg, "err", err, "path", r.URL.Path)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, rejectionResponse{Kind: "CONCURRENCY", Error: "concurrent update, retry the request"})
		return
	}
	h.logger.ErrorContext(r.Context(), msg, "err", err, "path", r.URL.Path)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func toRejectionResponse(rej *model.Rejection) rejectionResponse {
	out := rejectionResponse{Kind: string(rej.Kind), Error: rej.Message}
	if rej.Boundary != nil {
		out.Boundary = rej.Boundary.String()
	}
	if rej.Weekday != nil {
		out.Weekday = rej.Weekday.String()
	}
	for _, b := range rej.Conflicts {
		out.Conflicts = append(out.Conflicts, toBookingResponse(b))
	}
	return out
}

func toBookingResponse(b model.Booking) bookingResponse {
	out := bookingResponse{
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
		CancellationReason: b.CancellationReason,
	}
	if !b.CreatedAt.IsZero() {
		out.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	if b.CancelledAt != nil {
		out.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
