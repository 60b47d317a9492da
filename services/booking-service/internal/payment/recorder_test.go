package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

func booking(amount int64) model.Booking {
	return model.Booking{
		ID:          41,
		CourtID:     7,
		UserID:      9,
		Date:        timeslot.MustDate("2024-01-08"),
		Interval:    timeslot.MustInterval("15:00", "16:00"),
		TotalAmount: amount,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStripeRecorderCreatesPaymentIntent(t *testing.T) {
	var (
		mu      sync.Mutex
		form    url.Values
		idemKey string
		path    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		form, idemKey, path = r.PostForm, r.Header.Get("Idempotency-Key"), r.URL.Path
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":2000,"currency":"usd","status":"requires_payment_method"}`))
	}))
	defer srv.Close()

	rec, err := NewStripeRecorder(StripeConfig{SecretKey: "sk_test_123", Currency: "USD", BaseURL: srv.URL}, discardLogger())
	if err != nil {
		t.Fatalf("NewStripeRecorder failed: %v", err)
	}
	status, err := rec.RecordBooking(context.Background(), booking(2000))
	if err != nil {
		t.Fatalf("RecordBooking failed: %v", err)
	}
	if status != model.PaymentAwaitingCapture {
		t.Fatalf("expected awaiting_payment, got %s", status)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/v1/payment_intents" {
		t.Fatalf("unexpected path %s", path)
	}
	if form.Get("amount") != "2000" || form.Get("currency") != "usd" || form.Get("metadata[booking_id]") != "41" {
		t.Fatalf("unexpected form %v", form)
	}
	if idemKey != "booking-41" {
		t.Fatalf("unexpected idempotency key %q", idemKey)
	}
}

func TestStripeRecorderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"declined"}}`))
	}))
	defer srv.Close()

	rec, _ := NewStripeRecorder(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL}, discardLogger())
	status, err := rec.RecordBooking(context.Background(), booking(2000))
	if err == nil {
		t.Fatal("expected error")
	}
	if status != model.PaymentFailed {
		t.Fatalf("expected failed, got %s", status)
	}
}

func TestZeroAmountIsWaived(t *testing.T) {
	rec, _ := NewStripeRecorder(StripeConfig{SecretKey: "sk_test_123", BaseURL: "http://127.0.0.1:1"}, discardLogger())
	if status, err := rec.RecordBooking(context.Background(), booking(0)); err != nil || status != model.PaymentWaived {
		t.Fatalf("expected waived, got %s %v", status, err)
	}
	if status, _ := NewLogRecorder(discardLogger()).RecordBooking(context.Background(), booking(0)); status != model.PaymentWaived {
		t.Fatalf("expected waived, got %s", status)
	}
	if _, err := NewStripeRecorder(StripeConfig{}, nil); err == nil {
		t.Fatal("expected error without secret key")
	}
}
