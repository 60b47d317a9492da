package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Alecxender1402/QuickCourt/libs/db"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// BookingRepository is the Postgres ledger. Reservations for one (court, date) are
// serialized by a transaction-scoped advisory lock taken before the overlap scan.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

const bookingColumns = `id, court_id, venue_id, user_id, booking_date, start_minute, end_minute, status,
	total_amount, payment_status, notes, created_at, cancelled_at, COALESCE(cancellation_reason, '')`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (model.Booking, error) {
	var (
		b           model.Booking
		date        time.Time
		start, end  int
		cancelledAt *time.Time
	)
	err := row.Scan(
		&b.ID,
		&b.CourtID,
		&b.VenueID,
		&b.UserID,
		&date,
		&start,
		&end,
		&b.Status,
		&b.TotalAmount,
		&b.PaymentStatus,
		&b.Notes,
		&b.CreatedAt,
		&cancelledAt,
		&b.CancellationReason,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Date = timeslot.DateOf(date)
	b.Interval = timeslot.Interval{Start: timeslot.TimeOfDay(start), End: timeslot.TimeOfDay(end)}
	b.CancelledAt = cancelledAt
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func dateArg(d timeslot.Date) time.Time {
	return d.Midnight(time.UTC)
}

func (r *BookingRepository) ListActive(ctx context.Context, courtID int64, date timeslot.Date) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE court_id = $1
			AND booking_date = $2
			AND status IN ('pending', 'confirmed')
		ORDER BY start_minute ASC
	`, courtID, dateArg(date))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *BookingRepository) Get(ctx context.Context, id int64) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// TryReserve inserts res unless an active booking on the same court and date overlaps it.
// On overlap it returns every overlapping booking and writes nothing. A reservation carrying
// an idempotency key already claimed by the user fails with ErrKeyClaimed.
func (r *BookingRepository) TryReserve(ctx context.Context, res model.Reservation) (model.Booking, []model.Booking, error) {
	var b model.Booking
	conflicts, err := withReserveRetry(func() ([]model.Booking, error) {
		var (
			conflicts []model.Booking
			err       error
		)
		b, conflicts, err = r.tryReserveOnce(ctx, res)
		return conflicts, err
	}, func() ([]model.Booking, error) {
		return overlapping(ctx, r.pool, res.CourtID, res.Date, res.Interval, 0, false)
	})
	if err != nil || len(conflicts) > 0 {
		return model.Booking{}, conflicts, err
	}
	return b, nil, nil
}

// withReserveRetry runs attempt and retries it once after a serialization failure or deadlock.
// An exclusion violation means a writer got past the advisory lock, e.g. a manual insert:
// recheck reports what overlaps now, and when nothing does the attempt is retried as well.
func withReserveRetry(attempt, recheck func() ([]model.Booking, error)) ([]model.Booking, error) {
	for n := 0; ; n++ {
		conflicts, err := attempt()
		if err == nil {
			return conflicts, nil
		}
		if IsConflict(err) {
			current, lerr := recheck()
			if lerr != nil {
				return nil, lerr
			}
			if len(current) > 0 {
				return current, nil
			}
		} else if !IsSerializationFailure(err) {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: %v", ErrConcurrency, err)
		}
	}
}

func scopeLockKey(courtID int64, date timeslot.Date) string {
	return fmt.Sprintf("court:%d:%s", courtID, date)
}

// lockScopes takes the advisory lock of every distinct key in sorted order.
func lockScopes(ctx context.Context, tx pgx.Tx, keys ...string) error {
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 && k == keys[i-1] {
			continue
		}
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return err
		}
	}
	return nil
}

func (r *BookingRepository) tryReserveOnce(ctx context.Context, res model.Reservation) (model.Booking, []model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Claim the key before the scope lock: a concurrent request with the same key blocks
	// here until this one commits or rolls back.
	if res.IdempotencyKey != "" {
		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_idempotency_keys (user_id, idempotency_key, request_hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, idempotency_key) DO NOTHING
		`, res.UserID, res.IdempotencyKey, res.RequestHash)
		if err != nil {
			return model.Booking{}, nil, err
		}
		if tag.RowsAffected() == 0 {
			return model.Booking{}, nil, ErrKeyClaimed
		}
	}

	if err := lockScopes(ctx, tx, scopeLockKey(res.CourtID, res.Date)); err != nil {
		return model.Booking{}, nil, err
	}
	conflicts, err := overlapping(ctx, tx, res.CourtID, res.Date, res.Interval, 0, true)
	if err != nil {
		return model.Booking{}, nil, err
	}
	if len(conflicts) > 0 {
		return model.Booking{}, conflicts, nil
	}

	b, err := insertBooking(ctx, tx, res)
	if err != nil {
		return model.Booking{}, nil, err
	}
	if res.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE booking_idempotency_keys
			SET booking_id = $3
			WHERE user_id = $1 AND idempotency_key = $2
		`, res.UserID, res.IdempotencyKey, b.ID); err != nil {
			return model.Booking{}, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, nil, err
	}
	return b, nil, nil
}

func insertBooking(ctx context.Context, tx pgx.Tx, res model.Reservation) (model.Booking, error) {
	status := res.Status
	if status == "" {
		status = model.StatusConfirmed
	}
	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return scanBooking(tx.QueryRow(ctx, `
		INSERT INTO bookings
			(court_id, venue_id, user_id, booking_date, start_minute, end_minute, status, total_amount, payment_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+bookingColumns,
		res.CourtID, res.VenueID, res.UserID, dateArg(res.Date), res.Interval.Start.Minutes(), res.Interval.End.Minutes(),
		status, res.TotalAmount, model.PaymentPending, res.Notes, createdAt))
}

// FindByIdempotencyKey returns the booking that claimed key for userID and the request hash
// stored with it, or ErrNotFound.
func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Booking, string, error) {
	var (
		bookingID *int64
		hash      string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT booking_id, request_hash
		FROM booking_idempotency_keys
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key).Scan(&bookingID, &hash)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && bookingID == nil) {
		return model.Booking{}, "", ErrNotFound
	}
	if err != nil {
		return model.Booking{}, "", err
	}
	b, err := r.Get(ctx, *bookingID)
	if err != nil {
		return model.Booking{}, "", err
	}
	return b, hash, nil
}

// Move replaces booking oldID with res in one transaction: the old booking is ignored by
// the overlap scan, cancelled with reason and the new one inserted. On conflict nothing is
// written. It returns the new booking and the cancelled one.
func (r *BookingRepository) Move(ctx context.Context, oldID int64, res model.Reservation, reason string, at time.Time) (model.Booking, model.Booking, []model.Booking, error) {
	var next, cancelled model.Booking
	conflicts, err := withReserveRetry(func() ([]model.Booking, error) {
		var (
			conflicts []model.Booking
			err       error
		)
		next, cancelled, conflicts, err = r.moveOnce(ctx, oldID, res, reason, at)
		return conflicts, err
	}, func() ([]model.Booking, error) {
		return overlapping(ctx, r.pool, res.CourtID, res.Date, res.Interval, oldID, false)
	})
	if err != nil || len(conflicts) > 0 {
		return model.Booking{}, model.Booking{}, conflicts, err
	}
	return next, cancelled, nil, nil
}

func (r *BookingRepository) moveOnce(ctx context.Context, oldID int64, res model.Reservation, reason string, at time.Time) (model.Booking, model.Booking, []model.Booking, error) {
	var none model.Booking
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return none, none, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		oldCourt int64
		oldDate  time.Time
	)
	err = tx.QueryRow(ctx, `SELECT court_id, booking_date FROM bookings WHERE id = $1`, oldID).Scan(&oldCourt, &oldDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return none, none, nil, ErrNotFound
	}
	if err != nil {
		return none, none, nil, err
	}
	if err := lockScopes(ctx, tx, scopeLockKey(oldCourt, timeslot.DateOf(oldDate)), scopeLockKey(res.CourtID, res.Date)); err != nil {
		return none, none, nil, err
	}

	old, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, oldID))
	if err != nil {
		return none, none, nil, err
	}
	if !old.Status.Active() {
		return none, none, nil, ErrNotActive
	}
	conflicts, err := overlapping(ctx, tx, res.CourtID, res.Date, res.Interval, oldID, true)
	if err != nil {
		return none, none, nil, err
	}
	if len(conflicts) > 0 {
		return none, none, conflicts, nil
	}

	cancelled, err := cancelBooking(ctx, tx, oldID, reason, at)
	if err != nil {
		return none, none, nil, err
	}
	next, err := insertBooking(ctx, tx, res)
	if err != nil {
		return none, none, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return none, none, nil, err
	}
	return next, cancelled, nil, nil
}

// overlapping lists active bookings on the court/date whose interval overlaps iv (half-open),
// leaving out skipID.
func overlapping(ctx context.Context, q querier, courtID int64, date timeslot.Date, iv timeslot.Interval, skipID int64, lock bool) ([]model.Booking, error) {
	sql := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE court_id = $1
			AND booking_date = $2
			AND status IN ('pending', 'confirmed')
			AND start_minute < $4
			AND end_minute > $3
			AND id <> $5
		ORDER BY start_minute ASC`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, courtID, dateArg(date), iv.Start.Minutes(), iv.End.Minutes(), skipID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func cancelBooking(ctx context.Context, tx pgx.Tx, id int64, reason string, at time.Time) (model.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = $2,
			cancellation_reason = $3
		WHERE id = $1
		RETURNING `+bookingColumns, id, at, reason))
}

// Release cancels a booking and reports whether this call changed it. An already cancelled
// booking is returned unchanged; a completed one is returned with ErrNotActive.
func (r *BookingRepository) Release(ctx context.Context, id int64, reason string, at time.Time) (model.Booking, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, false, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	switch b.Status {
	case model.StatusCancelled:
		return b, false, nil
	case model.StatusCompleted:
		return b, false, ErrNotActive
	}

	b, err = cancelBooking(ctx, tx, id, reason, at)
	if err != nil {
		return model.Booking{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, false, err
	}
	return b, true, nil
}

func (r *BookingRepository) SetPaymentStatus(ctx context.Context, id int64, status model.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE bookings SET payment_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteEnded moves confirmed bookings that ended at or before (today, minute) to completed
// and returns them.
func (r *BookingRepository) CompleteEnded(ctx context.Context, today timeslot.Date, minute timeslot.TimeOfDay) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE bookings
		SET status = 'completed'
		WHERE status = 'confirmed'
			AND (booking_date < $1 OR (booking_date = $1 AND end_minute <= $2))
		RETURNING `+bookingColumns, dateArg(today), minute.Minutes())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}
