package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrConcurrency is returned when a reservation kept losing to concurrent writers.
	ErrConcurrency = errors.New("concurrent update, retry the request")
	// ErrNotActive is returned by Release for a completed booking and by Move for any inactive one.
	ErrNotActive = errors.New("booking is no longer active")
	// ErrKeyClaimed is returned by TryReserve when the idempotency key already belongs to a booking.
	ErrKeyClaimed = errors.New("idempotency key already used")
)

// IsConflict reports a violation of the bookings exclusion constraint.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// IsSerializationFailure reports serialization failures and deadlocks, both safe to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}
