package hours

import (
	"context"
	"strings"
	"time"

	"github.com/Alecxender1402/QuickCourt/libs/db"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type PostgresRepository struct {
	pool *db.Pool
}

func NewPostgresRepository(pool *db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context, target Target) ([]model.OperatingWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, open_minute, close_minute, is_open, effective_from, effective_to
		FROM operating_windows
		WHERE target_kind = $1 AND target_id = $2
		ORDER BY day_of_week ASC, open_minute ASC
	`, string(target.Kind), target.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperatingWindow
	for rows.Next() {
		var (
			day, open, close int
			isOpen           bool
			from, to         *time.Time
		)
		if err := rows.Scan(&day, &open, &close, &isOpen, &from, &to); err != nil {
			return nil, err
		}
		out = append(out, model.OperatingWindow{
			DayOfWeek:     time.Weekday(day),
			OpenTime:      timeslot.TimeOfDay(open),
			CloseTime:     timeslot.TimeOfDay(close),
			IsOpen:        isOpen,
			EffectiveFrom: datePtr(from),
			EffectiveTo:   datePtr(to),
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Replace deletes every window of the target and inserts the new set in one transaction.
// Concurrent replaces of the same target are serialized by an advisory lock.
func (r *PostgresRepository) Replace(ctx context.Context, target Target, windows []model.OperatingWindow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "hours:"+target.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM operating_windows
		WHERE target_kind = $1 AND target_id = $2
	`, string(target.Kind), target.ID); err != nil {
		return err
	}
	for _, w := range windows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO operating_windows
				(target_kind, target_id, day_of_week, open_minute, close_minute, is_open, effective_from, effective_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, string(target.Kind), target.ID, int(w.DayOfWeek), w.OpenTime.Minutes(), w.CloseTime.Minutes(), w.IsOpen,
			dateArg(w.EffectiveFrom), dateArg(w.EffectiveTo)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// LegacyWeeklyHours reads venue_weekly_hours, whose rows carry "HH:MM" strings and an is_closed
// flag. Rows are converted to OperatingWindow here so nothing downstream sees the old shape.
func (r *PostgresRepository) LegacyWeeklyHours(ctx context.Context, venueID int64) ([]model.OperatingWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, COALESCE(open_time, ''), COALESCE(close_time, ''), is_closed
		FROM venue_weekly_hours
		WHERE venue_id = $1
		ORDER BY day_of_week ASC
	`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperatingWindow
	for rows.Next() {
		var (
			day         int
			open, close string
			closed      bool
		)
		if err := rows.Scan(&day, &open, &close, &closed); err != nil {
			return nil, err
		}
		out = append(out, legacyWindow(day, open, close, closed))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// legacyWindow maps a legacy row; unparsable or inverted times are treated as closed.
func legacyWindow(day int, open, close string, closed bool) model.OperatingWindow {
	w := model.OperatingWindow{DayOfWeek: time.Weekday(day)}
	if closed {
		return w
	}
	o, err := timeslot.ParseTimeOfDay(trimSeconds(open))
	if err != nil {
		return w
	}
	c, err := timeslot.ParseTimeOfDay(trimSeconds(close))
	if err != nil || o >= c {
		return w
	}
	w.OpenTime, w.CloseTime, w.IsOpen = o, c, true
	return w
}

// trimSeconds accepts "HH:MM:SS" as stored by some legacy rows.
func trimSeconds(s string) string {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") == 2 {
		return s[:strings.LastIndex(s, ":")]
	}
	return s
}

func datePtr(t *time.Time) *timeslot.Date {
	if t == nil {
		return nil
	}
	d := timeslot.DateOf(*t)
	return &d
}

func dateArg(d *timeslot.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Midnight(time.UTC)
	return &t
}
