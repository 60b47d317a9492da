package hours

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

type TargetKind string

const (
	TargetCourt TargetKind = "court"
	TargetVenue TargetKind = "venue"
)

// Target identifies whose operating hours are being read or replaced.
type Target struct {
	Kind TargetKind
	ID   int64
}

func CourtTarget(id int64) Target { return Target{Kind: TargetCourt, ID: id} }
func VenueTarget(id int64) Target { return Target{Kind: TargetVenue, ID: id} }

func (t Target) Valid() bool {
	return (t.Kind == TargetCourt || t.Kind == TargetVenue) && t.ID > 0
}

func (t Target) String() string {
	return string(t.Kind) + ":" + strconv.FormatInt(t.ID, 10)
}

// ValidationError rejects a window set before anything is written.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return e.Reason
	}
	return fmt.Sprintf("window %d: %s", e.Index, e.Reason)
}

// Repository persists window sets per target.
type Repository interface {
	List(ctx context.Context, target Target) ([]model.OperatingWindow, error)
	Replace(ctx context.Context, target Target, windows []model.OperatingWindow) error
}

// LegacySource reads the venue-wide weekly hours table that predates per-court windows.
type LegacySource interface {
	LegacyWeeklyHours(ctx context.Context, venueID int64) ([]model.OperatingWindow, error)
}

type CourtLookup interface {
	Court(ctx context.Context, id int64) (model.CourtSummary, error)
}

// Store resolves and replaces operating hours. Reads walk the fallback chain
// court windows -> venue windows -> legacy venue hours; no match means closed.
type Store struct {
	repo  Repository
	chain Chain
}

func NewStore(repo Repository, courts CourtLookup, legacy LegacySource) *Store {
	chain := Chain{CourtWindows(repo), VenueWindows(repo, courts)}
	if legacy != nil {
		chain = append(chain, LegacyVenueHours(legacy, courts))
	}
	return &Store{repo: repo, chain: chain}
}

// ReplaceWindows validates the full set and then swaps it in atomically. Prior windows of the
// target are removed even when they are not mentioned in the new set.
func (s *Store) ReplaceWindows(ctx context.Context, target Target, windows []model.OperatingWindow) error {
	if !target.Valid() {
		return &ValidationError{Index: -1, Reason: "invalid target " + target.String()}
	}
	if err := Validate(windows); err != nil {
		return err
	}
	return s.repo.Replace(ctx, target, windows)
}

// WeekdayWindows returns every resolved window for date's weekday, including ones whose
// effective range excludes date, so callers can tell "closed" from "not in effect".
func (s *Store) WeekdayWindows(ctx context.Context, courtID int64, date timeslot.Date) ([]model.OperatingWindow, error) {
	all, _, err := s.chain.Resolve(ctx, courtID)
	if err != nil {
		return nil, err
	}
	weekday := date.Weekday()
	var out []model.OperatingWindow
	for _, w := range all {
		if w.DayOfWeek == weekday {
			out = append(out, w)
		}
	}
	return out, nil
}

// WindowsFor returns the windows that apply to date: matching weekday and in effect.
func (s *Store) WindowsFor(ctx context.Context, courtID int64, date timeslot.Date) ([]model.OperatingWindow, error) {
	wins, err := s.WeekdayWindows(ctx, courtID, date)
	if err != nil {
		return nil, err
	}
	out := wins[:0]
	for _, w := range wins {
		if w.InEffect(date) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Validate checks every window independently; the first failure is returned.
func Validate(windows []model.OperatingWindow) error {
	for i, w := range windows {
		if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
			return &ValidationError{Index: i, Reason: fmt.Sprintf("dayOfWeek %d outside [0,6]", int(w.DayOfWeek))}
		}
		if w.IsOpen {
			if !w.OpenTime.Valid() || !w.CloseTime.Valid() {
				return &ValidationError{Index: i, Reason: "open and close times must be within the day"}
			}
			if w.OpenTime >= w.CloseTime {
				return &ValidationError{Index: i, Reason: fmt.Sprintf("openTime %s must be before closeTime %s", w.OpenTime, w.CloseTime)}
			}
		}
		if w.EffectiveFrom != nil && w.EffectiveTo != nil && w.EffectiveFrom.After(*w.EffectiveTo) {
			return &ValidationError{Index: i, Reason: "effectiveFrom must not be after effectiveTo"}
		}
	}
	return nil
}
