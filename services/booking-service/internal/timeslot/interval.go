package timeslot

import (
	"errors"
	"fmt"
)

var ErrInvalidRange = errors.New("start must be before end")

// Interval is the half-open range [Start, End) of a day. A zero-length or reversed Interval
// is never produced by NewInterval; Valid reports whether a literal satisfies start < end.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func NewInterval(start, end TimeOfDay) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if !start.Valid() {
		return Interval{}, &FormatError{Value: start.String(), Want: "time of day before 24:00"}
	}
	// End may equal MinutesPerDay so a window can run until midnight.
	if end < 0 || end > MinutesPerDay {
		return Interval{}, &FormatError{Value: fmt.Sprint(int(end)), Want: "minutes in [0, 1440]"}
	}
	if !iv.Valid() {
		return Interval{}, fmt.Errorf("%s: %w", iv, ErrInvalidRange)
	}
	return iv, nil
}

// ParseInterval parses two "HH:MM" values into an Interval.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(s, e)
}

func MustInterval(start, end string) Interval {
	iv, err := ParseInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) Valid() bool {
	return i.Start < i.End
}

// DurationMinutes is strictly positive for every Interval built by NewInterval.
func (i Interval) DurationMinutes() int {
	return int(i.End - i.Start)
}

// Overlaps uses the half-open rule: abutting intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Within reports whether i lies entirely inside [open, close).
func (i Interval) Within(open, close TimeOfDay) bool {
	return i.Start >= open && i.End <= close
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// OverlapsAny reports whether i overlaps any element of others.
func OverlapsAny(i Interval, others []Interval) bool {
	for _, o := range others {
		if i.Overlaps(o) {
			return true
		}
	}
	return false
}

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t TimeOfDay) bool {
	return t >= i.Start && t < i.End
}
