package model

// CourtSummary is the read-only projection of a court the booking core needs.
type CourtSummary struct {
	ID            int64
	VenueID       int64
	PricePerHour  int64 // minor currency units
	IsActive      bool
	VenueApproved bool
	SportType     string
}

// Bookable reports whether the court accepts reservations at all.
func (c CourtSummary) Bookable() bool {
	return c.IsActive && c.VenueApproved
}

// PriceFor returns the amount for a booking of the given length, rounded half up to the
// nearest minor unit.
func (c CourtSummary) PriceFor(durationMinutes int) int64 {
	if durationMinutes <= 0 {
		return 0
	}
	return (c.PricePerHour*int64(durationMinutes) + 30) / 60
}
