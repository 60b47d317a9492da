package hours

import (
	"context"
	"fmt"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

// Provider is one step of the fallback chain. Found is false when the provider has nothing
// configured for the court, which hands the decision to the next provider.
type Provider struct {
	Name   string
	Lookup func(ctx context.Context, courtID int64) (windows []model.OperatingWindow, found bool, err error)
}

type Chain []Provider

// Resolve returns the windows of the first provider that has any configured, with its name.
// An exhausted chain yields no windows, which callers treat as closed.
func (c Chain) Resolve(ctx context.Context, courtID int64) ([]model.OperatingWindow, string, error) {
	for _, p := range c {
		wins, found, err := p.Lookup(ctx, courtID)
		if err != nil {
			return nil, "", fmt.Errorf("%s hours: %w", p.Name, err)
		}
		if found {
			return wins, p.Name, nil
		}
	}
	return nil, "", nil
}

func CourtWindows(repo Repository) Provider {
	return Provider{
		Name: "court",
		Lookup: func(ctx context.Context, courtID int64) ([]model.OperatingWindow, bool, error) {
			wins, err := repo.List(ctx, CourtTarget(courtID))
			if err != nil {
				return nil, false, err
			}
			return wins, len(wins) > 0, nil
		},
	}
}

func VenueWindows(repo Repository, courts CourtLookup) Provider {
	return Provider{
		Name: "venue",
		Lookup: func(ctx context.Context, courtID int64) ([]model.OperatingWindow, bool, error) {
			court, err := courts.Court(ctx, courtID)
			if err != nil {
				return nil, false, err
			}
			wins, err := repo.List(ctx, VenueTarget(court.VenueID))
			if err != nil {
				return nil, false, err
			}
			return wins, len(wins) > 0, nil
		},
	}
}

func LegacyVenueHours(legacy LegacySource, courts CourtLookup) Provider {
	return Provider{
		Name: "legacy",
		Lookup: func(ctx context.Context, courtID int64) ([]model.OperatingWindow, bool, error) {
			court, err := courts.Court(ctx, courtID)
			if err != nil {
				return nil, false, err
			}
			wins, err := legacy.LegacyWeeklyHours(ctx, court.VenueID)
			if err != nil {
				return nil, false, err
			}
			return wins, len(wins) > 0, nil
		},
	}
}
