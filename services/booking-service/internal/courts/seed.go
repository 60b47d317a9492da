package courts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
)

// ParseSeed builds a memory catalog from "id:venueID:pricePerHour" entries separated by
// commas, e.g. "7:3:2000,8:3:1500". Seeded courts are active on approved venues.
func ParseSeed(raw string) (*MemoryCatalog, error) {
	cat := NewMemoryCatalog()
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("court seed %q: want id:venue:price", entry)
		}
		var nums [3]int64
		for i, p := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil || n < 0 || (i < 2 && n == 0) {
				return nil, fmt.Errorf("court seed %q: invalid number %q", entry, p)
			}
			nums[i] = n
		}
		cat.Put(model.CourtSummary{
			ID:            nums[0],
			VenueID:       nums[1],
			PricePerHour:  nums[2],
			IsActive:      true,
			VenueApproved: true,
		})
	}
	return cat, nil
}
