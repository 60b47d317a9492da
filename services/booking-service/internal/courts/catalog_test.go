package courts

import (
	"context"
	"errors"
	"testing"
)

func TestParseSeed(t *testing.T) {
	cat, err := ParseSeed(" 7:3:2000, 8:3:0 ,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, err := cat.Court(context.Background(), 7)
	if err != nil {
		t.Fatalf("court 7: %v", err)
	}
	if c.VenueID != 3 || c.PricePerHour != 2000 || !c.Bookable() {
		t.Fatalf("unexpected court %+v", c)
	}
	if _, err := cat.Court(context.Background(), 8); err != nil {
		t.Fatalf("free court should parse: %v", err)
	}
	if _, err := cat.Court(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseSeedRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"7:3", "x:3:100", "0:3:100", "7:3:-1"} {
		if _, err := ParseSeed(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestEmptySeedIsEmptyCatalog(t *testing.T) {
	cat, err := ParseSeed("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.Court(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
