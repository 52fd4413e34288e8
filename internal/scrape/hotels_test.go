package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/travelsage/scraper-back/internal/domain"
)

const hotelsFixture = `
<html><body>
<div class="PropertyCard">
  <h3 class="hotel-name">Grand Goa Beach Resort</h3>
  <div class="final-price">₹ 4,500 per night</div>
  <img src="https://pix8.agoda.net/hotelImages/grand-goa-front-facade.jpg"/>
</div>
<div class="PropertyCard">
  <h3 class="hotel-name">Royal Goa Palace</h3>
  <div class="price">from ₹ 7,200</div>
  <picture><img src="https://pix8.agoda.net/hotelImages/royal-goa-pool-deck.jpg"/></picture>
</div>
<div class="PropertyCard">
  <h3 class="hotel-name">Heritage Panjim Inn</h3>
  <div class="room-price">₹ 3,150</div>
</div>
<div class="PropertyCard">
  <h3 class="hotel-name">Budget Stay Calangute</h3>
  <div class="price">Sold out</div>
</div>
<div class="PropertyCard">
  <h3 class="hotel-name">Sea View Suites</h3>
  <div class="final-price">₹ 5,999</div>
</div>
</body></html>`

func hotelJob() *domain.Job {
	return &domain.Job{
		ID:  "job-hotel",
		URL: "https://www.agoda.com/search?destination=Goa",
		Spec: domain.JobSpec{
			Kind:  domain.JobKindHotelSearch,
			Hotel: &domain.HotelQuery{Location: "Goa"},
		},
	}
}

func TestHotelExtractorSkipsMalformedCards(t *testing.T) {
	extractor := NewHotelExtractor(Options{Logger: discardLogger()})
	doc := parseFixture(t, hotelsFixture)

	result, err := extractor.Extract(context.Background(), doc, hotelJob())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	// The sold-out card has no plausible price and is dropped.
	if len(result.Hotels) != 4 {
		t.Fatalf("expected 4 hotels, got %d", len(result.Hotels))
	}

	first := result.Hotels[0]
	if first.Name != "Grand Goa Beach Resort" {
		t.Fatalf("unexpected name: %s", first.Name)
	}
	if first.Price != 4500 {
		t.Fatalf("unexpected price: %d", first.Price)
	}
	if first.Image == "" {
		t.Fatal("expected card image")
	}
	for _, hotel := range result.Hotels {
		if hotel.Location != "Goa" {
			t.Fatalf("location not carried from query: %+v", hotel)
		}
		if hotel.Synthetic {
			t.Fatalf("real extraction flagged synthetic: %+v", hotel)
		}
		if hotel.JobID != "job-hotel" {
			t.Fatalf("job back-reference missing: %+v", hotel)
		}
	}

	// A card without an image yields an empty image, not a rejection.
	if result.Hotels[2].Name != "Heritage Panjim Inn" || result.Hotels[2].Image != "" {
		t.Fatalf("unexpected third hotel: %+v", result.Hotels[2])
	}
}

func TestHotelExtractorSelectorCascade(t *testing.T) {
	// No PropertyCard markup; the cascade should fall through to .hotel-card.
	fixture := `<html><body>
<div class="hotel-card">
  <div class="property-name">Lakeside Udaipur Retreat</div>
  <div class="price">₹ 6,400</div>
</div>
</body></html>`

	extractor := NewHotelExtractor(Options{Logger: discardLogger()})
	result, err := extractor.Extract(context.Background(), parseFixture(t, fixture), hotelJob())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(result.Hotels) != 1 || result.Hotels[0].Name != "Lakeside Udaipur Retreat" {
		t.Fatalf("cascade failed: %+v", result.Hotels)
	}
}

func TestHotelExtractorZeroResults(t *testing.T) {
	empty := `<html><body><div class="no-results">nothing</div></body></html>`

	strict := NewHotelExtractor(Options{Logger: discardLogger()})
	if _, err := strict.Extract(context.Background(), parseFixture(t, empty), hotelJob()); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent without fallback, got %v", err)
	}

	lenient := NewHotelExtractor(Options{SyntheticFallback: true, Logger: discardLogger()})
	result, err := lenient.Extract(context.Background(), parseFixture(t, empty), hotelJob())
	if err != nil {
		t.Fatalf("extract with fallback: %v", err)
	}
	if len(result.Hotels) == 0 {
		t.Fatal("expected synthetic placeholder set")
	}
	for _, hotel := range result.Hotels {
		if !hotel.Synthetic {
			t.Fatalf("placeholder hotel not flagged synthetic: %+v", hotel)
		}
		if hotel.Location != "Goa" {
			t.Fatalf("placeholder missing location: %+v", hotel)
		}
	}
}
