package scrape

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/domain"
)

func parseFixture(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

const locationFixture = `
<html><body>
<div class="packages-container">
  <div class="package-name"><a href="/holidays/intl/details.htm?packageId=IN9&src=listing">Simply Bali (Land Only)</a></div>
  <div class="package-duration">
    <div class="nights"><span>4 Nights</span></div>
    <div class="days"><span>5 Days</span></div>
  </div>
  <ul class="package-inclusions">
    <li><span class="icon-name">Flights</span></li>
    <li><span class="icon-name">Hotels</span></li>
    <li><span class="icon-name">Sightseeing</span></li>
  </ul>
  <div class="final-price"><span class="amount">45,999</span></div>
  <img class="package-image" src="//imgcdn.yatra.com/packages/bali-beach-sunset-large.jpg"/>
  <div class="package-summary">Four nights in Bali with daily breakfast.</div>
</div>
<div class="packages-container">
  <div class="package-name"><a href="/holidays/intl/details.htm?packageId=SG4">Experience Singapore - Family Special</a></div>
  <div class="package-duration">
    <div class="nights"><span>3 Nights</span></div>
    <div class="days"><span>4 Days</span></div>
  </div>
  <div class="final-price"><span class="amount">62,500</span></div>
</div>
<div class="packages-container">
  <div class="package-name"><a href="/holidays/intl/listing.htm">Promo banner without a package</a></div>
</div>
</body></html>`

func TestLocationExtractorParsesCards(t *testing.T) {
	extractor := NewLocationExtractor(discardLogger())
	doc := parseFixture(t, locationFixture)

	job := &domain.Job{ID: "job-loc", Spec: domain.JobSpec{Kind: domain.JobKindLocation}}
	result, err := extractor.Extract(context.Background(), doc, job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if len(result.Trips) != 2 {
		t.Fatalf("expected 2 trips (malformed card skipped), got %d", len(result.Trips))
	}
	if len(result.Derived) != 2 {
		t.Fatalf("expected 2 derived jobs, got %d", len(result.Derived))
	}

	bali := result.Trips[0]
	if bali.ID != "IN9" {
		t.Fatalf("expected package id IN9, got %s", bali.ID)
	}
	if bali.Name != "Simply Bali (Land Only)" {
		t.Fatalf("unexpected name: %s", bali.Name)
	}
	if bali.City != "Bali" {
		t.Fatalf("expected city Bali, got %q", bali.City)
	}
	if bali.Nights != 4 || bali.Days != 5 {
		t.Fatalf("unexpected duration: %d nights %d days", bali.Nights, bali.Days)
	}
	if bali.Price != 45999 {
		t.Fatalf("unexpected price: %d", bali.Price)
	}
	if len(bali.Inclusions) != 3 {
		t.Fatalf("expected 3 inclusions, got %v", bali.Inclusions)
	}
	if len(bali.Images) != 1 || !strings.HasPrefix(bali.Images[0], "https://imgcdn.yatra.com/") {
		t.Fatalf("expected normalized image, got %v", bali.Images)
	}
	if bali.Status != domain.TripStatusSummary {
		t.Fatalf("location trips must be summaries, got %s", bali.Status)
	}
	if bali.Description == "" {
		t.Fatal("expected summary description")
	}

	derived := result.Derived[0]
	if derived.Spec.Kind != domain.JobKindPackage {
		t.Fatalf("derived jobs must be package scrapes, got %s", derived.Spec.Kind)
	}
	if derived.URL != PackageDetailURL("IN9") {
		t.Fatalf("unexpected derived url: %s", derived.URL)
	}
	if derived.Spec.Package == nil || derived.Spec.Package.ID != "IN9" {
		t.Fatalf("derived job missing package payload: %+v", derived.Spec.Package)
	}

	if result.Trips[1].City != "Singapore" {
		t.Fatalf("expected city Singapore, got %q", result.Trips[1].City)
	}
}

func TestLocationExtractorNoCards(t *testing.T) {
	extractor := NewLocationExtractor(discardLogger())
	doc := parseFixture(t, `<html><body><div class="empty-results">Nothing here</div></body></html>`)

	_, err := extractor.Extract(context.Background(), doc, &domain.Job{ID: "job-loc"})
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestCityFromName(t *testing.T) {
	cases := []struct {
		name     string
		expected string
	}{
		{name: "Simply Bali (Land Only)", expected: "Bali"},
		{name: "Experience Dubai - Deluxe Package", expected: "Dubai"},
		{name: "Trip to Singapore With Cruise", expected: "Singapore"},
		{name: "Goa - Premium Beach Stay", expected: "Goa"},
		{name: "Deluxe", expected: ""},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := cityFromName(testCase.name); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestCityFromPackageFallsBackToDestinationLink(t *testing.T) {
	doc := parseFixture(t, `
<div class="packages-container">
  <a href="/search?destination=New-Zealand&sort=price">View destination</a>
</div>`)
	card := doc.Find(".packages-container").First()

	if got := cityFromPackage(card, "Deluxe"); got != "New Zealand" {
		t.Fatalf("expected New Zealand from destination link, got %q", got)
	}
}
