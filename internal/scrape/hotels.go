package scrape

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/quality"
)

const maxHotelsPerPage = 20

// Agoda renders several card layouts depending on experiment bucket, so the
// extractor walks a selector cascade and takes the first that matches.
var hotelCardSelectors = []string{
	`[data-selenium="hotel-name"]`,
	".PropertyCard",
	".hotel-card",
	`[class*="PropertyCard"]`,
	`[data-testid*="property"]`,
	".property-card",
	`[role="listitem"]`,
	".result-item",
}

var hotelTitleSelectors = []string{
	`[data-selenium="hotel-name"]`,
	".PropertyCard__Name",
	".hotel-name",
	".property-name",
	"h1, h2, h3, h4",
}

var hotelPriceSelectors = []string{
	`[data-element-name="final-price"]`,
	".PropertyCard__Price",
	".final-price",
	".room-price",
	".price",
}

var hotelImageSelectors = []string{
	".PropertyCard__Image img",
	`[data-selenium="hotel-image"] img`,
	".hotel-image img",
	".property-image img",
	`img[src*="agoda"]`,
	"picture img",
	"img",
}

// HotelExtractor parses an Agoda search results page. Rows missing a title
// or a plausible price are dropped rather than failing the job.
type HotelExtractor struct {
	syntheticFallback bool
	logger            *log.Logger
}

func NewHotelExtractor(opts Options) *HotelExtractor {
	return &HotelExtractor{
		syntheticFallback: opts.SyntheticFallback,
		logger:            opts.Logger,
	}
}

func (e *HotelExtractor) Marker() string {
	return `[data-selenium="hotel-name"], .PropertyCard, .hotel-card`
}

func (e *HotelExtractor) Extract(_ context.Context, doc *goquery.Document, job *domain.Job) (*Result, error) {
	if job.Spec.Hotel == nil {
		return nil, fmt.Errorf("%w: hotel job without hotel payload", ErrNoContent)
	}
	location := job.Spec.Hotel.Location

	cards := findHotelCards(doc)
	if cards == nil || cards.Length() == 0 {
		if !e.syntheticFallback {
			return nil, fmt.Errorf("%w: no hotel cards", ErrNoContent)
		}
		if e.logger != nil {
			e.logger.Printf("hotel extract: job %s found zero cards, substituting synthetic set", job.ID)
		}
		return &Result{Hotels: syntheticHotels(location, job.ID, time.Now().UTC())}, nil
	}

	result := &Result{}
	now := time.Now().UTC()

	cards.EachWithBreak(func(index int, card *goquery.Selection) bool {
		if len(result.Hotels) >= maxHotelsPerPage {
			return false
		}

		name := hotelTitle(card)
		if name == "" {
			if e.logger != nil {
				e.logger.Printf("hotel extract: skipping card %d without usable title", index)
			}
			return true
		}

		price := hotelPrice(card)
		if price == 0 {
			if e.logger != nil {
				e.logger.Printf("hotel extract: skipping card %d (%s) without plausible price", index, name)
			}
			return true
		}

		result.Hotels = append(result.Hotels, domain.Hotel{
			Name:      name,
			Image:     hotelImage(card),
			Price:     price,
			Location:  location,
			JobID:     job.ID,
			ScrapedOn: now,
		})
		return true
	})

	if len(result.Hotels) == 0 {
		if !e.syntheticFallback {
			return nil, fmt.Errorf("%w: no parseable hotel cards", ErrNoContent)
		}
		result.Hotels = syntheticHotels(location, job.ID, now)
	}

	return result, nil
}

func findHotelCards(doc *goquery.Document) *goquery.Selection {
	for _, selector := range hotelCardSelectors {
		if cards := doc.Find(selector); cards.Length() > 0 {
			return cards
		}
	}
	return nil
}

func hotelTitle(card *goquery.Selection) string {
	for _, selector := range hotelTitleSelectors {
		title := quality.CleanTitle(card.Find(selector).First().Text())
		if len(title) > 3 {
			return title
		}
	}
	// last resort: first substantial text line inside the card
	for _, line := range strings.Split(card.Text(), "\n") {
		title := quality.CleanTitle(line)
		if len(title) > 10 {
			return title
		}
	}
	return ""
}

func hotelPrice(card *goquery.Selection) int {
	for _, selector := range hotelPriceSelectors {
		price := quality.ParsePrice(card.Find(selector).First().Text())
		if quality.PlausiblePrice(price) {
			return price
		}
	}
	return 0
}

func hotelImage(card *goquery.Selection) string {
	for _, selector := range hotelImageSelectors {
		img := card.Find(selector).First()
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}
		if image := quality.NormalizeImageURL(src, "www.agoda.com"); image != "" {
			return image
		}
	}
	return ""
}

// syntheticHotels is a stable placeholder set for demo environments.
func syntheticHotels(location, jobID string, scrapedOn time.Time) []domain.Hotel {
	hotelTypes := []string{"Palace", "Resort", "Inn", "Hotel", "Suites"}
	prefixes := []string{"Grand", "Luxury", "Premium", "Royal", "Heritage"}
	photos := []string{
		"https://images.unsplash.com/photo-1566073771259-6a8506099945?w=400&h=300&fit=crop",
		"https://images.unsplash.com/photo-1551882547-ff40c63fe5fa?w=400&h=300&fit=crop",
		"https://images.unsplash.com/photo-1542314831-068cd1dbfeeb?w=400&h=300&fit=crop",
		"https://images.unsplash.com/photo-1571896349842-33c89424de2d?w=400&h=300&fit=crop",
		"https://images.unsplash.com/photo-1578662996442-48f60103fc96?w=400&h=300&fit=crop",
	}

	hotels := make([]domain.Hotel, 0, len(hotelTypes))
	for i := range hotelTypes {
		hotels = append(hotels, domain.Hotel{
			Name:      fmt.Sprintf("%s %s %s", prefixes[i], location, hotelTypes[i]),
			Image:     photos[i],
			Price:     rand.Intn(300) + 100,
			Location:  location,
			Synthetic: true,
			JobID:     jobID,
			ScrapedOn: scrapedOn,
		})
	}
	return hotels
}
