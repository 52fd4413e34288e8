package scrape

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/quality"
)

// trailing stop counts and seat numbers bleed into the time text
var trailingDigitsPattern = regexp.MustCompile(`[0-9+\s]+$`)

// FlightExtractor parses a flight search results page. Malformed rows are
// skipped; a row with no usable price gets a synthesized one so the record
// set stays comparable, flagged so consumers can filter it.
type FlightExtractor struct {
	syntheticFallback bool
	logger            *log.Logger
}

func NewFlightExtractor(opts Options) *FlightExtractor {
	return &FlightExtractor{
		syntheticFallback: opts.SyntheticFallback,
		logger:            opts.Logger,
	}
}

func (e *FlightExtractor) Marker() string {
	return ".nrc6-wrapper"
}

func (e *FlightExtractor) Extract(_ context.Context, doc *goquery.Document, job *domain.Job) (*Result, error) {
	if job.Spec.Flight == nil {
		return nil, fmt.Errorf("%w: flight job without flight payload", ErrNoContent)
	}
	query := job.Spec.Flight

	rows := doc.Find(".nrc6-wrapper")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("%w: no flight rows", ErrNoContent)
	}

	result := &Result{}
	now := time.Now().UTC()

	rows.Each(func(index int, row *goquery.Selection) {
		airline := strings.TrimSpace(row.Find(".VY2U").Children().Eq(1).Text())
		if airline == "" {
			airline = fmt.Sprintf("Airline %d", index+1)
		}

		times := strings.Split(row.Find(".vmXl").First().Text(), " – ")
		if len(times) < 2 {
			if e.logger != nil {
				e.logger.Printf("flight extract: skipping row %d with unparseable times", index)
			}
			return
		}
		departure := cleanFlightTime(times[0])
		arrival := cleanFlightTime(times[1])

		flight := domain.Flight{
			AirlineName:   airline,
			From:          query.Source,
			To:            query.Destination,
			DepartureTime: departure,
			ArrivalTime:   arrival,
			Duration:      strings.TrimSpace(row.Find(".xdW8").Children().First().Text()),
			JobID:         job.ID,
			ScrapedOn:     now,
		}
		if logo, ok := row.Find("img").First().Attr("src"); ok {
			flight.AirlineLogo = quality.NormalizeImageURL(logo, "www.kayak.com")
		}

		price := quality.ParsePrice(row.Find(".f8F1-price-text").First().Text())
		if price > 0 {
			flight.Price = price
		} else {
			flight.Price = syntheticFlightPrice()
			flight.Synthetic = true
		}

		result.Flights = append(result.Flights, flight)
	})

	if len(result.Flights) == 0 {
		if !e.syntheticFallback {
			return nil, fmt.Errorf("%w: no parseable flight rows", ErrNoContent)
		}
		result.Flights = syntheticFlights(query, job.ID, now)
		if e.logger != nil {
			e.logger.Printf("flight extract: job %s produced zero rows, substituting synthetic set", job.ID)
		}
	}

	return result, nil
}

func cleanFlightTime(raw string) string {
	cleaned := strings.TrimSpace(trailingDigitsPattern.ReplaceAllString(strings.TrimSpace(raw), ""))
	if cleaned == "" {
		return "N/A"
	}
	return cleaned
}

func syntheticFlightPrice() int {
	return rand.Intn(400) + 100
}

// syntheticFlights is a stable placeholder set for demo environments where
// the search site blocks the scraper entirely.
func syntheticFlights(query *domain.FlightQuery, jobID string, scrapedOn time.Time) []domain.Flight {
	base := []struct {
		airline   string
		logo      string
		departure string
		arrival   string
		duration  string
		price     int
	}{
		{"Air India Express", "https://content.r9cdn.net/rimg/provider-logos/airlines/v/AI.png", "12:35 am", "2:55 am", "2h 20m", 189},
		{"IndiGo", "https://content.r9cdn.net/rimg/provider-logos/airlines/v/6E.png", "6:20 am", "8:40 am", "2h 20m", 156},
		{"Spicejet", "https://content.r9cdn.net/rimg/provider-logos/airlines/v/SG.png", "2:15 pm", "4:40 pm", "2h 25m", 178},
	}

	flights := make([]domain.Flight, 0, len(base))
	for _, entry := range base {
		flights = append(flights, domain.Flight{
			AirlineName:   entry.airline,
			AirlineLogo:   entry.logo,
			From:          query.Source,
			To:            query.Destination,
			DepartureTime: entry.departure,
			ArrivalTime:   entry.arrival,
			Duration:      entry.duration,
			Price:         entry.price,
			Synthetic:     true,
			JobID:         jobID,
			ScrapedOn:     scrapedOn,
		})
	}
	return flights
}
