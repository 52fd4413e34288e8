package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/quality"
)

// PackageExtractor reads a single package detail page and merges what it
// finds onto the summary carried in the job payload, producing one complete
// trip snapshot.
type PackageExtractor struct {
	logger *log.Logger
}

func NewPackageExtractor(logger *log.Logger) *PackageExtractor {
	return &PackageExtractor{logger: logger}
}

func (e *PackageExtractor) Marker() string {
	return ".package-details-container"
}

func (e *PackageExtractor) Extract(_ context.Context, doc *goquery.Document, job *domain.Job) (*Result, error) {
	if job.Spec.Package == nil {
		return nil, fmt.Errorf("%w: package job without package payload", ErrNoContent)
	}
	container := doc.Find(".package-details-container")
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: no package detail section", ErrNoContent)
	}

	ref := job.Spec.Package
	trip := domain.Trip{
		ID:          ref.ID,
		Name:        ref.Name,
		City:        ref.City,
		Nights:      ref.Nights,
		Days:        ref.Days,
		Price:       ref.Price,
		Images:      append([]string(nil), ref.Images...),
		Inclusions:  append([]string(nil), ref.Inclusions...),
		Description: strings.TrimSpace(container.Find(".package-description").First().Text()),
		ScrapedOn:   time.Now().UTC(),
		Status:      domain.TripStatusComplete,
	}

	container.Find(".image-gallery img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok {
			return
		}
		if image := quality.NormalizeImageURL(src, "packages.yatra.com"); image != "" && !containsString(trip.Images, image) {
			trip.Images = append(trip.Images, image)
		}
	})

	container.Find(".package-themes .theme-name").Each(func(_ int, theme *goquery.Selection) {
		if name := strings.TrimSpace(theme.Text()); name != "" {
			trip.Themes = append(trip.Themes, name)
		}
	})

	container.Find(".destination-itinerary .destination-stop").Each(func(_ int, stop *goquery.Selection) {
		place := strings.TrimSpace(stop.Find(".place-name").First().Text())
		if place == "" {
			return
		}
		trip.DestinationItinerary = append(trip.DestinationItinerary, domain.DestinationStop{
			Place:       place,
			TotalNights: quality.ParseCount(stop.Find(".total-nights").First().Text()),
		})
	})

	container.Find(".destination-details .destination-card").Each(func(_ int, card *goquery.Selection) {
		name := strings.TrimSpace(card.Find(".destination-name").First().Text())
		if name == "" {
			return
		}
		detail := domain.DestinationDetail{
			Name:        name,
			Description: strings.TrimSpace(card.Find(".destination-description").First().Text()),
		}
		if src, ok := card.Find("img").First().Attr("src"); ok {
			detail.Image = quality.NormalizeImageURL(src, "packages.yatra.com")
		}
		trip.DestinationDetails = append(trip.DestinationDetails, detail)
	})

	container.Find(".detailed-itinerary .itinerary-section").Each(func(_ int, section *goquery.Selection) {
		title := strings.TrimSpace(section.Find(".section-title").First().Text())
		if title == "" {
			return
		}
		entry := domain.ItinerarySection{Title: title}
		section.Find("li").Each(func(_ int, item *goquery.Selection) {
			if value := strings.TrimSpace(item.Text()); value != "" {
				entry.Values = append(entry.Values, value)
			}
		})
		trip.DetailedItinerary = append(trip.DetailedItinerary, entry)
	})

	container.Find(".day-wise-itinerary .day-plan").Each(func(index int, plan *goquery.Selection) {
		day := quality.ParseCount(plan.Find(".day-number").First().Text())
		if day == 0 {
			day = index + 1
		}
		dayPlan := domain.DayPlan{
			City: strings.TrimSpace(plan.Find(".day-city").First().Text()),
			Day:  day,
		}
		plan.Find(".activity").Each(func(_ int, activity *goquery.Selection) {
			if value := strings.TrimSpace(activity.Text()); value != "" {
				dayPlan.Activities = append(dayPlan.Activities, value)
			}
		})
		trip.PackageItinerary = append(trip.PackageItinerary, dayPlan)
	})

	if e.logger != nil {
		e.logger.Printf("package extract: %s images=%d themes=%d days=%d",
			ref.ID, len(trip.Images), len(trip.Themes), len(trip.PackageItinerary))
	}

	return &Result{Trips: []domain.Trip{trip}}, nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
