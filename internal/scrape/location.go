package scrape

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/quality"
)

const packageDetailBaseURL = "https://packages.yatra.com/holidays/intl/details.htm?packageId="

// PackageDetailURL builds the canonical detail page address for a package id.
func PackageDetailURL(packageID string) string {
	return packageDetailBaseURL + url.QueryEscape(packageID)
}

var packageIDPattern = regexp.MustCompile(`packageId=([^&]+)`)

// LocationExtractor lists the holiday packages on a destination search page
// and fans each one out into a derived package-detail job.
type LocationExtractor struct {
	logger *log.Logger
}

func NewLocationExtractor(logger *log.Logger) *LocationExtractor {
	return &LocationExtractor{logger: logger}
}

func (e *LocationExtractor) Marker() string {
	return ".packages-container"
}

func (e *LocationExtractor) Extract(_ context.Context, doc *goquery.Document, _ *domain.Job) (*Result, error) {
	cards := doc.Find(".packages-container")
	if cards.Length() == 0 {
		return nil, fmt.Errorf("%w: no package cards", ErrNoContent)
	}

	result := &Result{}
	now := time.Now().UTC()

	cards.Each(func(index int, card *goquery.Selection) {
		nameLink := card.Find(".package-name a").First()
		name := quality.CleanTitle(nameLink.Text())

		href, _ := nameLink.Attr("href")
		idMatch := packageIDPattern.FindStringSubmatch(href)
		if len(idMatch) < 2 || name == "" {
			if e.logger != nil {
				e.logger.Printf("location extract: skipping card %d without package id", index)
			}
			return
		}
		packageID := idMatch[1]

		ref := domain.PackageRef{
			ID:     packageID,
			Name:   name,
			City:   cityFromPackage(card, name),
			Nights: quality.ParseCount(card.Find(".package-duration .nights span").First().Text()),
			Days:   quality.ParseCount(card.Find(".package-duration .days span").First().Text()),
			Price:  quality.ParsePrice(card.Find(".final-price .amount").First().Text()),
		}

		card.Find(".package-inclusions li .icon-name").Each(func(_ int, item *goquery.Selection) {
			if inclusion := strings.TrimSpace(item.Text()); inclusion != "" {
				ref.Inclusions = append(ref.Inclusions, inclusion)
			}
		})
		if src, ok := card.Find("img.package-image").First().Attr("src"); ok {
			if image := quality.NormalizeImageURL(src, "packages.yatra.com"); image != "" {
				ref.Images = append(ref.Images, image)
			}
		}

		result.Trips = append(result.Trips, domain.Trip{
			ID:          ref.ID,
			Name:        ref.Name,
			City:        ref.City,
			Nights:      ref.Nights,
			Days:        ref.Days,
			Price:       ref.Price,
			Description: strings.TrimSpace(card.Find(".package-summary").First().Text()),
			Images:      append([]string(nil), ref.Images...),
			Inclusions:  append([]string(nil), ref.Inclusions...),
			ScrapedOn:   now,
			Status:      domain.TripStatusSummary,
		})

		refCopy := ref
		result.Derived = append(result.Derived, domain.JobRequest{
			URL: PackageDetailURL(ref.ID),
			Spec: domain.JobSpec{
				Kind:    domain.JobKindPackage,
				Package: &refCopy,
			},
		})
	})

	return result, nil
}

// City heuristics ported from the production scraper: try name patterns
// first, then destination elements, then destination links. An empty string
// is an acceptable outcome.
var (
	cityNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Beautiful|Scenic|Experience|Explore|Great|Stunning|Simply|Wickets.*?)\s+([A-Z][a-zA-Z\s&]+?)(?:\s+\(|$|\s+-|\s+With|\s+Journey|\s+Special|\s+Tour)`),
		regexp.MustCompile(`(?i)(?:in|to|from)\s+([A-Z][a-zA-Z\s&]+?)(?:\s+\(|$|\s+-|\s+With)`),
		regexp.MustCompile(`([A-Z][a-zA-Z\s&]+?)(?:\s+\(|$|\s+-|\s+Tour|\s+Special)`),
	}

	cityStopWords = map[string]struct{}{
		"Land Only":  {},
		"Self Drive": {},
		"Deluxe":     {},
		"Premium":    {},
		"Cricket":    {},
		"Holidays":   {},
	}

	destinationHrefPattern = regexp.MustCompile(`(?i)destination[=/]([^&/?]+)`)
)

func cityFromPackage(card *goquery.Selection, packageName string) string {
	if city := cityFromName(packageName); city != "" {
		return city
	}

	if destination := strings.TrimSpace(card.Find(".destination, .location, .city-name").First().Text()); destination != "" {
		return destination
	}

	if href, ok := card.Find(`a[href*="destination"], a[href*="city"]`).First().Attr("href"); ok {
		if match := destinationHrefPattern.FindStringSubmatch(href); len(match) >= 2 {
			decoded, err := url.QueryUnescape(match[1])
			if err == nil {
				return strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(decoded)
			}
		}
	}

	return ""
}

func cityFromName(packageName string) string {
	for _, pattern := range cityNamePatterns {
		match := pattern.FindStringSubmatch(packageName)
		if len(match) < 2 {
			continue
		}
		city := strings.TrimSpace(match[1])
		if _, stop := cityStopWords[city]; stop || city == "" {
			continue
		}
		return city
	}
	return ""
}
