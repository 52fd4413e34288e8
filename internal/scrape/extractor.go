// Package scrape turns rendered pages into structured travel records. Each
// job kind has one extractor; the dispatcher resolves them by kind.
package scrape

import (
	"context"
	"errors"
	"log"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/domain"
)

// ErrNoContent means the page rendered but the structure the extractor needs
// is absent. The dispatcher treats it as non-retryable.
var ErrNoContent = errors.New("page has no extractable content")

// Result is everything one extraction run produced.
type Result struct {
	Trips   []domain.Trip
	Flights []domain.Flight
	Hotels  []domain.Hotel
	Derived []domain.JobRequest
}

// Extractor navigates a loaded page's DOM and emits records.
type Extractor interface {
	// Marker is the selector that must become visible before Extract runs.
	Marker() string
	Extract(ctx context.Context, doc *goquery.Document, job *domain.Job) (*Result, error)
}

// Options configure extractor behavior shared across kinds.
type Options struct {
	// SyntheticFallback substitutes a clearly-flagged placeholder result set
	// when a search page yields zero rows. Off by default; the flag exists so
	// demo environments can stay populated.
	SyntheticFallback bool
	Logger            *log.Logger
}

// NewRegistry builds the extractor per job kind. Adding a kind without an
// extractor here is caught by the dispatcher's unknown-kind path.
func NewRegistry(opts Options) map[domain.JobKind]Extractor {
	return map[domain.JobKind]Extractor{
		domain.JobKindLocation:     NewLocationExtractor(opts.Logger),
		domain.JobKindPackage:      NewPackageExtractor(opts.Logger),
		domain.JobKindFlightSearch: NewFlightExtractor(opts),
		domain.JobKindHotelSearch:  NewHotelExtractor(opts),
	}
}
