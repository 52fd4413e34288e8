package domain

import "time"

// TripStatus tracks how much of a trip snapshot has been captured. A location
// scrape inserts summary rows; the derived package scrape completes them.
type TripStatus string

const (
	TripStatusSummary  TripStatus = "summary"
	TripStatusComplete TripStatus = "complete"
)

// DestinationStop is one leg of a trip's destination itinerary.
type DestinationStop struct {
	Place       string `json:"place"`
	TotalNights int    `json:"totalNights"`
}

// DestinationDetail describes one destination covered by a package.
type DestinationDetail struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// ItinerarySection is a titled block of the detailed itinerary.
type ItinerarySection struct {
	Title  string   `json:"title"`
	Values []string `json:"value"`
}

// DayPlan is one day of activities in a city.
type DayPlan struct {
	City       string   `json:"city"`
	Day        int      `json:"day"`
	Activities []string `json:"activities"`
}

// Trip is the structured snapshot of a holiday package. The package id is its
// natural key; rows are never mutated once complete.
type Trip struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	City                 string              `json:"city"`
	Nights               int                 `json:"nights"`
	Days                 int                 `json:"days"`
	Price                int                 `json:"price"`
	Description          string              `json:"description"`
	Images               []string            `json:"images"`
	Inclusions           []string            `json:"inclusions"`
	Themes               []string            `json:"themes"`
	DestinationItinerary []DestinationStop   `json:"destinationItinerary"`
	DestinationDetails   []DestinationDetail `json:"destinationDetails"`
	DetailedItinerary    []ItinerarySection  `json:"detailedItinerary"`
	PackageItinerary     []DayPlan           `json:"packageItinerary"`
	ScrapedOn            time.Time           `json:"scrapedOn"`
	Status               TripStatus          `json:"status"`
}

// Flight is one scraped flight search result. JobID is a back-reference to
// the search job that produced it, used for lookup only.
type Flight struct {
	ID            int64     `json:"id"`
	AirlineName   string    `json:"airlineName"`
	AirlineLogo   string    `json:"airlineLogo"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	DepartureTime string    `json:"departureTime"`
	ArrivalTime   string    `json:"arrivalTime"`
	Duration      string    `json:"duration"`
	Price         int       `json:"price"`
	Synthetic     bool      `json:"synthetic"`
	JobID         string    `json:"jobId"`
	ScrapedOn     time.Time `json:"scrapedOn"`
}

// Hotel is one scraped hotel search result.
type Hotel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Price     int       `json:"price"`
	Location  string    `json:"location"`
	Synthetic bool      `json:"synthetic"`
	JobID     string    `json:"jobId"`
	ScrapedOn time.Time `json:"scrapedOn"`
}
