package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type JobKind string

const (
	JobKindLocation     JobKind = "location"
	JobKindPackage      JobKind = "package"
	JobKindFlightSearch JobKind = "flight_search"
	JobKindHotelSearch  JobKind = "hotel_search"
)

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusActive   JobStatus = "active"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// IsTerminal reports whether a status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

var ErrUnknownJobKind = errors.New("unknown job kind")

// FlightQuery parameterizes a flight search scrape.
type FlightQuery struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
}

// HotelQuery parameterizes a hotel search scrape.
type HotelQuery struct {
	Location string `json:"location"`
}

// PackageRef is the summary of a package discovered by a location scrape,
// carried into the derived package job so the detail scrape can merge onto it.
type PackageRef struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	City       string   `json:"city"`
	Nights     int      `json:"nights"`
	Days       int      `json:"days"`
	Price      int      `json:"price"`
	Images     []string `json:"images,omitempty"`
	Inclusions []string `json:"inclusions,omitempty"`
}

// JobSpec is the closed set of job variants. Exactly the field matching Kind
// is populated; dispatch switches exhaustively on Kind.
type JobSpec struct {
	Kind    JobKind      `json:"kind"`
	Package *PackageRef  `json:"package,omitempty"`
	Flight  *FlightQuery `json:"flight,omitempty"`
	Hotel   *HotelQuery  `json:"hotel,omitempty"`
}

// Validate checks that the variant payload matches the declared kind.
func (s JobSpec) Validate() error {
	switch s.Kind {
	case JobKindLocation:
		return nil
	case JobKindPackage:
		if s.Package == nil || s.Package.ID == "" {
			return fmt.Errorf("package job requires a package reference")
		}
		return nil
	case JobKindFlightSearch:
		if s.Flight == nil || s.Flight.Source == "" || s.Flight.Destination == "" {
			return fmt.Errorf("flight search job requires source and destination")
		}
		return nil
	case JobKindHotelSearch:
		if s.Hotel == nil || s.Hotel.Location == "" {
			return fmt.Errorf("hotel search job requires a location")
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, s.Kind)
	}
}

// Job is the persisted unit of scheduled scrape work.
type Job struct {
	ID           string
	URL          string
	Spec         JobSpec
	Status       JobStatus
	IsComplete   bool
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobRequest describes a job to be created, either by an API caller or by
// fan-out from a location scrape.
type JobRequest struct {
	URL  string
	Spec JobSpec
}

// QueueMessage is the transport envelope sent to queue backends. It references
// a Job and can be redelivered without duplicating the job row.
type QueueMessage struct {
	JobID       string          `json:"job_id"`
	Kind        JobKind         `json:"kind"`
	URL         string          `json:"url"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	RequestedAt time.Time       `json:"requested_at"`
}
