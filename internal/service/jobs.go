// Package service coordinates job persistence with queue publication and
// exposes the read models the HTTP layer serves.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/queue"
	"github.com/travelsage/scraper-back/internal/repository"
)

type JobsService struct {
	jobs     repository.JobsRepository
	results  repository.ResultsRepository
	producer queue.Producer
	stats    queue.StatsReader
}

func NewJobsService(
	jobs repository.JobsRepository,
	results repository.ResultsRepository,
	producer queue.Producer,
	stats queue.StatsReader,
) *JobsService {
	return &JobsService{
		jobs:     jobs,
		results:  results,
		producer: producer,
		stats:    stats,
	}
}

// CreateJob persists a job row and publishes its queue message as one logical
// operation. An enqueue failure marks the row failed so no pending job exists
// that the queue will never deliver.
func (s *JobsService) CreateJob(ctx context.Context, request domain.JobRequest) (*domain.Job, error) {
	if request.URL == "" {
		return nil, fmt.Errorf("job url is required")
	}
	if err := request.Spec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		URL:       request.URL,
		Spec:      request.Spec,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	payload, err := json.Marshal(request.Spec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode job spec: %v", queue.ErrSerialization, err)
	}
	message := domain.QueueMessage{
		JobID:       job.ID,
		Kind:        request.Spec.Kind,
		URL:         request.URL,
		Payload:     payload,
		Attempt:     0,
		RequestedAt: now,
	}

	if err := s.producer.Enqueue(ctx, message); err != nil {
		_ = s.jobs.MarkTerminal(ctx, job.ID, domain.JobStatusFailed, err.Error())
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// CreateFlightSearch builds the flight results URL for a query and schedules
// the scrape.
func (s *JobsService) CreateFlightSearch(ctx context.Context, query domain.FlightQuery) (*domain.Job, error) {
	return s.CreateJob(ctx, domain.JobRequest{
		URL: FlightSearchURL(query),
		Spec: domain.JobSpec{
			Kind:   domain.JobKindFlightSearch,
			Flight: &query,
		},
	})
}

// CreateHotelSearch builds the hotel search URL for a location and schedules
// the scrape.
func (s *JobsService) CreateHotelSearch(ctx context.Context, query domain.HotelQuery) (*domain.Job, error) {
	return s.CreateJob(ctx, domain.JobRequest{
		URL: HotelSearchURL(query),
		Spec: domain.JobSpec{
			Kind:  domain.JobKindHotelSearch,
			Hotel: &query,
		},
	})
}

func (s *JobsService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// Overview is the queue-plus-store snapshot behind the jobs listing endpoint.
type Overview struct {
	OnGoingJobs int64        `json:"on_going_jobs"`
	QueuedJobs  int64        `json:"queued_jobs"`
	Jobs        []domain.Job `json:"jobs"`
}

func (s *JobsService) Overview(ctx context.Context, limit int) (*Overview, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	jobs, err := s.jobs.ListRecentJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return &Overview{
		OnGoingJobs: stats.InFlight,
		QueuedJobs:  stats.Queued + stats.Retrying,
		Jobs:        jobs,
	}, nil
}

func (s *JobsService) ListTrips(ctx context.Context, city string) ([]domain.Trip, error) {
	return s.results.ListTrips(ctx, city)
}

func (s *JobsService) ListFlights(ctx context.Context, jobID string) ([]domain.Flight, error) {
	return s.results.ListFlights(ctx, jobID)
}

func (s *JobsService) ListHotels(ctx context.Context, location string, limit int) ([]domain.Hotel, error) {
	return s.results.ListHotels(ctx, location, limit)
}

// Metrics is the dashboard aggregate: job counts by status plus result store
// volume and live queue depth.
type Metrics struct {
	JobsByStatus map[domain.JobStatus]int64 `json:"jobs_by_status"`
	Results      repository.ResultCounts    `json:"results"`
	Queue        queue.Stats                `json:"queue"`
}

func (s *JobsService) Metrics(ctx context.Context) (*Metrics, error) {
	byStatus, err := s.jobs.CountJobsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	counts, err := s.results.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &Metrics{
		JobsByStatus: byStatus,
		Results:      counts,
		Queue:        stats,
	}, nil
}

// FlightSearchURL targets the kayak flight results page for a route and date.
func FlightSearchURL(query domain.FlightQuery) string {
	return fmt.Sprintf("https://www.kayak.co.in/flights/%s-%s/%s",
		url.PathEscape(query.Source), url.PathEscape(query.Destination), url.PathEscape(query.Date))
}

// HotelSearchURL targets the agoda search page for a location.
func HotelSearchURL(query domain.HotelQuery) string {
	return "https://www.agoda.com/search?destination=" + url.QueryEscape(query.Location)
}
