package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/queue"
	"github.com/travelsage/scraper-back/internal/repository"
)

type stubProducer struct {
	mu       sync.Mutex
	messages []domain.QueueMessage
	err      error
}

func (p *stubProducer) Enqueue(_ context.Context, message domain.QueueMessage) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

type stubStats struct {
	stats queue.Stats
	err   error
}

func (s *stubStats) Stats(context.Context) (queue.Stats, error) {
	return s.stats, s.err
}

func newService(producer *stubProducer, stats *stubStats) (*JobsService, *repository.MemoryJobsRepository, *repository.MemoryResultsRepository) {
	jobs := repository.NewMemoryJobsRepository()
	results := repository.NewMemoryResultsRepository()
	return NewJobsService(jobs, results, producer, stats), jobs, results
}

func TestCreateJobPersistsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	producer := &stubProducer{}
	svc, jobs, _ := newService(producer, &stubStats{})

	created, err := svc.CreateJob(ctx, domain.JobRequest{
		URL:  "https://packages.yatra.com/holidays",
		Spec: domain.JobSpec{Kind: domain.JobKindLocation},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.JobStatusPending {
		t.Fatalf("expected pending job, got %s", created.Status)
	}

	stored, err := jobs.GetJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("job row missing: %v", err)
	}
	if stored.URL != created.URL {
		t.Fatalf("unexpected stored url: %s", stored.URL)
	}

	if len(producer.messages) != 1 {
		t.Fatalf("expected 1 queue message, got %d", len(producer.messages))
	}
	message := producer.messages[0]
	if message.JobID != created.ID || message.Kind != domain.JobKindLocation || message.Attempt != 0 {
		t.Fatalf("unexpected queue message: %+v", message)
	}
}

func TestCreateJobEnqueueFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	producer := &stubProducer{err: errors.New("redis down")}
	svc, jobs, _ := newService(producer, &stubStats{})

	_, err := svc.CreateJob(ctx, domain.JobRequest{
		URL:  "https://packages.yatra.com/holidays",
		Spec: domain.JobSpec{Kind: domain.JobKindLocation},
	})
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	// No orphaned pending job may remain.
	listed, listErr := jobs.ListRecentJobs(ctx, 10)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 job row, got %d", len(listed))
	}
	if listed[0].Status != domain.JobStatusFailed {
		t.Fatalf("expected failed compensation status, got %s", listed[0].Status)
	}
}

func TestCreateJobValidatesSpec(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(&stubProducer{}, &stubStats{})

	if _, err := svc.CreateJob(ctx, domain.JobRequest{
		URL:  "https://example.com",
		Spec: domain.JobSpec{Kind: domain.JobKindFlightSearch},
	}); err == nil {
		t.Fatal("expected validation error for flight job without query")
	}

	if _, err := svc.CreateJob(ctx, domain.JobRequest{
		Spec: domain.JobSpec{Kind: domain.JobKindLocation},
	}); err == nil {
		t.Fatal("expected validation error for missing url")
	}
}

func TestCreateFlightSearchBuildsURL(t *testing.T) {
	ctx := context.Background()
	producer := &stubProducer{}
	svc, _, _ := newService(producer, &stubStats{})

	job, err := svc.CreateFlightSearch(ctx, domain.FlightQuery{Source: "DEL", Destination: "BOM", Date: "2026-09-20"})
	if err != nil {
		t.Fatalf("create flight search: %v", err)
	}
	if job.URL != "https://www.kayak.co.in/flights/DEL-BOM/2026-09-20" {
		t.Fatalf("unexpected search url: %s", job.URL)
	}
	if job.Spec.Kind != domain.JobKindFlightSearch || job.Spec.Flight == nil {
		t.Fatalf("unexpected spec: %+v", job.Spec)
	}
}

func TestCreateHotelSearchBuildsURL(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(&stubProducer{}, &stubStats{})

	job, err := svc.CreateHotelSearch(ctx, domain.HotelQuery{Location: "New Delhi"})
	if err != nil {
		t.Fatalf("create hotel search: %v", err)
	}
	if !strings.Contains(job.URL, "agoda.com/search?destination=New+Delhi") {
		t.Fatalf("unexpected search url: %s", job.URL)
	}
}

func TestOverviewCombinesQueueAndStore(t *testing.T) {
	ctx := context.Background()
	producer := &stubProducer{}
	stats := &stubStats{stats: queue.Stats{Queued: 3, InFlight: 2, Retrying: 1}}
	svc, _, _ := newService(producer, stats)

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateJob(ctx, domain.JobRequest{
			URL:  "https://packages.yatra.com/holidays",
			Spec: domain.JobSpec{Kind: domain.JobKindLocation},
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	overview, err := svc.Overview(ctx, 10)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.OnGoingJobs != 2 {
		t.Fatalf("expected 2 ongoing, got %d", overview.OnGoingJobs)
	}
	if overview.QueuedJobs != 4 {
		t.Fatalf("expected queued+retrying=4, got %d", overview.QueuedJobs)
	}
	if len(overview.Jobs) != 2 {
		t.Fatalf("expected 2 listed jobs, got %d", len(overview.Jobs))
	}
}

func TestMetricsAggregates(t *testing.T) {
	ctx := context.Background()
	stats := &stubStats{stats: queue.Stats{Dead: 5}}
	svc, _, results := newService(&stubProducer{}, stats)

	if _, err := svc.CreateJob(ctx, domain.JobRequest{
		URL:  "https://packages.yatra.com/holidays",
		Spec: domain.JobSpec{Kind: domain.JobKindLocation},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = results.SaveTrip(ctx, domain.Trip{ID: "t1", Status: domain.TripStatusSummary})

	metrics, err := svc.Metrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics.JobsByStatus[domain.JobStatusPending] != 1 {
		t.Fatalf("unexpected job counts: %+v", metrics.JobsByStatus)
	}
	if metrics.Results.Trips != 1 {
		t.Fatalf("unexpected result counts: %+v", metrics.Results)
	}
	if metrics.Queue.Dead != 5 {
		t.Fatalf("unexpected queue stats: %+v", metrics.Queue)
	}
}
