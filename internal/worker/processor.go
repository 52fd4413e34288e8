// Package worker runs the scrape dispatcher: a pool of consumers that turn
// queued jobs into browser sessions, extracted records, and fan-out jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/travelsage/scraper-back/internal/browser"
	"github.com/travelsage/scraper-back/internal/cache"
	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/queue"
	"github.com/travelsage/scraper-back/internal/repository"
	"github.com/travelsage/scraper-back/internal/scrape"
)

// Config tunes the dispatcher pool.
type Config struct {
	Concurrency   int
	MaxAttempts   int
	NavTimeout    time.Duration
	MarkerTimeout time.Duration
}

// Dispatcher consumes scrape jobs, drives a browser session per message, and
// persists what the extractors produce.
type Dispatcher struct {
	consumer   queue.Consumer
	producer   queue.Producer
	jobs       repository.JobsRepository
	results    repository.ResultsRepository
	sessions   browser.Provider
	extractors map[domain.JobKind]scrape.Extractor
	seen       *cache.SeenSet
	logger     *log.Logger

	concurrency   int
	maxAttempts   int
	navTimeout    time.Duration
	markerTimeout time.Duration
}

func NewDispatcher(
	consumer queue.Consumer,
	producer queue.Producer,
	jobs repository.JobsRepository,
	results repository.ResultsRepository,
	sessions browser.Provider,
	extractors map[domain.JobKind]scrape.Extractor,
	seen *cache.SeenSet,
	config Config,
	logger *log.Logger,
) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 2
	}
	if config.NavTimeout <= 0 {
		config.NavTimeout = 45 * time.Second
	}
	if config.MarkerTimeout <= 0 {
		config.MarkerTimeout = 30 * time.Second
	}
	return &Dispatcher{
		consumer:      consumer,
		producer:      producer,
		jobs:          jobs,
		results:       results,
		sessions:      sessions,
		extractors:    extractors,
		seen:          seen,
		logger:        logger,
		concurrency:   config.Concurrency,
		maxAttempts:   config.MaxAttempts,
		navTimeout:    config.NavTimeout,
		markerTimeout: config.MarkerTimeout,
	}
}

// Start runs the worker pool until ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		group.Go(func() error {
			d.consumeLoop(groupCtx)
			return nil
		})
	}
	return group.Wait()
}

func (d *Dispatcher) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := d.consumer.Consume(ctx, d.handleMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if d.logger != nil {
			d.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, message domain.QueueMessage) (err error) {
	// A panicking extractor must not take the pool down. The job is failed
	// terminally and the message acked.
	defer func() {
		if recovered := recover(); recovered != nil {
			if d.logger != nil {
				d.logger.Printf("worker panic job_id=%s: %v", message.JobID, recovered)
			}
			d.markFailed(ctx, message.JobID, fmt.Sprintf("worker panic: %v", recovered))
			err = nil
		}
	}()

	job, loadErr := d.jobs.GetJob(ctx, message.JobID)
	if loadErr != nil {
		if errors.Is(loadErr, repository.ErrNotFound) {
			if d.logger != nil {
				d.logger.Printf("worker: dropping message for unknown job %s", message.JobID)
			}
			return nil
		}
		return d.retryable(ctx, message, fmt.Errorf("load job %s: %w", message.JobID, loadErr))
	}

	// Redeliveries for jobs that already finished are acked without effect.
	if job.Status.IsTerminal() {
		return nil
	}

	extractor, ok := d.extractors[job.Spec.Kind]
	if !ok {
		if d.logger != nil {
			d.logger.Printf("worker: no extractor for kind %q, acking job %s", job.Spec.Kind, job.ID)
		}
		return nil
	}

	result, scrapeErr := d.scrapeJob(ctx, job, extractor)
	if scrapeErr != nil {
		if isTerminalScrapeError(scrapeErr) {
			d.markFailed(ctx, job.ID, scrapeErr.Error())
			return nil
		}
		return d.retryable(ctx, message, scrapeErr)
	}

	if persistErr := d.persistResult(ctx, job, result); persistErr != nil {
		return d.retryable(ctx, message, persistErr)
	}

	d.fanOut(ctx, job, result.Derived)

	if markErr := d.jobs.MarkTerminal(ctx, job.ID, domain.JobStatusComplete, ""); markErr != nil && !errors.Is(markErr, repository.ErrTerminal) {
		return d.retryable(ctx, message, fmt.Errorf("mark job %s complete: %w", job.ID, markErr))
	}

	if d.logger != nil {
		d.logger.Printf("job processed kind=%s job_id=%s trips=%d flights=%d hotels=%d derived=%d",
			job.Spec.Kind, job.ID, len(result.Trips), len(result.Flights), len(result.Hotels), len(result.Derived))
	}
	return nil
}

func (d *Dispatcher) scrapeJob(ctx context.Context, job *domain.Job, extractor scrape.Extractor) (*scrape.Result, error) {
	session, err := d.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session for job %s: %w", job.ID, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && d.logger != nil {
			d.logger.Printf("worker: close session for job %s: %v", job.ID, closeErr)
		}
	}()

	if err := session.Navigate(ctx, job.URL, d.navTimeout); err != nil {
		return nil, fmt.Errorf("navigate for job %s: %w", job.ID, err)
	}
	if err := session.WaitVisible(ctx, extractor.Marker(), d.markerTimeout); err != nil {
		return nil, fmt.Errorf("wait content for job %s: %w", job.ID, err)
	}

	html, err := session.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page for job %s: %w", job.ID, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page for job %s: %v", scrape.ErrNoContent, job.ID, err)
	}

	return extractor.Extract(ctx, doc, job)
}

func (d *Dispatcher) persistResult(ctx context.Context, job *domain.Job, result *scrape.Result) error {
	for _, trip := range result.Trips {
		if err := d.results.SaveTrip(ctx, trip); err != nil {
			return fmt.Errorf("save trip %s: %w", trip.ID, err)
		}
	}
	for _, flight := range result.Flights {
		if err := d.results.SaveFlight(ctx, flight); err != nil {
			return fmt.Errorf("save flight for job %s: %w", job.ID, err)
		}
	}
	for _, hotel := range result.Hotels {
		if err := d.results.SaveHotel(ctx, hotel); err != nil {
			return fmt.Errorf("save hotel for job %s: %w", job.ID, err)
		}
	}
	return nil
}

// fanOut creates and enqueues derived jobs, deduplicating by target URL. A
// lost derived job only delays detail data until the next location scrape, so
// failures are logged rather than failing the parent.
func (d *Dispatcher) fanOut(ctx context.Context, parent *domain.Job, derived []domain.JobRequest) {
	for _, request := range derived {
		if d.seen != nil && d.seen.Seen(request.URL) {
			continue
		}

		if _, err := d.jobs.FindJobByURL(ctx, request.URL); err == nil {
			if d.seen != nil {
				d.seen.Mark(request.URL)
			}
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			if d.logger != nil {
				d.logger.Printf("fan-out: duplicate check for %s: %v", request.URL, err)
			}
			continue
		}

		if err := d.createAndEnqueue(ctx, request); err != nil {
			if d.logger != nil {
				d.logger.Printf("fan-out: derive from job %s: %v", parent.ID, err)
			}
			continue
		}
		if d.seen != nil {
			d.seen.Mark(request.URL)
		}
	}
}

func (d *Dispatcher) createAndEnqueue(ctx context.Context, request domain.JobRequest) error {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		URL:       request.URL,
		Spec:      request.Spec,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Concurrent location scrapes can race on the same package id. The loser's
	// duplicate row is harmless: result saves are idempotent by package id.
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create derived job: %w", err)
	}

	payload, err := json.Marshal(request.Spec)
	if err != nil {
		return fmt.Errorf("encode derived job spec: %w", err)
	}
	message := domain.QueueMessage{
		JobID:       job.ID,
		Kind:        request.Spec.Kind,
		URL:         request.URL,
		Payload:     payload,
		RequestedAt: now,
	}
	if err := d.producer.Enqueue(ctx, message); err != nil {
		d.markFailed(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
		return fmt.Errorf("enqueue derived job %s: %w", job.ID, err)
	}
	return nil
}

// retryable hands err back to the queue for redelivery, first writing the
// terminal failed status when this was the last attempt.
func (d *Dispatcher) retryable(ctx context.Context, message domain.QueueMessage, err error) error {
	if message.Attempt+1 >= d.maxAttempts {
		d.markFailed(ctx, message.JobID, err.Error())
	}
	return err
}

func (d *Dispatcher) markFailed(ctx context.Context, jobID, errorMessage string) {
	err := d.jobs.MarkTerminal(ctx, jobID, domain.JobStatusFailed, errorMessage)
	if err != nil && !errors.Is(err, repository.ErrTerminal) && !errors.Is(err, repository.ErrNotFound) {
		if d.logger != nil {
			d.logger.Printf("worker: mark job %s failed: %v", jobID, err)
		}
	}
}

// Navigation and acquisition problems are transient; a page that rendered
// without the expected structure will render the same way on retry.
func isTerminalScrapeError(err error) bool {
	return errors.Is(err, scrape.ErrNoContent) || errors.Is(err, browser.ErrMarkerTimeout)
}
