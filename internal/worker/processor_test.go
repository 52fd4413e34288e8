package worker

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/travelsage/scraper-back/internal/browser"
	"github.com/travelsage/scraper-back/internal/cache"
	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/repository"
	"github.com/travelsage/scraper-back/internal/scrape"
)

const locationPageHTML = `
<html><body>
<div class="packages-container">
  <div class="package-name"><a href="/holidays/intl/details.htm?packageId=IN9">Simply Bali (Land Only)</a></div>
  <div class="package-duration">
    <div class="nights"><span>4 Nights</span></div>
    <div class="days"><span>5 Days</span></div>
  </div>
  <div class="final-price"><span class="amount">45,999</span></div>
</div>
<div class="packages-container">
  <div class="package-name"><a href="/holidays/intl/details.htm?packageId=SG4">Experience Singapore - Family Special</a></div>
  <div class="final-price"><span class="amount">62,500</span></div>
</div>
</body></html>`

type fakeSession struct {
	html        string
	navigateErr error
	waitErr     error

	mu         sync.Mutex
	closeCount int
}

func (s *fakeSession) Navigate(_ context.Context, _ string, _ time.Duration) error {
	return s.navigateErr
}

func (s *fakeSession) WaitVisible(_ context.Context, _ string, _ time.Duration) error {
	return s.waitErr
}

func (s *fakeSession) HTML(_ context.Context) (string, error) {
	return s.html, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

func (s *fakeSession) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

type fakeProvider struct {
	session    *fakeSession
	acquireErr error

	mu       sync.Mutex
	acquires int
}

func (p *fakeProvider) Acquire(_ context.Context) (browser.Session, error) {
	p.mu.Lock()
	p.acquires++
	p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.session, nil
}

func (p *fakeProvider) acquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []domain.QueueMessage
	err      error
}

func (p *fakeProducer) Enqueue(_ context.Context, message domain.QueueMessage) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakeProducer) enqueued() []domain.QueueMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.QueueMessage(nil), p.messages...)
}

type panicExtractor struct{}

func (panicExtractor) Marker() string { return ".anything" }

func (panicExtractor) Extract(context.Context, *goquery.Document, *domain.Job) (*scrape.Result, error) {
	panic("selector index out of range")
}

type testHarness struct {
	dispatcher *Dispatcher
	jobs       *repository.MemoryJobsRepository
	results    *repository.MemoryResultsRepository
	producer   *fakeProducer
	provider   *fakeProvider
}

func newHarness(t *testing.T, session *fakeSession) *testHarness {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	jobs := repository.NewMemoryJobsRepository()
	results := repository.NewMemoryResultsRepository()
	producer := &fakeProducer{}
	provider := &fakeProvider{session: session}

	dispatcher := NewDispatcher(
		nil,
		producer,
		jobs,
		results,
		provider,
		scrape.NewRegistry(scrape.Options{Logger: logger}),
		cache.NewSeenSet(cache.Config{TTL: time.Minute, MaxEntries: 100}),
		Config{Concurrency: 1, MaxAttempts: 2},
		logger,
	)
	return &testHarness{
		dispatcher: dispatcher,
		jobs:       jobs,
		results:    results,
		producer:   producer,
		provider:   provider,
	}
}

func seedJob(t *testing.T, h *testHarness, id string, spec domain.JobSpec, url string) domain.QueueMessage {
	t.Helper()

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        id,
		URL:       url,
		Spec:      spec,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return domain.QueueMessage{JobID: id, Kind: spec.Kind, URL: url, RequestedAt: now}
}

func TestDispatcherLocationHappyPath(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{html: locationPageHTML}
	h := newHarness(t, session)

	message := seedJob(t, h, "job-loc", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays")
	if err := h.dispatcher.handleMessage(ctx, message); err != nil {
		t.Fatalf("handle: %v", err)
	}

	job, err := h.jobs.GetJob(ctx, "job-loc")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.JobStatusComplete || !job.IsComplete {
		t.Fatalf("expected complete job, got %+v", job)
	}

	trips, err := h.results.ListTrips(ctx, "")
	if err != nil {
		t.Fatalf("list trips: %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("expected 2 summary trips, got %d", len(trips))
	}

	derived := h.producer.enqueued()
	if len(derived) != 2 {
		t.Fatalf("expected 2 derived package jobs, got %d", len(derived))
	}
	for _, msg := range derived {
		if msg.Kind != domain.JobKindPackage {
			t.Fatalf("derived message has wrong kind: %s", msg.Kind)
		}
		if _, err := h.jobs.GetJob(ctx, msg.JobID); err != nil {
			t.Fatalf("derived job row missing: %v", err)
		}
	}

	if session.closes() != 1 {
		t.Fatalf("expected exactly one session close, got %d", session.closes())
	}
}

func TestDispatcherFanOutDeduplicates(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{html: locationPageHTML}
	h := newHarness(t, session)

	first := seedJob(t, h, "job-loc-1", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays?page=1")
	if err := h.dispatcher.handleMessage(ctx, first); err != nil {
		t.Fatalf("first handle: %v", err)
	}

	// A second page listing the same packages must not fan out duplicates.
	second := seedJob(t, h, "job-loc-2", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays?page=2")
	if err := h.dispatcher.handleMessage(ctx, second); err != nil {
		t.Fatalf("second handle: %v", err)
	}

	if derived := h.producer.enqueued(); len(derived) != 2 {
		t.Fatalf("expected fan-out of 2 unique packages across both scrapes, got %d", len(derived))
	}
}

func TestDispatcherMarkerTimeoutFailsTerminally(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{waitErr: browser.ErrMarkerTimeout}
	h := newHarness(t, session)

	message := seedJob(t, h, "job-loc", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays")
	if err := h.dispatcher.handleMessage(ctx, message); err != nil {
		t.Fatalf("marker timeout must ack, got %v", err)
	}

	job, _ := h.jobs.GetJob(ctx, "job-loc")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if session.closes() != 1 {
		t.Fatalf("expected exactly one session close, got %d", session.closes())
	}
}

func TestDispatcherRetryableKeepsJobPending(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{navigateErr: browser.ErrNavigation}
	h := newHarness(t, session)

	message := seedJob(t, h, "job-loc", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays")
	if err := h.dispatcher.handleMessage(ctx, message); err == nil {
		t.Fatal("expected retryable error to surface to the queue")
	}

	job, _ := h.jobs.GetJob(ctx, "job-loc")
	if job.Status != domain.JobStatusPending {
		t.Fatalf("first attempt failure must leave job pending, got %s", job.Status)
	}
	if session.closes() != 1 {
		t.Fatalf("expected session close on error path, got %d", session.closes())
	}
}

func TestDispatcherExhaustedRetriesMarkFailed(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{navigateErr: browser.ErrNavigation}
	h := newHarness(t, session)

	message := seedJob(t, h, "job-loc", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays")
	message.Attempt = 1 // second and final delivery with MaxAttempts=2

	if err := h.dispatcher.handleMessage(ctx, message); err == nil {
		t.Fatal("expected error so the queue can dead-letter the message")
	}

	job, _ := h.jobs.GetJob(ctx, "job-loc")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed after exhausted retries, got %s", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Fatal("expected error message on failed job")
	}
}

func TestDispatcherTerminalJobAckedWithoutWork(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{html: locationPageHTML}
	h := newHarness(t, session)

	message := seedJob(t, h, "job-loc", domain.JobSpec{Kind: domain.JobKindLocation}, "https://packages.yatra.com/holidays")
	if err := h.jobs.MarkTerminal(ctx, "job-loc", domain.JobStatusComplete, ""); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	if err := h.dispatcher.handleMessage(ctx, message); err != nil {
		t.Fatalf("redelivery for terminal job must ack, got %v", err)
	}
	if h.provider.acquireCount() != 0 {
		t.Fatal("terminal job must not acquire a browser session")
	}
}

func TestDispatcherUnknownKindAcked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeSession{html: "<html></html>"})

	message := seedJob(t, h, "job-x", domain.JobSpec{Kind: domain.JobKind("video_search")}, "https://example.com")
	if err := h.dispatcher.handleMessage(ctx, message); err != nil {
		t.Fatalf("unknown kind must be acked, got %v", err)
	}
	if h.provider.acquireCount() != 0 {
		t.Fatal("unknown kind must not acquire a browser session")
	}
}

func TestDispatcherUnknownJobDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeSession{html: "<html></html>"})

	message := domain.QueueMessage{JobID: "missing", Kind: domain.JobKindLocation}
	if err := h.dispatcher.handleMessage(ctx, message); err != nil {
		t.Fatalf("message for unknown job must be acked, got %v", err)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{html: "<html><body><div class='anything'>x</div></body></html>"}
	h := newHarness(t, session)
	h.dispatcher.extractors[domain.JobKindLocation] = panicExtractor{}

	message := seedJob(t, h, "job-panic", domain.JobSpec{Kind: domain.JobKindLocation}, "https://example.com")
	if err := h.dispatcher.handleMessage(ctx, message); err != nil {
		t.Fatalf("panic must be swallowed after marking the job failed, got %v", err)
	}

	job, _ := h.jobs.GetJob(ctx, "job-panic")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed job after panic, got %s", job.Status)
	}
	if session.closes() != 1 {
		t.Fatalf("expected session close despite panic, got %d", session.closes())
	}
}
