// Command load drives the full enqueue-dispatch-persist pipeline against an
// in-process server with a canned browser, reporting latency percentiles per
// scenario.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/travelsage/scraper-back/internal/browser"
	"github.com/travelsage/scraper-back/internal/cache"
	"github.com/travelsage/scraper-back/internal/http/handlers"
	"github.com/travelsage/scraper-back/internal/queue"
	"github.com/travelsage/scraper-back/internal/repository"
	"github.com/travelsage/scraper-back/internal/scrape"
	"github.com/travelsage/scraper-back/internal/service"
	"github.com/travelsage/scraper-back/internal/worker"

	httpserver "github.com/travelsage/scraper-back/internal/http"
)

const cannedHotelsPage = `<html><body>
<div class="PropertyCard">
  <h3 class="hotel-name">Grand Benchmark Resort</h3>
  <div class="final-price">4,500</div>
</div>
<div class="PropertyCard">
  <h3 class="hotel-name">Royal Benchmark Palace</h3>
  <div class="price">7,200</div>
</div>
</body></html>`

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	cancel context.CancelFunc
}

// cannedProvider always serves the same hotels page, so every job exercises
// parse and persist without a real browser in the loop.
type cannedProvider struct{}

func (cannedProvider) Acquire(context.Context) (browser.Session, error) {
	return cannedSession{}, nil
}

type cannedSession struct{}

func (cannedSession) Navigate(context.Context, string, time.Duration) error { return nil }
func (cannedSession) WaitVisible(context.Context, string, time.Duration) error {
	return nil
}
func (cannedSession) HTML(context.Context) (string, error) { return cannedHotelsPage, nil }
func (cannedSession) Close() error                         { return nil }

func main() {
	hotelsTotal := flag.Int("hotels-total", 240, "total hotel scrape enqueue requests")
	hotelsConcurrency := flag.Int("hotels-concurrency", 24, "concurrency for hotel scrape requests")
	flightsTotal := flag.Int("flights-total", 180, "total flight scrape enqueue requests")
	flightsConcurrency := flag.Int("flights-concurrency", 24, "concurrency for flight scrape requests")
	listTotal := flag.Int("list-total", 200, "total listing requests")
	listConcurrency := flag.Int("list-concurrency", 20, "concurrency for listing requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env := startBenchmarkEnvironment()
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	hotelsScenario := runScenario("hotels_enqueue", *hotelsTotal, *hotelsConcurrency, func(index int) error {
		payload := map[string]any{
			"location": fmt.Sprintf("Benchmark City %d", index%32),
		}
		return postJSON(client, env.server.URL+"/v1/hotels/scrape", payload, nil, http.StatusCreated)
	})

	flightsScenario := runScenario("flights_enqueue", *flightsTotal, *flightsConcurrency, func(index int) error {
		payload := map[string]any{
			"source":      "DEL",
			"destination": fmt.Sprintf("X%02d", index%40),
			"date":        "2026-09-20",
		}
		return postJSON(client, env.server.URL+"/v1/flights/scrape", payload, nil, http.StatusCreated)
	})

	jobsListScenario := runScenario("jobs_list", *listTotal, *listConcurrency, func(int) error {
		return getJSON(client, env.server.URL+"/v1/jobs", http.StatusOK)
	})

	hotelsListScenario := runScenario("hotels_list", *listTotal, *listConcurrency, func(index int) error {
		query := fmt.Sprintf("%s/v1/hotels?location=Benchmark+City+%d&limit=20", env.server.URL, index%32)
		return getJSON(client, query, http.StatusOK)
	})

	results := []scenarioResult{
		hotelsScenario,
		flightsScenario,
		jobsListScenario,
		hotelsListScenario,
	}

	slo := map[string]bool{
		"enqueue_p95_le_250ms": hotelsScenario.P95MS <= 250 && flightsScenario.P95MS <= 250,
		"listing_p95_le_250ms": jobsListScenario.P95MS <= 250 && hotelsListScenario.P95MS <= 250,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() *benchmarkEnv {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	jobs := repository.NewMemoryJobsRepository()
	results := repository.NewMemoryResultsRepository()
	localQueue := queue.NewLocalQueue(4096, 2, 10*time.Millisecond, logger)

	jobsService := service.NewJobsService(jobs, results, localQueue, localQueue)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            handlers.NewAPI(jobsService),
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	dispatcher := worker.NewDispatcher(
		localQueue,
		localQueue,
		jobs,
		results,
		cannedProvider{},
		scrape.NewRegistry(scrape.Options{Logger: logger}),
		cache.NewSeenSet(cache.Config{}),
		worker.Config{Concurrency: 8, MaxAttempts: 2},
		logger,
	)
	go dispatcher.Start(ctx)

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server: server,
		cancel: cancel,
	}
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
