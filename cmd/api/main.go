package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/travelsage/scraper-back/internal/browser"
	"github.com/travelsage/scraper-back/internal/cache"
	"github.com/travelsage/scraper-back/internal/config"
	httpserver "github.com/travelsage/scraper-back/internal/http"
	"github.com/travelsage/scraper-back/internal/http/handlers"
	"github.com/travelsage/scraper-back/internal/queue"
	"github.com/travelsage/scraper-back/internal/redact"
	"github.com/travelsage/scraper-back/internal/repository"
	"github.com/travelsage/scraper-back/internal/scrape"
	"github.com/travelsage/scraper-back/internal/service"
	"github.com/travelsage/scraper-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[scraper-back] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobsRepo, resultsRepo, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, stats, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	jobsService := service.NewJobsService(jobsRepo, resultsRepo, producer, stats)
	api := handlers.NewAPI(jobsService)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		sessions, err := browser.NewRemoteProvider(
			cfg.BrowserWSURL,
			time.Duration(cfg.BrowserAcquireTimeoutMS)*time.Millisecond,
		)
		if err != nil {
			logger.Fatalf("browser provider setup failed (endpoint %s): %v", redact.URL(cfg.BrowserWSURL), err)
		}

		extractors := scrape.NewRegistry(scrape.Options{
			SyntheticFallback: cfg.SyntheticFallback,
			Logger:            logger,
		})
		seen := cache.NewSeenSet(cache.Config{
			TTL:        time.Duration(cfg.FanoutSeenTTLSeconds) * time.Second,
			MaxEntries: cfg.FanoutSeenMaxEntries,
		})
		dispatcher := worker.NewDispatcher(
			consumer,
			producer,
			jobsRepo,
			resultsRepo,
			sessions,
			extractors,
			seen,
			worker.Config{
				Concurrency:   cfg.WorkerConcurrency,
				MaxAttempts:   cfg.QueueMaxAttempts,
				NavTimeout:    time.Duration(cfg.NavTimeoutMS) * time.Millisecond,
				MarkerTimeout: time.Duration(cfg.MarkerTimeoutMS) * time.Millisecond,
			},
			logger,
		)
		go func() {
			if err := dispatcher.Start(ctx); err != nil {
				logger.Printf("dispatcher stopped: %v", err)
			}
		}()
		logger.Printf("worker enabled concurrency=%d browser=%s", cfg.WorkerConcurrency, redact.URL(cfg.BrowserWSURL))
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.JobsRepository, repository.ResultsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		return repository.NewMemoryJobsRepository(), repository.NewMemoryResultsRepository(), func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err == nil {
		err = pool.Ping(ctx)
	}
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return repository.NewMemoryJobsRepository(), repository.NewMemoryResultsRepository(), func() {}
	}

	logger.Printf("postgres repositories initialized")
	return repository.NewPostgresJobsRepositoryFromPool(pool),
		repository.NewPostgresResultsRepositoryFromPool(pool),
		pool.Close
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, queue.StatsReader, func()) {
	backoffBase := time.Duration(cfg.QueueBackoffBaseMS) * time.Millisecond

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, backoffBase, logger)
		return local, local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		RetrySet:    cfg.RedisRetrySet,
		Group:       cfg.RedisGroup,
		MaxAttempts: cfg.QueueMaxAttempts,
		BackoffBase: backoffBase,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, backoffBase, logger)
		return local, local, local, func() {}
	}

	logger.Printf("redis streams queue initialized stream=%s group=%s", cfg.RedisStream, cfg.RedisGroup)
	return streams, streams, streams, func() {
		_ = streams.Close()
	}
}
