package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/travelsage/scraper-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrTerminal is returned when a status write targets a job that already
	// reached complete or failed. Terminal rows are never mutated again.
	ErrTerminal = errors.New("job already in a terminal state")
)

// JobsRepository abstracts job persistence and query operations.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	// FindJobByURL returns the newest job targeting url, or ErrNotFound.
	FindJobByURL(ctx context.Context, url string) (*domain.Job, error)
	// MarkTerminal moves a pending job to complete or failed exactly once.
	MarkTerminal(ctx context.Context, jobID string, status domain.JobStatus, errorMessage string) error
	ListRecentJobs(ctx context.Context, limit int) ([]domain.Job, error)
	CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// MemoryJobsRepository stores jobs in memory for local development and tests.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{
		jobs: make(map[string]*domain.Job),
	}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobsRepository) FindJobByURL(_ context.Context, url string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *domain.Job
	for _, job := range r.jobs {
		if job.URL != url {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) {
			newest = job
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return cloneJob(newest), nil
}

func (r *MemoryJobsRepository) MarkTerminal(
	_ context.Context,
	jobID string,
	status domain.JobStatus,
	errorMessage string,
) error {
	if !status.IsTerminal() {
		return errors.New("mark terminal requires a terminal status")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}

	job.Status = status
	job.IsComplete = true
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryJobsRepository) ListRecentJobs(_ context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryJobsRepository) CountJobsByStatus(_ context.Context) (map[domain.JobStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.JobStatus]int64)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.Spec.Package != nil {
		ref := *job.Spec.Package
		ref.Images = append([]string(nil), job.Spec.Package.Images...)
		ref.Inclusions = append([]string(nil), job.Spec.Package.Inclusions...)
		clone.Spec.Package = &ref
	}
	if job.Spec.Flight != nil {
		query := *job.Spec.Flight
		clone.Spec.Flight = &query
	}
	if job.Spec.Hotel != nil {
		query := *job.Spec.Hotel
		clone.Spec.Hotel = &query
	}
	return &clone
}
