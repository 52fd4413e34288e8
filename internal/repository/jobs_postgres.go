package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/travelsage/scraper-back/internal/domain"
)

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(ctx context.Context, databaseURL string) (*PostgresJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresJobsRepository{pool: pool}, nil
}

// NewPostgresJobsRepositoryFromPool wraps an existing pool so the jobs and
// results repositories can share one connection pool.
func NewPostgresJobsRepositoryFromPool(pool *pgxpool.Pool) *PostgresJobsRepository {
	return &PostgresJobsRepository{pool: pool}
}

func (r *PostgresJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	spec, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO jobs (id, url, spec, status, is_complete, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		job.ID,
		job.URL,
		spec,
		string(job.Status),
		job.IsComplete,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, url, spec, status, is_complete, error_message, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, jobID)
	return scanJob(row)
}

func (r *PostgresJobsRepository) FindJobByURL(ctx context.Context, url string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, url, spec, status, is_complete, error_message, created_at, updated_at
		FROM jobs
		WHERE url = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, url)
	return scanJob(row)
}

func (r *PostgresJobsRepository) MarkTerminal(
	ctx context.Context,
	jobID string,
	status domain.JobStatus,
	errorMessage string,
) error {
	if !status.IsTerminal() {
		return fmt.Errorf("mark terminal requires a terminal status, got %s", status)
	}

	// The status guard makes the transition single-shot under concurrent
	// redeliveries.
	command, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			is_complete = TRUE,
			error_message = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, jobID, string(status), errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job terminal: %w", err)
	}
	if command.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
			return fmt.Errorf("check job existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrTerminal
	}
	return nil
}

func (r *PostgresJobsRepository) ListRecentJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, url, spec, status, is_complete, error_message, created_at, updated_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate jobs: %w", rows.Err())
	}
	return jobs, nil
}

func (r *PostgresJobsRepository) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[domain.JobStatus(status)] = count
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate job counts: %w", rows.Err())
	}
	return counts, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job    domain.Job
		spec   []byte
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.URL,
		&spec,
		&status,
		&job.IsComplete,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(spec, &job.Spec); err != nil {
		return nil, fmt.Errorf("decode job spec: %w", err)
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}
