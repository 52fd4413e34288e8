package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/travelsage/scraper-back/internal/domain"
	"github.com/travelsage/scraper-back/internal/queue"
	"github.com/travelsage/scraper-back/internal/repository"
)

type createJobRequest struct {
	URL     string              `json:"url"`
	JobType string              `json:"job_type"`
	Package *domain.PackageRef  `json:"package,omitempty"`
	Flight  *domain.FlightQuery `json:"flight,omitempty"`
	Hotel   *domain.HotelQuery  `json:"hotel,omitempty"`
}

type createJobResponse struct {
	JobCreated bool   `json:"job_created"`
	JobID      string `json:"job_id"`
}

// Jobs serves the collection routes: POST schedules a scrape, GET reports
// queue depth plus the recent job list.
func (api *API) Jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.createJob(w, r)
	case http.MethodGet:
		api.listJobs(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (api *API) createJob(w http.ResponseWriter, r *http.Request) {
	var request createJobRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if strings.TrimSpace(request.URL) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	payloadHash := hashPayload(request)
	if idempotencyKey != "" {
		if entry, ok := api.idempotency.Get(idempotencyKey); ok {
			if entry.PayloadHash != payloadHash {
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "key reused with a different payload")
				return
			}
			writeJSON(w, http.StatusCreated, createJobResponse{JobCreated: true, JobID: entry.JobID})
			return
		}
	}

	spec := domain.JobSpec{
		Kind:    domain.JobKind(request.JobType),
		Package: request.Package,
		Flight:  request.Flight,
		Hotel:   request.Hotel,
	}
	if err := spec.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	job, err := api.jobs.CreateJob(r.Context(), domain.JobRequest{URL: request.URL, Spec: spec})
	if err != nil {
		if errors.Is(err, queue.ErrSerialization) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "job payload could not be encoded")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to schedule job")
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Put(idempotencyKey, payloadHash, job.ID)
	}
	writeJSON(w, http.StatusCreated, createJobResponse{JobCreated: true, JobID: job.ID})
}

func (api *API) listJobs(w http.ResponseWriter, r *http.Request) {
	overview, err := api.jobs.Overview(r.Context(), 50)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load jobs")
		return
	}

	jobs := make([]map[string]any, 0, len(overview.Jobs))
	for _, job := range overview.Jobs {
		jobs = append(jobs, jobSummary(&job))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"on_going_jobs": overview.OnGoingJobs,
		"queued_jobs":   overview.QueuedJobs,
		"jobs":          jobs,
	})
}

// JobStatus serves GET /v1/jobs/{id}/status, the polling contract for
// enqueued scrapes.
func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	jobID = strings.TrimSuffix(jobID, "/status")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job id is required")
		return
	}

	job, err := api.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, jobSummary(job))
}

func jobSummary(job *domain.Job) map[string]any {
	summary := map[string]any{
		"job_id":      job.ID,
		"url":         job.URL,
		"job_type":    job.Spec.Kind,
		"status":      job.Status,
		"is_complete": job.IsComplete,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
	}
	if strings.TrimSpace(job.ErrorMessage) != "" {
		summary["error"] = map[string]any{
			"code":    "processing_error",
			"message": job.ErrorMessage,
		}
	}
	return summary
}
