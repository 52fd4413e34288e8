package handlers

import (
	"net/http"
	"strings"

	"github.com/travelsage/scraper-back/internal/domain"
)

// Flights serves GET /v1/flights?job_id= for results produced by one search.
func (api *API) Flights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(r.URL.Query().Get("job_id"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	flights, err := api.jobs.ListFlights(r.Context(), jobID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load flights")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flights": flights})
}

type flightScrapeRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
}

// FlightScrape serves POST /v1/flights/scrape: builds the search URL and
// schedules a flight_search job.
func (api *API) FlightScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request flightScrapeRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	query := domain.FlightQuery{
		Source:      strings.TrimSpace(request.Source),
		Destination: strings.TrimSpace(request.Destination),
		Date:        strings.TrimSpace(request.Date),
	}
	if query.Source == "" || query.Destination == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "source and destination are required")
		return
	}

	job, err := api.jobs.CreateFlightSearch(r.Context(), query)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to schedule flight scrape")
		return
	}
	writeJSON(w, http.StatusCreated, createJobResponse{JobCreated: true, JobID: job.ID})
}
