package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/travelsage/scraper-back/internal/domain"
)

// Hotels serves GET /v1/hotels?location=&limit=.
func (api *API) Hotels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	location := strings.TrimSpace(r.URL.Query().Get("location"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	hotels, err := api.jobs.ListHotels(r.Context(), location, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load hotels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotels": hotels})
}

type hotelScrapeRequest struct {
	Location string `json:"location"`
}

// HotelScrape serves POST /v1/hotels/scrape: builds the search URL and
// schedules a hotel_search job.
func (api *API) HotelScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request hotelScrapeRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	location := strings.TrimSpace(request.Location)
	if location == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "location is required")
		return
	}

	job, err := api.jobs.CreateHotelSearch(r.Context(), domain.HotelQuery{Location: location})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to schedule hotel scrape")
		return
	}
	writeJSON(w, http.StatusCreated, createJobResponse{JobCreated: true, JobID: job.ID})
}
