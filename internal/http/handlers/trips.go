package handlers

import (
	"net/http"
	"strings"
)

// Trips serves GET /v1/trips with an optional city filter.
func (api *API) Trips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	city := strings.TrimSpace(r.URL.Query().Get("city"))
	trips, err := api.jobs.ListTrips(r.Context(), city)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load trips")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": trips})
}
