package handlers

import "net/http"

// Metrics serves GET /v1/metrics, the dashboard aggregate.
func (api *API) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	metrics, err := api.jobs.Metrics(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load metrics")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}
