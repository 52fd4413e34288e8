package httpserver

import (
	"log"
	"net/http"

	"github.com/travelsage/scraper-back/internal/http/handlers"
	"github.com/travelsage/scraper-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/v1/jobs", deps.API.Jobs)
	mux.HandleFunc("/v1/jobs/", deps.API.JobStatus)
	mux.HandleFunc("/v1/trips", deps.API.Trips)
	mux.HandleFunc("/v1/flights", deps.API.Flights)
	mux.HandleFunc("/v1/flights/scrape", deps.API.FlightScrape)
	mux.HandleFunc("/v1/hotels", deps.API.Hotels)
	mux.HandleFunc("/v1/hotels/scrape", deps.API.HotelScrape)
	mux.HandleFunc("/v1/metrics", deps.API.Metrics)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
