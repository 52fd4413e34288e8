package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/travelsage/scraper-back/internal/domain"
)

// ResultCounts summarizes result store volume for the metrics endpoint.
type ResultCounts struct {
	Trips   int64 `json:"trips"`
	Flights int64 `json:"flights"`
	Hotels  int64 `json:"hotels"`
}

// ResultsRepository owns the extracted records. Saves are idempotent: a
// record whose unique key already exists is skipped, never an error. The one
// sanctioned overwrite is completing a summary trip with its detail scrape.
type ResultsRepository interface {
	SaveTrip(ctx context.Context, trip domain.Trip) error
	SaveFlight(ctx context.Context, flight domain.Flight) error
	SaveHotel(ctx context.Context, hotel domain.Hotel) error
	TripExists(ctx context.Context, tripID string) (bool, error)
	ListTrips(ctx context.Context, city string) ([]domain.Trip, error)
	ListFlights(ctx context.Context, jobID string) ([]domain.Flight, error)
	ListHotels(ctx context.Context, location string, limit int) ([]domain.Hotel, error)
	Counts(ctx context.Context) (ResultCounts, error)
}

// MemoryResultsRepository keeps results in memory for local development and
// tests, mirroring the conflict semantics of the Postgres implementation.
type MemoryResultsRepository struct {
	mu      sync.RWMutex
	trips   map[string]domain.Trip
	flights map[string]domain.Flight
	hotels  map[string]domain.Hotel
	nextID  int64
}

func NewMemoryResultsRepository() *MemoryResultsRepository {
	return &MemoryResultsRepository{
		trips:   make(map[string]domain.Trip),
		flights: make(map[string]domain.Flight),
		hotels:  make(map[string]domain.Hotel),
	}
}

func (r *MemoryResultsRepository) SaveTrip(_ context.Context, trip domain.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.trips[trip.ID]
	if !ok {
		r.trips[trip.ID] = trip
		return nil
	}
	// Only a summary row may be completed; anything else is a duplicate scrape.
	if existing.Status == domain.TripStatusSummary && trip.Status == domain.TripStatusComplete {
		r.trips[trip.ID] = trip
	}
	return nil
}

func (r *MemoryResultsRepository) SaveFlight(_ context.Context, flight domain.Flight) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := flightKey(flight)
	if _, ok := r.flights[key]; ok {
		return nil
	}
	r.nextID++
	flight.ID = r.nextID
	r.flights[key] = flight
	return nil
}

func (r *MemoryResultsRepository) SaveHotel(_ context.Context, hotel domain.Hotel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hotelKey(hotel)
	if _, ok := r.hotels[key]; ok {
		return nil
	}
	r.nextID++
	hotel.ID = r.nextID
	r.hotels[key] = hotel
	return nil
}

func (r *MemoryResultsRepository) TripExists(_ context.Context, tripID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.trips[tripID]
	return ok, nil
}

func (r *MemoryResultsRepository) ListTrips(_ context.Context, city string) ([]domain.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trips := make([]domain.Trip, 0, len(r.trips))
	for _, trip := range r.trips {
		if city != "" && !strings.EqualFold(trip.City, city) {
			continue
		}
		trips = append(trips, trip)
	}
	sort.Slice(trips, func(i, j int) bool {
		return trips[i].ScrapedOn.After(trips[j].ScrapedOn)
	})
	return trips, nil
}

func (r *MemoryResultsRepository) ListFlights(_ context.Context, jobID string) ([]domain.Flight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flights := make([]domain.Flight, 0)
	for _, flight := range r.flights {
		if jobID != "" && flight.JobID != jobID {
			continue
		}
		flights = append(flights, flight)
	}
	sort.Slice(flights, func(i, j int) bool {
		return flights[i].Price < flights[j].Price
	})
	return flights, nil
}

func (r *MemoryResultsRepository) ListHotels(_ context.Context, location string, limit int) ([]domain.Hotel, error) {
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hotels := make([]domain.Hotel, 0)
	for _, hotel := range r.hotels {
		if location != "" && !strings.Contains(strings.ToLower(hotel.Location), strings.ToLower(location)) {
			continue
		}
		hotels = append(hotels, hotel)
	}
	sort.Slice(hotels, func(i, j int) bool {
		return hotels[i].ScrapedOn.After(hotels[j].ScrapedOn)
	})
	if len(hotels) > limit {
		hotels = hotels[:limit]
	}
	return hotels, nil
}

func (r *MemoryResultsRepository) Counts(_ context.Context) (ResultCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ResultCounts{
		Trips:   int64(len(r.trips)),
		Flights: int64(len(r.flights)),
		Hotels:  int64(len(r.hotels)),
	}, nil
}

func flightKey(flight domain.Flight) string {
	return strings.Join([]string{flight.JobID, flight.AirlineName, flight.DepartureTime, flight.ArrivalTime}, "|")
}

func hotelKey(hotel domain.Hotel) string {
	return strings.Join([]string{hotel.JobID, hotel.Name, hotel.Location}, "|")
}
