package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/travelsage/scraper-back/internal/domain"
)

type PostgresResultsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresResultsRepository(ctx context.Context, databaseURL string) (*PostgresResultsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresResultsRepository{pool: pool}, nil
}

func NewPostgresResultsRepositoryFromPool(pool *pgxpool.Pool) *PostgresResultsRepository {
	return &PostgresResultsRepository{pool: pool}
}

func (r *PostgresResultsRepository) Close() {
	r.pool.Close()
}

// SaveTrip inserts a trip snapshot. A conflicting summary row is completed in
// place by a detail scrape; a conflicting complete row is left untouched.
func (r *PostgresResultsRepository) SaveTrip(ctx context.Context, trip domain.Trip) error {
	collections, err := tripCollections(trip)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO trips (
			id, name, city, nights, days, price, description,
			images, inclusions, themes,
			destination_itinerary, destination_details, detailed_itinerary, package_itinerary,
			scraped_on, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			images = EXCLUDED.images,
			themes = EXCLUDED.themes,
			destination_itinerary = EXCLUDED.destination_itinerary,
			destination_details = EXCLUDED.destination_details,
			detailed_itinerary = EXCLUDED.detailed_itinerary,
			package_itinerary = EXCLUDED.package_itinerary,
			scraped_on = EXCLUDED.scraped_on,
			status = EXCLUDED.status
		WHERE trips.status = 'summary' AND EXCLUDED.status = 'complete'
	`,
		trip.ID,
		trip.Name,
		trip.City,
		trip.Nights,
		trip.Days,
		trip.Price,
		trip.Description,
		collections[0],
		collections[1],
		collections[2],
		collections[3],
		collections[4],
		collections[5],
		collections[6],
		trip.ScrapedOn,
		string(trip.Status),
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (r *PostgresResultsRepository) SaveFlight(ctx context.Context, flight domain.Flight) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO flights (
			airline_name, airline_logo, from_city, to_city,
			departure_time, arrival_time, duration, price, synthetic, job_id, scraped_on
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (job_id, airline_name, departure_time, arrival_time) DO NOTHING
	`,
		flight.AirlineName,
		flight.AirlineLogo,
		flight.From,
		flight.To,
		flight.DepartureTime,
		flight.ArrivalTime,
		flight.Duration,
		flight.Price,
		flight.Synthetic,
		flight.JobID,
		flight.ScrapedOn,
	)
	if err != nil {
		return fmt.Errorf("insert flight: %w", err)
	}
	return nil
}

func (r *PostgresResultsRepository) SaveHotel(ctx context.Context, hotel domain.Hotel) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO hotels (name, image, price, location, synthetic, job_id, scraped_on)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (job_id, name, location) DO NOTHING
	`,
		hotel.Name,
		hotel.Image,
		hotel.Price,
		hotel.Location,
		hotel.Synthetic,
		hotel.JobID,
		hotel.ScrapedOn,
	)
	if err != nil {
		return fmt.Errorf("insert hotel: %w", err)
	}
	return nil
}

func (r *PostgresResultsRepository) TripExists(ctx context.Context, tripID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, tripID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check trip existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresResultsRepository) ListTrips(ctx context.Context, city string) ([]domain.Trip, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, name, city, nights, days, price, description,
			images, inclusions, themes,
			destination_itinerary, destination_details, detailed_itinerary, package_itinerary,
			scraped_on, status
		FROM trips
	`)
	args := make([]any, 0, 1)
	if city != "" {
		query.WriteString(" WHERE LOWER(city) = LOWER($1)")
		args = append(args, city)
	}
	query.WriteString(" ORDER BY scraped_on DESC")

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	trips := make([]domain.Trip, 0)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate trips: %w", rows.Err())
	}
	return trips, nil
}

func (r *PostgresResultsRepository) ListFlights(ctx context.Context, jobID string) ([]domain.Flight, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, airline_name, airline_logo, from_city, to_city,
			departure_time, arrival_time, duration, price, synthetic, job_id, scraped_on
		FROM flights
		WHERE job_id = $1
		ORDER BY price ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		var flight domain.Flight
		if err := rows.Scan(
			&flight.ID,
			&flight.AirlineName,
			&flight.AirlineLogo,
			&flight.From,
			&flight.To,
			&flight.DepartureTime,
			&flight.ArrivalTime,
			&flight.Duration,
			&flight.Price,
			&flight.Synthetic,
			&flight.JobID,
			&flight.ScrapedOn,
		); err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		flights = append(flights, flight)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate flights: %w", rows.Err())
	}
	return flights, nil
}

func (r *PostgresResultsRepository) ListHotels(ctx context.Context, location string, limit int) ([]domain.Hotel, error) {
	if limit <= 0 {
		limit = 20
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, name, image, price, location, synthetic, job_id, scraped_on
		FROM hotels
	`)
	args := make([]any, 0, 2)
	if location != "" {
		query.WriteString(" WHERE location ILIKE '%' || $1 || '%'")
		args = append(args, location)
	}
	query.WriteString(fmt.Sprintf(" ORDER BY scraped_on DESC LIMIT $%d", len(args)+1))
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list hotels: %w", err)
	}
	defer rows.Close()

	hotels := make([]domain.Hotel, 0, limit)
	for rows.Next() {
		var hotel domain.Hotel
		if err := rows.Scan(
			&hotel.ID,
			&hotel.Name,
			&hotel.Image,
			&hotel.Price,
			&hotel.Location,
			&hotel.Synthetic,
			&hotel.JobID,
			&hotel.ScrapedOn,
		); err != nil {
			return nil, fmt.Errorf("scan hotel: %w", err)
		}
		hotels = append(hotels, hotel)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate hotels: %w", rows.Err())
	}
	return hotels, nil
}

func (r *PostgresResultsRepository) Counts(ctx context.Context) (ResultCounts, error) {
	var counts ResultCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM trips),
			(SELECT COUNT(*) FROM flights),
			(SELECT COUNT(*) FROM hotels)
	`).Scan(&counts.Trips, &counts.Flights, &counts.Hotels)
	if err != nil {
		return counts, fmt.Errorf("count results: %w", err)
	}
	return counts, nil
}

// tripCollections marshals the JSONB columns in declaration order.
func tripCollections(trip domain.Trip) ([]json.RawMessage, error) {
	values := []any{
		trip.Images,
		trip.Inclusions,
		trip.Themes,
		trip.DestinationItinerary,
		trip.DestinationDetails,
		trip.DetailedItinerary,
		trip.PackageItinerary,
	}
	encoded := make([]json.RawMessage, 0, len(values))
	for _, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode trip collection: %w", err)
		}
		encoded = append(encoded, raw)
	}
	return encoded, nil
}

func scanTrip(rows pgx.Rows) (domain.Trip, error) {
	var (
		trip        domain.Trip
		status      string
		collections [7][]byte
	)
	if err := rows.Scan(
		&trip.ID,
		&trip.Name,
		&trip.City,
		&trip.Nights,
		&trip.Days,
		&trip.Price,
		&trip.Description,
		&collections[0],
		&collections[1],
		&collections[2],
		&collections[3],
		&collections[4],
		&collections[5],
		&collections[6],
		&trip.ScrapedOn,
		&status,
	); err != nil {
		return trip, fmt.Errorf("scan trip: %w", err)
	}

	targets := []any{
		&trip.Images,
		&trip.Inclusions,
		&trip.Themes,
		&trip.DestinationItinerary,
		&trip.DestinationDetails,
		&trip.DetailedItinerary,
		&trip.PackageItinerary,
	}
	for i, target := range targets {
		if len(collections[i]) == 0 {
			continue
		}
		if err := json.Unmarshal(collections[i], target); err != nil {
			return trip, fmt.Errorf("decode trip collection: %w", err)
		}
	}
	trip.Status = domain.TripStatus(status)
	return trip, nil
}
