package queue

import (
	"context"
	"errors"

	"github.com/travelsage/scraper-back/internal/domain"
)

// ErrSerialization marks an enqueue-time payload problem. It is never retried;
// the caller gets it back immediately.
var ErrSerialization = errors.New("queue message serialization failed")

// Producer sends scrape jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer delivers scrape jobs to a handler with at-least-once semantics.
// A nil handler error acks the message. A non-nil error schedules redelivery
// after an exponential backoff until the attempt budget is spent, at which
// point the message moves to the dead-letter sink.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}

// Stats describes queue depth for status endpoints.
type Stats struct {
	Queued   int64 `json:"queued"`
	InFlight int64 `json:"in_flight"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

// StatsReader exposes live queue depth.
type StatsReader interface {
	Stats(ctx context.Context) (Stats, error)
}
