package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/travelsage/scraper-back/internal/domain"
)

func testMessage(jobID string) domain.QueueMessage {
	return domain.QueueMessage{
		JobID:       jobID,
		Kind:        domain.JobKindLocation,
		URL:         "https://packages.example.com/holidays",
		Payload:     []byte(`{"kind":"location"}`),
		RequestedAt: time.Now().UTC(),
	}
}

func TestLocalQueueDeliversAndAcks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewLocalQueue(16, 2, 10*time.Millisecond, log.New(io.Discard, "", 0))
	if err := q.Enqueue(ctx, testMessage("job-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	delivered := make(chan domain.QueueMessage, 1)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			delivered <- message
			cancel()
			return nil
		})
	}()

	select {
	case message := <-delivered:
		if message.JobID != "job-1" {
			t.Fatalf("expected job-1, got %s", message.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivery")
	}

	if letters := q.DeadLetters(); len(letters) != 0 {
		t.Fatalf("expected empty DLQ after success, got %d", len(letters))
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewLocalQueue(16, 2, time.Millisecond, log.New(io.Discard, "", 0))
	if err := q.Enqueue(ctx, testMessage("job-2")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var attempts atomic.Int64
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			if attempts.Add(1) == 2 {
				close(done)
			}
			return errors.New("scrape failed")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout: expected 2 attempts, saw %d", attempts.Load())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if letters := q.DeadLetters(); len(letters) == 1 {
			if letters[0].JobID != "job-2" {
				t.Fatalf("unexpected DLQ message: %+v", letters[0])
			}
			if letters[0].Attempt != 2 {
				t.Fatalf("expected attempt 2 on DLQ message, got %d", letters[0].Attempt)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("message never reached the DLQ")
}

func TestLocalQueueStats(t *testing.T) {
	ctx := context.Background()
	q := NewLocalQueue(16, 2, time.Millisecond, nil)

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, testMessage("job-stats")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Queued != 3 {
		t.Fatalf("expected 3 queued, got %d", stats.Queued)
	}
	if stats.InFlight != 0 || stats.Dead != 0 {
		t.Fatalf("expected idle stats, got %+v", stats)
	}
}
