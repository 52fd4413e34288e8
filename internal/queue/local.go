package queue

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/travelsage/scraper-back/internal/domain"
)

// LocalQueue is a channel-backed fallback used when Redis is not configured.
// It mirrors the streams queue's retry/backoff/DLQ semantics in-process.
type LocalQueue struct {
	ch          chan domain.QueueMessage
	maxAttempts int
	backoffBase time.Duration
	logger      *log.Logger

	inFlight atomic.Int64

	dlqMu sync.Mutex
	dlq   []domain.QueueMessage
}

func NewLocalQueue(bufferSize, maxAttempts int, backoffBase time.Duration, logger *log.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if backoffBase <= 0 {
		backoffBase = 5 * time.Second
	}
	return &LocalQueue{
		ch:          make(chan domain.QueueMessage, bufferSize),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
		dlq:         make([]domain.QueueMessage, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- message:
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			q.inFlight.Add(1)
			err := handler(ctx, message)
			q.inFlight.Add(-1)
			if err == nil {
				continue
			}

			message.Attempt++
			if message.Attempt >= q.maxAttempts {
				q.dlqMu.Lock()
				q.dlq = append(q.dlq, message)
				q.dlqMu.Unlock()
				if q.logger != nil {
					q.logger.Printf("local queue moved message to DLQ job_id=%s err=%v", message.JobID, err)
				}
				continue
			}

			delay := Backoff(q.backoffBase, message.Attempt)
			go func(retryMessage domain.QueueMessage) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					q.ch <- retryMessage
				}
			}(message)
		}
	}
}

func (q *LocalQueue) Stats(_ context.Context) (Stats, error) {
	q.dlqMu.Lock()
	dead := int64(len(q.dlq))
	q.dlqMu.Unlock()

	return Stats{
		Queued:   int64(len(q.ch)),
		InFlight: q.inFlight.Load(),
		Dead:     dead,
	}, nil
}

// DeadLetters returns a copy of the messages routed to the DLQ.
func (q *LocalQueue) DeadLetters() []domain.QueueMessage {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]domain.QueueMessage(nil), q.dlq...)
}
