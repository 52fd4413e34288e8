package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/travelsage/scraper-back/internal/domain"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	RetrySet    string
	Group       string
	MaxAttempts int
	BackoffBase time.Duration
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams. Failed
// deliveries are parked in a sorted set keyed by their ready time and promoted
// back onto the stream once the backoff elapses, so redelivery delay survives
// process restarts.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	retrySet    string
	group       string
	maxAttempts int
	backoffBase time.Duration
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "scrape_jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "scrape_jobs_dlq"
	}
	if cfg.RetrySet == "" {
		cfg.RetrySet = "scrape_jobs_retry"
	}
	if cfg.Group == "" {
		cfg.Group = "scrape_workers"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		retrySet:    cfg.RetrySet,
		group:       cfg.Group,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	values, err := streamValues(message)
	if err != nil {
		return err
	}
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: values,
	}).Result(); err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

// Consume pulls messages for this consumer until ctx is cancelled. Each call
// registers its own consumer name in the group, so concurrent workers split
// the stream between them.
func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	consumer := "worker-" + uuid.NewString()[:8]

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := q.promoteDueRetries(ctx); err != nil && ctx.Err() == nil {
			return err
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				message, parseErr := parseStreamMessage(item)
				if parseErr != nil {
					_ = q.sendToDLQ(ctx, domain.QueueMessage{}, item.ID, parseErr.Error())
					_ = q.ackAndDelete(ctx, item.ID)
					continue
				}

				handleErr := handler(ctx, message)
				if handleErr == nil {
					_ = q.ackAndDelete(ctx, item.ID)
					continue
				}

				message.Attempt++
				if message.Attempt >= q.maxAttempts {
					_ = q.sendToDLQ(ctx, message, item.ID, handleErr.Error())
					_ = q.ackAndDelete(ctx, item.ID)
					continue
				}

				if parkErr := q.parkForRetry(ctx, message); parkErr != nil {
					_ = q.sendToDLQ(ctx, message, item.ID, fmt.Sprintf("park for retry failed: %v", parkErr))
				}
				_ = q.ackAndDelete(ctx, item.ID)
			}
		}
	}
}

func (q *StreamsQueue) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	queued, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return stats, fmt.Errorf("xlen: %w", err)
	}
	stats.Queued = queued

	retrying, err := q.client.ZCard(ctx, q.retrySet).Result()
	if err != nil {
		return stats, fmt.Errorf("zcard retry set: %w", err)
	}
	stats.Retrying = retrying

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err == nil && pending != nil {
		stats.InFlight = pending.Count
	}

	dead, err := q.client.XLen(ctx, q.dlqStream).Result()
	if err == nil {
		stats.Dead = dead
	}

	return stats, nil
}

// parkForRetry schedules a failed message for redelivery after its backoff.
func (q *StreamsQueue) parkForRetry(ctx context.Context, message domain.QueueMessage) error {
	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	readyAt := time.Now().Add(Backoff(q.backoffBase, message.Attempt))
	if err := q.client.ZAdd(ctx, q.retrySet, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: string(encoded),
	}).Err(); err != nil {
		return fmt.Errorf("zadd retry set: %w", err)
	}
	return nil
}

// promoteDueRetries moves messages whose backoff has elapsed back onto the
// main stream.
func (q *StreamsQueue) promoteDueRetries(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.retrySet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 64,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("zrangebyscore retry set: %w", err)
	}

	for _, member := range due {
		var message domain.QueueMessage
		if err := json.Unmarshal([]byte(member), &message); err != nil {
			_ = q.client.ZRem(ctx, q.retrySet, member).Err()
			continue
		}
		if err := q.Enqueue(ctx, message); err != nil {
			return err
		}
		if err := q.client.ZRem(ctx, q.retrySet, member).Err(); err != nil {
			return fmt.Errorf("zrem retry set: %w", err)
		}
	}
	return nil
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) sendToDLQ(ctx context.Context, message domain.QueueMessage, streamID, errorMessage string) error {
	values := map[string]any{
		"stream_id": streamID,
		"job_id":    message.JobID,
		"kind":      string(message.Kind),
		"url":       message.URL,
		"payload":   string(message.Payload),
		"attempt":   message.Attempt,
		"error":     errorMessage,
		"moved_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Result(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

func streamValues(message domain.QueueMessage) (map[string]any, error) {
	if message.JobID == "" {
		return nil, fmt.Errorf("%w: missing job id", ErrSerialization)
	}
	if !json.Valid(message.Payload) && len(message.Payload) > 0 {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrSerialization)
	}
	return map[string]any{
		"job_id":       message.JobID,
		"kind":         string(message.Kind),
		"url":          message.URL,
		"payload":      string(message.Payload),
		"attempt":      message.Attempt,
		"requested_at": message.RequestedAt.Format(time.RFC3339Nano),
	}, nil
}

func parseStreamMessage(item redis.XMessage) (domain.QueueMessage, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	jobID, err := getString("job_id")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	kindValue, err := getString("kind")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	urlValue, err := getString("url")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	payloadString, err := getString("payload")
	if err != nil {
		return domain.QueueMessage{}, err
	}

	attemptString, err := getString("attempt")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	attempt, err := strconv.Atoi(attemptString)
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid attempt: %w", err)
	}

	requestedAtString, err := getString("requested_at")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, requestedAtString)
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid requested_at: %w", err)
	}

	return domain.QueueMessage{
		JobID:       jobID,
		Kind:        domain.JobKind(kindValue),
		URL:         urlValue,
		Payload:     json.RawMessage(payloadString),
		Attempt:     attempt,
		RequestedAt: requestedAt,
	}, nil
}
