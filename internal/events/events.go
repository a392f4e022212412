package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stockmeta/internal/models"
)

const DefaultPrefix = "stockmeta:retry"

// Sink receives retry telemetry. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, event models.RetryEvent) error
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans retry events out over Redis pub/sub, one channel per filename.
type RedisPublisher struct {
	client publisher
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return newRedisPublisher(client, prefix)
}

func newRedisPublisher(client publisher, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Channel(filename string) string {
	return p.prefix + ":" + filename
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.RetryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode retry event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(event.Filename), payload).Err(); err != nil {
		return fmt.Errorf("publish retry event: %w", err)
	}
	return nil
}

type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) LogSink {
	return LogSink{logger: logger}
}

func (s LogSink) Publish(_ context.Context, event models.RetryEvent) error {
	var ev *zerolog.Event
	switch event.Status {
	case models.RetryStatusFailed:
		ev = s.logger.Warn()
	case models.RetryStatusSuccess:
		ev = s.logger.Info()
	default:
		ev = s.logger.Debug()
	}
	ev.Str("request_id", event.RequestID).
		Str("filename", event.Filename).
		Int("attempt", event.Attempt).
		Int("max_attempts", event.MaxAttempts).
		Str("error_type", event.ErrorType).
		Dur("delay", event.Delay).
		Str("status", string(event.Status)).
		Msg("vision retry")
	return nil
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, event models.RetryEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Callback adapts a sink to the retrier's OnRetry hook. Publish failures are
// logged and otherwise ignored.
func Callback(ctx context.Context, sink Sink, logger zerolog.Logger) func(models.RetryEvent) {
	if sink == nil {
		return nil
	}
	return func(event models.RetryEvent) {
		if err := sink.Publish(ctx, event); err != nil {
			logger.Warn().Err(err).Str("filename", event.Filename).Msg("retry event not delivered")
		}
	}
}
