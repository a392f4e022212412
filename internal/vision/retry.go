package vision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockmeta/internal/models"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 2 * time.Second
)

// Retrier wraps a Caller with exponential backoff. It is itself a Caller.
type Retrier struct {
	caller      Caller
	maxAttempts int
	baseDelay   time.Duration
	log         zerolog.Logger

	// OnRetry receives a retrying event before every backoff sleep and one
	// terminal success or failed event when retries were involved.
	OnRetry func(models.RetryEvent)
	// Stopped is polled before every attempt after the first.
	Stopped func() bool

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(caller Caller, maxAttempts int, baseDelay time.Duration, logger zerolog.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{
		caller:      caller,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		log:         logger,
		sleep:       sleepCtx,
	}
}

// Delay is the backoff before the retry that follows the given zero-based attempt.
func (r *Retrier) Delay(attempt int, err error) time.Duration {
	d := r.baseDelay << uint(attempt)
	if IsOverload(err) {
		d *= 2
	}
	return d
}

func (r *Retrier) Describe(ctx context.Context, req Request) (models.RawModelOutput, error) {
	event := models.RetryEvent{
		RequestID:   uuid.NewString(),
		Filename:    req.Generation.Filename,
		MaxAttempts: r.maxAttempts,
	}

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 && r.stopped() {
			return models.RawModelOutput{}, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return models.RawModelOutput{}, err
		}

		out, err := r.caller.Describe(ctx, req)
		if err == nil {
			if attempt > 0 {
				event.Attempt = attempt + 1
				event.Status = models.RetryStatusSuccess
				event.Delay = 0
				r.emit(event)
			}
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			if attempt > 0 {
				r.fail(event, attempt+1, err)
			}
			return models.RawModelOutput{}, err
		}
		if attempt == r.maxAttempts-1 {
			break
		}

		delay := r.Delay(attempt, err)
		event.Attempt = attempt + 1
		event.ErrorType = errorType(err)
		event.Delay = delay
		event.Status = models.RetryStatusRetrying
		r.emit(event)

		r.log.Warn().
			Str("filename", req.Generation.Filename).
			Int("attempt", attempt+1).
			Int("max_attempts", r.maxAttempts).
			Dur("sleep", delay).
			Err(err).
			Msg("vision request retrying")

		if err := r.sleep(ctx, delay); err != nil {
			return models.RawModelOutput{}, err
		}
	}

	r.fail(event, r.maxAttempts, lastErr)
	return models.RawModelOutput{}, lastErr
}

func (r *Retrier) fail(event models.RetryEvent, attempt int, err error) {
	event.Attempt = attempt
	event.ErrorType = errorType(err)
	event.Delay = 0
	event.Status = models.RetryStatusFailed
	r.emit(event)
}

func (r *Retrier) emit(event models.RetryEvent) {
	if r.OnRetry != nil {
		r.OnRetry(event)
	}
}

func (r *Retrier) stopped() bool {
	return r.Stopped != nil && r.Stopped()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
