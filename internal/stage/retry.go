package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"fvgTrader/internal/ports"
)

// ErrRetriesExhausted wraps the last error once every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryPolicy retries an operation with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      bool
	Metrics     ports.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns 3 attempts with 2s..10s exponential backoff.
func DefaultRetryPolicy(metrics ports.Metrics) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Min:         2 * time.Second,
		Max:         10 * time.Second,
		Factor:      2,
		Jitter:      true,
		Metrics:     metrics,
	}
}

// Do runs fn until it succeeds, returns a permanent error, ctx ends or the
// attempts run out. Each attempt is timed under op.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	metrics := p.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: p.Factor, Jitter: p.Jitter}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		err := fn(ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveDuration("operation_duration_seconds", time.Since(start), map[string]string{"op": op, "outcome": outcome})
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		metrics.IncCounter("operation_retries_total", map[string]string{"op": op})
		if err := sleep(ctx, b.Duration()); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrContextCanceled, lastErr)
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempts, lastErr)
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
