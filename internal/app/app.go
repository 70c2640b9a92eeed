// Package app holds the pipeline stages. Each stage consumes one or more
// streams through a stage.Runner and publishes its results for the next one;
// the screener, collector, analysis sweep, tracker and performance stages also
// run periodic loops.
package app

import (
	"context"
	"fmt"
	"time"

	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// Stage is implemented by every stage service.
type Stage interface {
	// Register attaches the stage's handlers to the runner.
	Register(r *stage.Runner)
	// Run drives the stage's periodic work until ctx is done. Stages without
	// periodic work block until ctx is done.
	Run(ctx context.Context) error
}

func unexpected(msg message.Message, want string) error {
	got := "<nil>"
	if msg != nil {
		got = msg.Type()
	}
	return &message.ValidationError{Type: got, Field: message.TypeKey, Reason: fmt.Sprintf("handler expects %s", want)}
}

// every runs fn immediately and then on each tick until ctx is done.
// Errors are logged; the loop keeps going.
func every(ctx context.Context, interval time.Duration, logger ports.Logger, op string, fn func(ctx context.Context) error) error {
	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, err, op+": cycle failed")
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, op+": stopping")
			return nil
		case <-ticker.C:
			run()
		}
	}
}

func utcNow() time.Time { return time.Now().UTC() }
