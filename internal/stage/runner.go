package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
)

// Handler processes one decoded message. Returning nil acknowledges it;
// returning a *message.ValidationError drops it; any other error leaves it
// pending for redelivery.
type Handler func(ctx context.Context, msg message.Message) error

// RunnerConfig controls how a Runner reads its streams.
type RunnerConfig struct {
	Group        string
	Consumer     string
	BatchSize    int64         // messages per read
	Block        time.Duration // how long a read waits for new messages
	MinIdle      time.Duration // pending age after which a message is reclaimed
	ReclaimEvery time.Duration // how often idle pending messages are reclaimed
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.MinIdle <= 0 {
		c.MinIdle = time.Minute
	}
	if c.ReclaimEvery <= 0 {
		c.ReclaimEvery = 30 * time.Second
	}
	return c
}

// Runner consumes one or more streams on behalf of a stage.
type Runner struct {
	bus       ports.EventBus
	scheduler *Scheduler
	limiter   *Limiter
	logger    ports.Logger
	metrics   ports.Metrics
	cfg       RunnerConfig

	handlers map[string]Handler
	streams  []string
}

// NewRunner creates a runner. The limiter must belong to scheduler; this is
// checked when Run starts.
func NewRunner(bus ports.EventBus, scheduler *Scheduler, limiter *Limiter, logger ports.Logger, metrics ports.Metrics, cfg RunnerConfig) *Runner {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Runner{
		bus:       bus,
		scheduler: scheduler,
		limiter:   limiter,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg.withDefaults(),
		handlers:  make(map[string]Handler),
	}
}

// Handle registers the handler for a stream. Call before Run.
func (r *Runner) Handle(stream string, h Handler) {
	if _, ok := r.handlers[stream]; !ok {
		r.streams = append(r.streams, stream)
	}
	r.handlers[stream] = h
}

// Streams returns the registered streams in registration order.
func (r *Runner) Streams() []string {
	return append([]string(nil), r.streams...)
}

// Run consumes every registered stream until ctx ends or a stream fails
// irrecoverably. Messages are processed concurrently up to the limiter size.
func (r *Runner) Run(ctx context.Context) error {
	if r.limiter == nil {
		return &SchedulerMismatchError{Owner: "<nil>", Caller: r.scheduler.Name()}
	}
	if err := r.limiter.Check(r.scheduler); err != nil {
		return err
	}
	if r.cfg.Group == "" || r.cfg.Consumer == "" {
		return fmt.Errorf("%w: runner needs a group and a consumer name", ports.ErrConfigurationError)
	}
	if len(r.streams) == 0 {
		return fmt.Errorf("%w: runner has no handlers", ports.ErrConfigurationError)
	}

	for _, stream := range r.streams {
		if err := r.bus.EnsureGroup(ctx, stream, r.cfg.Group); err != nil {
			return fmt.Errorf("ensure group %s on %s: %w", r.cfg.Group, stream, err)
		}
	}

	r.logger.Info(ctx, "Runner started", map[string]interface{}{
		"group":    r.cfg.Group,
		"consumer": r.cfg.Consumer,
		"streams":  r.streams,
		"limit":    r.limiter.Size(),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, stream := range r.streams {
		stream := stream
		g.Go(func() error {
			return r.consume(gctx, stream)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Runner) consume(ctx context.Context, stream string) error {
	// Entries this consumer read in a previous run but never acked come
	// first. Other consumers' entries are only taken once idle, by Reclaim.
	if err := r.drainOwnPending(ctx, stream); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn(ctx, "Reading own pending entries failed", map[string]interface{}{"stream": stream, "error": err.Error()})
	}

	pause := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}
	lastReclaim := time.Now()
	for ctx.Err() == nil {
		if time.Since(lastReclaim) >= r.cfg.ReclaimEvery {
			lastReclaim = time.Now()
			idle, err := r.bus.Reclaim(ctx, stream, r.cfg.Group, r.cfg.Consumer, r.cfg.MinIdle, r.cfg.BatchSize)
			if err != nil && ctx.Err() == nil {
				r.logger.Warn(ctx, "Reclaim failed", map[string]interface{}{"stream": stream, "error": err.Error()})
			}
			r.dispatch(ctx, stream, idle)
		}

		batch, err := r.bus.Read(ctx, stream, r.cfg.Group, r.cfg.Consumer, r.cfg.BatchSize, r.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := pause.Duration()
			r.logger.Error(ctx, err, "Stream read failed", map[string]interface{}{"stream": stream, "retry_in": wait.String()})
			if sleepCtx(ctx, wait) != nil {
				return nil
			}
			continue
		}
		pause.Reset()
		r.dispatch(ctx, stream, batch)
	}
	return nil
}

// drainOwnPending processes the consumer's own pending list once. Entries
// that fail again stay pending and are left to Reclaim.
func (r *Runner) drainOwnPending(ctx context.Context, stream string) error {
	pending, err := r.bus.ReadPending(ctx, stream, r.cfg.Group, r.cfg.Consumer, 0)
	if err != nil {
		return err
	}
	for start := 0; start < len(pending); start += int(r.cfg.BatchSize) {
		end := start + int(r.cfg.BatchSize)
		if end > len(pending) {
			end = len(pending)
		}
		r.dispatch(ctx, stream, pending[start:end])
	}
	return nil
}

// dispatch processes a batch under the limiter and waits for it to finish.
func (r *Runner) dispatch(ctx context.Context, stream string, batch []ports.Delivery) {
	var wg sync.WaitGroup
	for _, d := range batch {
		if err := r.limiter.Acquire(ctx, r.scheduler); err != nil {
			break
		}
		wg.Add(1)
		go func(d ports.Delivery) {
			defer wg.Done()
			defer r.limiter.Release()
			r.process(ctx, stream, d)
		}(d)
	}
	wg.Wait()
}

// process handles one delivery. It never returns an error: the outcome is
// either an ack or leaving the message pending.
func (r *Runner) process(ctx context.Context, stream string, d ports.Delivery) {
	labels := map[string]string{"stream": stream}
	fields := map[string]interface{}{"stream": stream, "message_id": d.ID}

	start := time.Now()
	err := r.handle(ctx, stream, d)
	r.metrics.ObserveDuration("message_handle_duration_seconds", time.Since(start), labels)

	var vErr *message.ValidationError
	switch {
	case err == nil:
		r.metrics.IncCounter("messages_processed_total", labels)
	case errors.As(err, &vErr):
		r.metrics.IncCounter("messages_dropped_total", labels)
		r.logger.Warn(ctx, "Dropping invalid message", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
	default:
		r.metrics.IncCounter("messages_failed_total", labels)
		r.logger.Error(ctx, err, "Message handling failed, leaving pending", fields)
		return
	}

	if err := r.bus.Ack(ctx, stream, r.cfg.Group, d.ID); err != nil {
		r.logger.Error(ctx, err, "Ack failed", fields)
	}
}

func (r *Runner) handle(ctx context.Context, stream string, d ports.Delivery) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()

	msg, err := message.Decode(d.Fields)
	if err != nil {
		return err
	}
	if msg.Stream() != stream {
		return &message.ValidationError{Type: msg.Type(), Field: message.TypeKey, Reason: "unexpected on stream " + stream}
	}
	return r.handlers[stream](ctx, msg)
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
