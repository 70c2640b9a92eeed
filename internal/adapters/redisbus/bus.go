// Package redisbus implements ports.EventBus on Redis Streams consumer groups.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fvgTrader/internal/ports"
)

// streamClient is the subset of the go-redis client the bus uses.
type streamClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

// Config holds the connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	MaxLen   int64 // approximate stream cap, 0 for unbounded
}

// Bus is a Redis Streams event bus.
type Bus struct {
	client streamClient
	maxLen int64
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis at %s: %v", ports.ErrConnectionFailed, cfg.Addr, err)
	}
	return newBus(client, cfg.MaxLen), nil
}

func newBus(client streamClient, maxLen int64) *Bus {
	return &Bus{client: client, maxLen: maxLen}
}

// Publish appends fields with XADD, trimming the stream approximately to MaxLen.
func (b *Bus) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", wrap("xadd", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the group from the start of the stream, creating the
// stream if needed. An existing group is left untouched.
func (b *Bus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return wrap("xgroup create", stream, err)
	}
	return nil
}

// Read fetches new messages with XREADGROUP. A block of zero or less does
// not wait.
func (b *Bus) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]ports.Delivery, error) {
	if block <= 0 {
		block = -1 // go-redis omits BLOCK for negative values
	}
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrap("xreadgroup", stream, err)
	}

	var out []ports.Delivery
	for _, s := range res {
		out = append(out, deliveries(s.Stream, s.Messages, 1)...)
	}
	return out, nil
}

// ReadPending re-reads the consumer's own pending entries with XREADGROUP
// from id 0. It never blocks.
func (b *Bus) ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]ports.Delivery, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, "0"},
		Count:    count,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("xreadgroup pending", stream, err)
	}

	var out []ports.Delivery
	for _, s := range res {
		// The pending history does not carry delivery counts.
		out = append(out, deliveries(s.Stream, s.Messages, 0)...)
	}
	return out, nil
}

// Reclaim transfers idle pending messages to consumer with XAUTOCLAIM.
func (b *Bus) Reclaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]ports.Delivery, error) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("xautoclaim", stream, err)
	}
	// XAUTOCLAIM does not report delivery counts.
	return deliveries(stream, msgs, 0), nil
}

// Ack acknowledges messages with XACK.
func (b *Bus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return wrap("xack", stream, err)
	}
	return nil
}

// Close closes the client.
func (b *Bus) Close() error {
	return b.client.Close()
}

func deliveries(stream string, msgs []redis.XMessage, count int64) []ports.Delivery {
	out := make([]ports.Delivery, 0, len(msgs))
	for _, m := range msgs {
		// Entries deleted by trimming come back without values.
		if m.Values == nil {
			continue
		}
		out = append(out, ports.Delivery{ID: m.ID, Stream: stream, Fields: m.Values, Deliveries: count})
	}
	return out
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func wrap(op, stream string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ports.ErrTransport, op, stream, err)
}
