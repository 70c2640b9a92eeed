package ports

import (
	"context"
	"time"
)

// Delivery is one message handed to a consumer. It stays pending in its
// consumer group until acknowledged.
type Delivery struct {
	ID         string
	Stream     string
	Fields     map[string]interface{}
	Deliveries int64 // times delivered, when the transport reports it
}

// EventBus is an append-only stream transport with consumer groups.
// Delivery is at-least-once: a message read but not acknowledged is handed
// out again through Reclaim.
type EventBus interface {
	// Publish appends a flat record to the stream and returns its id.
	Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error)
	// EnsureGroup creates the consumer group (and stream) if missing.
	EnsureGroup(ctx context.Context, stream, group string) error
	// Read returns up to count new messages for the consumer, blocking up to block.
	Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Delivery, error)
	// ReadPending returns messages already delivered to this consumer and not
	// yet acknowledged. Messages held by other consumers are left alone.
	ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]Delivery, error)
	// Reclaim transfers messages pending longer than minIdle to the consumer.
	Reclaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Delivery, error)
	// Ack marks messages as processed for the group.
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Close() error
}
