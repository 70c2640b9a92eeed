// Package membus is an in-process ports.EventBus with consumer-group
// semantics. It backs single-process runs and tests.
package membus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fvgTrader/internal/ports"
)

type entry struct {
	id     string
	fields map[string]interface{}
}

type pendingEntry struct {
	consumer    string
	deliveredAt time.Time
	deliveries  int64
}

type group struct {
	next    int // index of the first entry not yet delivered to the group
	pending map[string]*pendingEntry
}

type stream struct {
	entries []entry
	groups  map[string]*group
}

// Bus keeps streams in memory. Entries are never trimmed.
type Bus struct {
	mu      sync.Mutex
	streams map[string]*stream
	seq     int64
	notify  chan struct{}
	closed  bool
	now     func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		streams: make(map[string]*stream),
		notify:  make(chan struct{}),
		now:     time.Now,
	}
}

func (b *Bus) stream(name string) *stream {
	s, ok := b.streams[name]
	if !ok {
		s = &stream{groups: make(map[string]*group)}
		b.streams[name] = s
	}
	return s
}

// Publish appends a copy of fields to the stream.
func (b *Bus) Publish(ctx context.Context, name string, fields map[string]interface{}) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("%w: bus closed", ports.ErrTransport)
	}

	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	s := b.stream(name)
	s.entries = append(s.entries, entry{id: id, fields: copyFields(fields)})

	// Wake blocked readers.
	close(b.notify)
	b.notify = make(chan struct{})
	return id, nil
}

// EnsureGroup creates the group at the start of the stream so that entries
// published before the group existed are still delivered.
func (b *Bus) EnsureGroup(ctx context.Context, name, groupName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: bus closed", ports.ErrTransport)
	}
	s := b.stream(name)
	if _, ok := s.groups[groupName]; !ok {
		s.groups[groupName] = &group{pending: make(map[string]*pendingEntry)}
	}
	return nil
}

// Read hands out up to count undelivered entries, waiting up to block for
// new ones when none are available.
func (b *Bus) Read(ctx context.Context, name, groupName, consumer string, count int64, block time.Duration) ([]ports.Delivery, error) {
	deadline := time.NewTimer(block)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: bus closed", ports.ErrTransport)
		}
		g, err := b.group(name, groupName)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		s := b.streams[name]
		var out []ports.Delivery
		for g.next < len(s.entries) && (count <= 0 || int64(len(out)) < count) {
			e := s.entries[g.next]
			g.next++
			g.pending[e.id] = &pendingEntry{consumer: consumer, deliveredAt: b.now(), deliveries: 1}
			out = append(out, delivery(name, e, 1))
		}
		wait := b.notify
		b.mu.Unlock()

		if len(out) > 0 || block <= 0 {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-wait:
		}
	}
}

// ReadPending re-delivers entries pending for consumer, oldest first.
func (b *Bus) ReadPending(ctx context.Context, name, groupName, consumer string, count int64) ([]ports.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: bus closed", ports.ErrTransport)
	}
	g, err := b.group(name, groupName)
	if err != nil {
		return nil, err
	}

	var out []ports.Delivery
	for _, e := range b.streams[name].entries {
		if count > 0 && int64(len(out)) >= count {
			break
		}
		p, ok := g.pending[e.id]
		if !ok || p.consumer != consumer {
			continue
		}
		p.deliveredAt = b.now()
		p.deliveries++
		out = append(out, delivery(name, e, p.deliveries))
	}
	return out, nil
}

// Reclaim transfers pending entries idle for at least minIdle to consumer.
func (b *Bus) Reclaim(ctx context.Context, name, groupName, consumer string, minIdle time.Duration, count int64) ([]ports.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: bus closed", ports.ErrTransport)
	}
	g, err := b.group(name, groupName)
	if err != nil {
		return nil, err
	}

	s := b.streams[name]
	now := b.now()
	var out []ports.Delivery
	for _, e := range s.entries {
		if count > 0 && int64(len(out)) >= count {
			break
		}
		p, ok := g.pending[e.id]
		if !ok || now.Sub(p.deliveredAt) < minIdle {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		out = append(out, delivery(name, e, p.deliveries))
	}
	return out, nil
}

// Ack removes entries from the group's pending list.
func (b *Bus) Ack(ctx context.Context, name, groupName string, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, err := b.group(name, groupName)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(g.pending, id)
	}
	return nil
}

// Pending returns the ids still awaiting acknowledgement, oldest first.
func (b *Bus) Pending(name, groupName string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[name]
	if !ok {
		return nil
	}
	g, ok := s.groups[groupName]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(g.pending))
	for _, e := range s.entries {
		if _, ok := g.pending[e.id]; ok {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// Len returns the number of entries ever published to the stream.
func (b *Bus) Len(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.streams[name]; ok {
		return len(s.entries)
	}
	return 0
}

// Entries returns a copy of every record published to the stream.
func (b *Bus) Entries(name string) []map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[name]
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyFields(e.fields))
	}
	return out
}

// Streams lists stream names in sorted order.
func (b *Bus) Streams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.streams))
	for n := range b.streams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close wakes blocked readers and rejects further calls.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.notify)
		b.notify = make(chan struct{})
	}
	return nil
}

func (b *Bus) group(name, groupName string) (*group, error) {
	s, ok := b.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: no stream %q", ports.ErrTransport, name)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return nil, fmt.Errorf("%w: no group %q on stream %q", ports.ErrTransport, groupName, name)
	}
	return g, nil
}

func delivery(name string, e entry, deliveries int64) ports.Delivery {
	return ports.Delivery{ID: e.id, Stream: name, Fields: copyFields(e.fields), Deliveries: deliveries}
}

func copyFields(f map[string]interface{}) map[string]interface{} {
	cp := make(map[string]interface{}, len(f))
	for k, v := range f {
		cp[k] = v
	}
	return cp
}
