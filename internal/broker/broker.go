// Package broker implements the bounded drop-oldest event queue that fans
// simulated and real market data out to the transport layer.
//
// Delivery is best-effort, at-most-once, and recency-biased: when the buffer
// is full the single oldest undelivered event is evicted to make room. The
// engine runs two independent instances — one for the market stream, one for
// the alert stream — with no cross-channel ordering guarantee.
package broker

import (
	"context"
	"sync"

	"github.com/finsense/feed-engine/internal/metrics"
	"github.com/finsense/feed-engine/internal/model"
)

// DefaultCapacity bounds each channel's buffer.
const DefaultCapacity = 1000

// Broker is a bounded, non-blocking publish / blocking drain event queue.
// Publish never blocks and never fails; Drain waits for the next event in
// publish order. Multiple concurrent publishers and drainers are safe, but
// FIFO ordering is only meaningful for a single drainer.
type Broker struct {
	mu        sync.Mutex
	ch        chan model.Event
	name      string
	published uint64
	dropped   uint64
}

// New allocates a broker with the given capacity. The name labels the
// broker's metrics ("market" or "alerts" in the reference deployment).
func New(name string, capacity int) *Broker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broker{
		ch:   make(chan model.Event, capacity),
		name: name,
	}
}

// Publish enqueues an event without blocking. If the buffer is at capacity
// the oldest buffered event is evicted first; the drop is silent and only
// surfaces through the dropped counter.
func (b *Broker) Publish(e model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		select {
		case b.ch <- e:
			b.published++
			metrics.EventsPublished.WithLabelValues(b.name).Inc()
			return
		default:
		}
		// Full: evict the oldest, then retry. A concurrent drainer may
		// empty the slot first, in which case the eviction is a no-op.
		select {
		case <-b.ch:
			b.dropped++
			metrics.EventsDropped.WithLabelValues(b.name).Inc()
		default:
		}
	}
}

// Drain blocks until the next event is available or ctx is cancelled.
func (b *Broker) Drain(ctx context.Context) (model.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case e := <-b.ch:
		return e, nil
	}
}

// TryDrain returns the next event without blocking.
func (b *Broker) TryDrain() (model.Event, bool) {
	select {
	case e := <-b.ch:
		return e, true
	default:
		return nil, false
	}
}

// Len reports the number of buffered, undelivered events.
func (b *Broker) Len() int { return len(b.ch) }

// Name returns the broker's metrics label.
func (b *Broker) Name() string { return b.name }

// Stats returns cumulative published and dropped counts.
func (b *Broker) Stats() (published, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published, b.dropped
}
