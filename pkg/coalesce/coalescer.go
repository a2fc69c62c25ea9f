package coalesce

import (
	"sync"
	"time"

	"github.com/imaustink/homebridge-mqtt-base/pkg/log"
)

// DefaultQuietPeriod is the delay after the most recent mutation before the
// coalesced snapshot is flushed to the publisher.
const DefaultQuietPeriod = 20 * time.Millisecond

// CompleteFunc is a single-shot completion handler for a mutation.
// It receives nil on a successful flush or the publish error otherwise.
type CompleteFunc func(err error)

// Publisher delivers a coalesced snapshot to the remote peer.
// Implemented by gateway.Gateway.
type Publisher interface {
	// Publish sends the full state snapshot. It must return the transport
	// outcome for every call; a send is never silently dropped.
	Publish(state map[string]any) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(state map[string]any) error

// Publish calls f.
func (f PublisherFunc) Publish(state map[string]any) error {
	return f(state)
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithQuietPeriod sets the debounce delay between the last mutation and the
// flush. Values <= 0 fall back to DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.quiet = d
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Coalescer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coalescer merges partial state updates into a single snapshot and batches
// their completion callbacks behind a quiet-period timer.
//
// The snapshot and the pending queue are owned exclusively by the Coalescer;
// all access goes through its methods. Completion callbacks are invoked from
// the flush goroutine, never synchronously from Mutate.
type Coalescer struct {
	mu sync.Mutex

	// Authoritative local state, merged in place.
	snapshot map[string]any

	// Completion handlers for mutations not yet flushed, in arrival order.
	pending []CompleteFunc

	// Single-shot quiet-period timer. Rearmed (replaced), never stacked.
	timer *time.Timer

	// gen invalidates a superseded timer's flush when Stop raced the firing.
	gen uint64

	quiet     time.Duration
	publisher Publisher
	logger    log.Logger
}

// New creates a Coalescer that flushes to the given publisher.
// Every Coalescer owns its own snapshot; instances share nothing.
func New(publisher Publisher, opts ...Option) *Coalescer {
	c := &Coalescer{
		snapshot:  make(map[string]any),
		quiet:     DefaultQuietPeriod,
		publisher: publisher,
		logger:    log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mutate merges partial into the snapshot (key-wise overwrite), enqueues
// onComplete and restarts the quiet-period timer.
//
// onComplete is invoked exactly once, after the flush that drains it, with
// nil on success or the publish error. It is never invoked from within
// Mutate. An empty partial is valid: the caller is simply notified of the
// next flush's outcome.
func (c *Coalescer) Mutate(partial map[string]any, onComplete CompleteFunc) {
	c.mu.Lock()

	for k, v := range partial {
		c.snapshot[k] = v
	}
	c.pending = append(c.pending, onComplete)

	// Restart, never stack: a pending timer is replaced and its firing
	// invalidated by the generation bump.
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.quiet, func() { c.flush(gen) })

	merged := copyState(c.snapshot)
	c.mu.Unlock()

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Category:  log.CategoryMerge,
		State:     merged,
	})
}

// flush captures the snapshot, atomically swaps out the pending queue, asks
// the publisher to send and resolves every captured callback with the shared
// outcome, in FIFO order. Invoked only by the quiet-period timer firing.
func (c *Coalescer) flush(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// Superseded by a later Mutate or by Stop while this fire was
		// waiting on the mutex; the replacement timer owns the batch.
		c.mu.Unlock()
		return
	}
	c.timer = nil
	state := copyState(c.snapshot)
	queue := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(queue) == 0 {
		// The timer is only armed together with a callback, so an empty
		// batch means nothing to do.
		return
	}

	err := c.publisher.Publish(state)

	event := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Category:  log.CategoryFlush,
		State:     state,
	}
	if err != nil {
		event.Category = log.CategoryError
		event.Error = &log.ErrorEvent{Message: err.Error(), Context: "flush publish"}
	}
	c.logger.Log(event)

	// Every caller batched into this flush gets the identical outcome.
	for _, done := range queue {
		if done != nil {
			done(err)
		}
	}
}

// Snapshot returns a copy of the current state snapshot.
func (c *Coalescer) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.snapshot)
}

// Pending returns the number of mutations not yet resolved by a flush.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Reconcile replaces the snapshot with externally provided state. This is
// the only reset path; it does not touch the pending queue or the timer.
func (c *Coalescer) Reconcile(state map[string]any) {
	c.mu.Lock()
	c.snapshot = copyState(state)
	c.mu.Unlock()

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Category:  log.CategoryState,
		State:     copyState(state),
	})
}

// Stop cancels an armed quiet-period timer. Callbacks already pending stay
// unresolved; use this only on shutdown.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// copyState returns a shallow copy of a state mapping.
func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
