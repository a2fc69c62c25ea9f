package bridge

import (
	"context"
	"time"

	"github.com/imaustink/homebridge-mqtt-base/pkg/coalesce"
	"github.com/imaustink/homebridge-mqtt-base/pkg/gateway"
	"github.com/imaustink/homebridge-mqtt-base/pkg/log"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the event logger for the bridge and its coalescer.
func WithLogger(logger log.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithQuietPeriod sets the coalescing delay between the last SetState call
// and the flush to the broker.
func WithQuietPeriod(d time.Duration) Option {
	return func(b *Bridge) {
		b.quiet = d
	}
}

// Bridge keeps a local state snapshot synchronized with a remote peer over
// MQTT.
type Bridge struct {
	coalescer *coalesce.Coalescer
	gateway   *gateway.Gateway
	logger    log.Logger
	quiet     time.Duration
}

// New creates a Bridge over the given gateway. The gateway is wired in as
// the coalescer's publisher.
func New(gw *gateway.Gateway, opts ...Option) *Bridge {
	b := &Bridge{
		gateway: gw,
		logger:  log.NoopLogger{},
		quiet:   coalesce.DefaultQuietPeriod,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.coalescer = coalesce.New(gw,
		coalesce.WithQuietPeriod(b.quiet),
		coalesce.WithLogger(b.logger),
	)
	return b
}

// Start connects the gateway to the broker.
func (b *Bridge) Start(ctx context.Context) error {
	return b.gateway.Connect(ctx)
}

// Stop cancels any pending flush timer and disconnects from the broker.
// SetState callbacks still pending stay unresolved.
func (b *Bridge) Stop() {
	b.coalescer.Stop()
	b.gateway.Close()
}

// SetState merges partial into the local snapshot and registers onComplete
// for the outcome of the flush that carries it. Mutations within one quiet
// period collapse into a single publish; every contributing caller receives
// the identical outcome, in registration order.
func (b *Bridge) SetState(partial map[string]any, onComplete coalesce.CompleteFunc) {
	b.coalescer.Mutate(partial, onComplete)
}

// OnRemoteState sets the host reconciliation hook invoked with the parsed
// state mapping of every message on the subscribed topic.
func (b *Bridge) OnRemoteState(hook gateway.ReconcileFunc) {
	b.gateway.OnRemoteState(hook)
}

// Identify confirms the bridge is alive by invoking done immediately.
func (b *Bridge) Identify(done func()) {
	b.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  b.gateway.ClientID(),
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: b.gateway.State().String(),
			NewState: b.gateway.State().String(),
			Reason:   "identify",
		},
	})
	if done != nil {
		done()
	}
}

// Snapshot returns a copy of the current local state.
func (b *Bridge) Snapshot() map[string]any {
	return b.coalescer.Snapshot()
}

// Reconcile replaces the local snapshot with externally provided state.
func (b *Bridge) Reconcile(state map[string]any) {
	b.coalescer.Reconcile(state)
}

// Pending returns the number of SetState calls awaiting a flush outcome.
func (b *Bridge) Pending() int {
	return b.coalescer.Pending()
}

// ConnectionState returns the gateway's connection state.
func (b *Bridge) ConnectionState() gateway.State {
	return b.gateway.State()
}
