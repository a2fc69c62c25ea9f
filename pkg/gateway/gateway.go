package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/imaustink/homebridge-mqtt-base/pkg/coalesce"
	"github.com/imaustink/homebridge-mqtt-base/pkg/log"
	"github.com/imaustink/homebridge-mqtt-base/pkg/wire"
)

const (
	// DefaultBrokerURL is used when no broker is configured.
	DefaultBrokerURL = "tcp://localhost:1883"

	// DefaultQoS requests exactly-once delivery for state snapshots.
	DefaultQoS byte = 2

	// DefaultConnectTimeout bounds the initial broker connection.
	DefaultConnectTimeout = 10 * time.Second

	// disconnectQuiesce is how long Close waits for in-flight work, in ms.
	disconnectQuiesce = 250
)

// ReconcileFunc receives the parsed remote state mapping whenever a message
// arrives on the subscribed topic.
type ReconcileFunc func(state map[string]any)

// Config configures a Gateway.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ClientID identifies this client to the broker.
	// Auto-generated if empty.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// PublishTopic carries local snapshots to the remote peer.
	PublishTopic string

	// SubscribeTopic carries remote state back to this bridge.
	// Empty means publish-only operation.
	SubscribeTopic string

	// QoS is the delivery guarantee for both directions (0-2).
	QoS byte

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the event logger.
func WithLogger(logger log.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClient replaces the MQTT client. Used by tests to inject a fake;
// when set, the gateway's connection handlers are not registered and must
// be driven by the caller.
func WithClient(client mqtt.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// Gateway adapts the bridge to an MQTT broker.
//
// Config is immutable after New. The connection state and the hooks are
// guarded by the mutex; the paho client is internally thread-safe.
type Gateway struct {
	mu sync.RWMutex

	config Config
	client mqtt.Client
	state  State

	// Host reconciliation hook for remote state.
	reconcile ReconcileFunc

	// Observers
	onStateChange func(oldState, newState State)

	logger log.Logger
}

// New creates a Gateway for the given configuration.
func New(config Config, opts ...Option) *Gateway {
	if config.BrokerURL == "" {
		config.BrokerURL = DefaultBrokerURL
	}
	if config.ClientID == "" {
		config.ClientID = "bridge-" + uuid.NewString()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	g := &Gateway{
		config: config,
		state:  StateDisconnected,
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.client == nil {
		clientOpts := mqtt.NewClientOptions().
			AddBroker(config.BrokerURL).
			SetClientID(config.ClientID).
			SetCleanSession(true).
			SetAutoReconnect(true).
			SetConnectTimeout(config.ConnectTimeout).
			SetOnConnectHandler(g.handleConnect).
			SetConnectionLostHandler(g.handleConnectionLost).
			SetReconnectingHandler(g.handleReconnecting)
		if config.Username != "" {
			clientOpts.SetUsername(config.Username)
		}
		if config.Password != "" {
			clientOpts.SetPassword(config.Password)
		}
		g.client = mqtt.NewClient(clientOpts)
	}

	return g
}

// Connect establishes the broker connection. On success the connect handler
// moves the gateway to CONNECTED and subscribes to the remote-state topic.
func (g *Gateway) Connect(ctx context.Context) error {
	g.setState(StateConnecting, "connect requested")

	token := g.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		g.setState(StateErrored, "connect failed")
		g.logError(err, "broker connect")
		return fmt.Errorf("gateway: connect %s: %w", g.config.BrokerURL, err)
	}
	return nil
}

// Close disconnects from the broker.
func (g *Gateway) Close() {
	g.client.Disconnect(disconnectQuiesce)
	g.setState(StateDisconnected, "closed")
}

// Publish serializes the snapshot and sends it on the publish topic at the
// configured QoS. It blocks until the transport acknowledges or fails and
// returns the transport outcome; a send is never silently dropped.
//
// Publish satisfies coalesce.Publisher.
func (g *Gateway) Publish(state map[string]any) error {
	payload, err := wire.Encode(state)
	if err != nil {
		return fmt.Errorf("gateway: encode snapshot: %w", err)
	}

	token := g.client.Publish(g.config.PublishTopic, g.config.QoS, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		g.setState(StateErrored, "publish failed")
		g.logError(err, "publish "+g.config.PublishTopic)
		return fmt.Errorf("gateway: publish %s: %w", g.config.PublishTopic, err)
	}

	g.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  g.config.ClientID,
		Direction: log.DirectionOut,
		Category:  log.CategoryPublish,
		Topic:     g.config.PublishTopic,
		State:     state,
	})
	return nil
}

// HandleMessage processes an inbound message. Messages on topics other than
// the subscribed one are ignored. A malformed payload is logged and returned
// as an error to the caller; it never reaches the coalescer or its callback
// queue. Well-formed state mappings are forwarded to the reconciliation hook.
func (g *Gateway) HandleMessage(topic string, payload []byte) error {
	g.mu.RLock()
	hook := g.reconcile
	g.mu.RUnlock()

	if topic != g.config.SubscribeTopic {
		return nil
	}

	state, err := wire.Decode(payload)
	if err != nil {
		g.logError(err, "remote message decode")
		return fmt.Errorf("gateway: remote message on %s: %w", topic, err)
	}

	g.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  g.config.ClientID,
		Direction: log.DirectionIn,
		Category:  log.CategoryRemote,
		Topic:     topic,
		State:     state,
	})

	if hook != nil {
		hook(state)
	}
	return nil
}

// OnRemoteState sets the host reconciliation hook.
func (g *Gateway) OnRemoteState(hook ReconcileFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reconcile = hook
}

// OnStateChange sets the callback for connection state transitions.
func (g *Gateway) OnStateChange(fn func(oldState, newState State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStateChange = fn
}

// State returns the current connection state.
func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// ClientID returns the MQTT client identifier in use.
func (g *Gateway) ClientID() string {
	return g.config.ClientID
}

// handleConnect runs when the broker acknowledges the connection, both on
// the initial connect and after an automatic reconnect.
func (g *Gateway) handleConnect(mqtt.Client) {
	g.setState(StateConnected, "broker acknowledged")
	g.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  g.config.ClientID,
		Direction: log.DirectionOut,
		Category:  log.CategoryConnect,
	})
	g.subscribe()
}

// subscribe establishes the remote-state subscription. On failure the
// gateway stays CONNECTED and operates publish-only.
func (g *Gateway) subscribe() {
	topic := g.config.SubscribeTopic
	if topic == "" {
		return
	}

	token := g.client.Subscribe(topic, g.config.QoS, g.route)
	token.Wait()
	if err := token.Error(); err != nil {
		g.logError(err, "subscribe "+topic)
		return
	}

	g.setState(StateSubscribed, "subscribe acknowledged")
	g.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  g.config.ClientID,
		Direction: log.DirectionOut,
		Category:  log.CategorySubscribe,
		Topic:     topic,
	})
}

// route is the paho message handler for the subscribed topic.
func (g *Gateway) route(_ mqtt.Client, msg mqtt.Message) {
	// HandleMessage logs decode failures; nothing more to do here.
	_ = g.HandleMessage(msg.Topic(), msg.Payload())
}

func (g *Gateway) handleConnectionLost(_ mqtt.Client, err error) {
	g.setState(StateErrored, "connection lost")
	g.logError(err, "connection lost")
}

func (g *Gateway) handleReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	g.setState(StateConnecting, "reconnecting")
}

// setState transitions the connection state machine and notifies observers.
func (g *Gateway) setState(newState State, reason string) {
	g.mu.Lock()
	oldState := g.state
	if oldState == newState {
		g.mu.Unlock()
		return
	}
	g.state = newState
	fn := g.onStateChange
	g.mu.Unlock()

	g.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  g.config.ClientID,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	if fn != nil {
		fn(oldState, newState)
	}
}

func (g *Gateway) logError(err error, context string) {
	g.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  g.config.ClientID,
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Message: err.Error(), Context: context},
	})
}

// Compile-time interface satisfaction check.
var _ coalesce.Publisher = (*Gateway)(nil)
