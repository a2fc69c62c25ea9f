// Package mqtttest provides a fake MQTT client for gateway and bridge tests.
// The fake completes every operation immediately and records publishes so
// tests can assert on topics, QoS and payloads without a broker.
package mqtttest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Token is an already-completed mqtt.Token carrying a fixed outcome.
type Token struct {
	err  error
	done chan struct{}
}

// NewToken returns a completed token with the given outcome.
func NewToken(err error) *Token {
	t := &Token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Done() <-chan struct{}          { return t.done }
func (t *Token) Error() error                   { return t.err }

// PublishRecord captures one Publish call.
type PublishRecord struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client is a fake mqtt.Client. Set the *Err fields before use to make the
// corresponding operations fail.
type Client struct {
	mu sync.Mutex

	ConnectErr   error
	PublishErr   error
	SubscribeErr error

	connected     bool
	publishes     []PublishRecord
	subscriptions map[string]mqtt.MessageHandler
}

// NewClient creates a fake client.
func NewClient() *Client {
	return &Client{subscriptions: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr == nil {
		c.connected = true
	}
	return NewToken(c.ConnectErr)
}

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	c.publishes = append(c.publishes, PublishRecord{
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  data,
	})
	return NewToken(c.PublishErr)
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr == nil {
		c.subscriptions[topic] = callback
	}
	return NewToken(c.SubscribeErr)
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr == nil {
		for topic := range filters {
			c.subscriptions[topic] = callback
		}
	}
	return NewToken(c.SubscribeErr)
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
	}
	return NewToken(nil)
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = callback
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Publishes returns a copy of the recorded Publish calls.
func (c *Client) Publishes() []PublishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PublishRecord, len(c.publishes))
	copy(out, c.publishes)
	return out
}

// Subscribed reports whether a handler is registered for the topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// Deliver invokes the handler subscribed to the topic, simulating an
// inbound broker message. It is a no-op when nothing is subscribed.
func (c *Client) Deliver(topic string, payload []byte) {
	c.mu.Lock()
	handler := c.subscriptions[topic]
	c.mu.Unlock()

	if handler != nil {
		handler(c, &message{topic: topic, payload: payload})
	}
}

// message is a fake mqtt.Message.
type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 2 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

// Compile-time interface satisfaction checks.
var (
	_ mqtt.Client  = (*Client)(nil)
	_ mqtt.Token   = (*Token)(nil)
	_ mqtt.Message = (*message)(nil)
)
