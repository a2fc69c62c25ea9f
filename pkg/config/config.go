// Package config loads and validates the bridge configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imaustink/homebridge-mqtt-base/pkg/coalesce"
	"github.com/imaustink/homebridge-mqtt-base/pkg/gateway"
)

// Default topic names.
const (
	DefaultPublishTopic   = "homebridge/state"
	DefaultSubscribeTopic = "homebridge/remote"
)

// DefaultDiscoveryTimeout bounds mDNS broker discovery.
const DefaultDiscoveryTimeout = 5 * time.Second

// Duration is a time.Duration that unmarshals from YAML strings like "20ms".
type Duration time.Duration

// UnmarshalYAML decodes a duration string via time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"20ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root bridge configuration.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Topics    TopicsConfig    `yaml:"topics"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`

	// QuietPeriod is the coalescing delay between the last state mutation
	// and the flush to the broker.
	QuietPeriod Duration `yaml:"quiet_period"`
}

// BrokerConfig configures the MQTT connection.
type BrokerConfig struct {
	// URL is the broker address, e.g. "tcp://localhost:1883". May be left
	// empty when discovery is enabled.
	URL string `yaml:"url"`

	// ClientID identifies this client to the broker. Auto-generated if empty.
	ClientID string `yaml:"client_id"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// QoS is the delivery guarantee (0-2). Nil selects the default (2).
	QoS *byte `yaml:"qos"`
}

// TopicsConfig names the two bridge topics.
type TopicsConfig struct {
	// Publish carries local snapshots to the remote peer.
	Publish string `yaml:"publish"`

	// Subscribe carries remote state back to this bridge.
	Subscribe string `yaml:"subscribe"`
}

// DiscoveryConfig configures mDNS broker discovery.
type DiscoveryConfig struct {
	// Enabled turns on broker discovery when no URL is configured.
	Enabled bool `yaml:"enabled"`

	// Timeout bounds the discovery browse.
	Timeout Duration `yaml:"timeout"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the console log level: debug, info, warn or error.
	Level string `yaml:"level"`

	// File, when set, enables CBOR event capture to this path.
	File string `yaml:"file"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML configuration file, applies defaults and validates.
// Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document is a valid all-defaults configuration.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.URL == "" && !c.Discovery.Enabled {
		c.Broker.URL = gateway.DefaultBrokerURL
	}
	if c.Broker.QoS == nil {
		qos := gateway.DefaultQoS
		c.Broker.QoS = &qos
	}
	if c.Topics.Publish == "" {
		c.Topics.Publish = DefaultPublishTopic
	}
	if c.Topics.Subscribe == "" {
		c.Topics.Subscribe = DefaultSubscribeTopic
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = Duration(coalesce.DefaultQuietPeriod)
	}
	if c.Discovery.Timeout <= 0 {
		c.Discovery.Timeout = Duration(DefaultDiscoveryTimeout)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if *c.Broker.QoS > 2 {
		return fmt.Errorf("config: qos %d out of range (0-2)", *c.Broker.QoS)
	}
	if c.Topics.Publish == c.Topics.Subscribe {
		return fmt.Errorf("config: publish and subscribe topics must differ (%q)", c.Topics.Publish)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// GatewayConfig converts the broker/topic settings into a gateway.Config.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		BrokerURL:      c.Broker.URL,
		ClientID:       c.Broker.ClientID,
		Username:       c.Broker.Username,
		Password:       c.Broker.Password,
		PublishTopic:   c.Topics.Publish,
		SubscribeTopic: c.Topics.Subscribe,
		QoS:            *c.Broker.QoS,
	}
}
