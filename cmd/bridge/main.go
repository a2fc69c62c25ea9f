// Command bridge runs the MQTT state bridge daemon.
//
// The daemon keeps a local state snapshot synchronized with a remote peer
// over an MQTT broker: local mutations are coalesced and published on the
// configured publish topic, remote state arriving on the subscribe topic is
// reconciled into the local snapshot.
//
// Usage:
//
//	bridge [flags]
//
// Flags:
//
//	-config string       Configuration file path (YAML)
//	-broker string       Broker URL (default "tcp://localhost:1883")
//	-client-id string    MQTT client ID (auto-generated if empty)
//	-publish string      Publish topic for local snapshots
//	-subscribe string    Subscribe topic for remote state
//	-quiet duration      Coalescing quiet period (default 20ms)
//	-discover            Discover the broker via mDNS when no URL is set
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-log-file string     CBOR event capture file (disabled if empty)
//
// Examples:
//
//	# Connect to a local broker with defaults
//	bridge
//
//	# Use a config file and capture events
//	bridge -config /etc/bridge/bridge.yaml -log-file /var/log/bridge.cbor
//
//	# Find the broker on the local network
//	bridge -discover -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imaustink/homebridge-mqtt-base/pkg/bridge"
	"github.com/imaustink/homebridge-mqtt-base/pkg/config"
	"github.com/imaustink/homebridge-mqtt-base/pkg/discovery"
	"github.com/imaustink/homebridge-mqtt-base/pkg/gateway"
	"github.com/imaustink/homebridge-mqtt-base/pkg/log"
)

var flags struct {
	ConfigFile  string
	BrokerURL   string
	ClientID    string
	Publish     string
	Subscribe   string
	QuietPeriod time.Duration
	Discover    bool
	LogLevel    string
	LogFile     string
}

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.BrokerURL, "broker", "", "Broker URL")
	flag.StringVar(&flags.ClientID, "client-id", "", "MQTT client ID (auto-generated if empty)")
	flag.StringVar(&flags.Publish, "publish", "", "Publish topic for local snapshots")
	flag.StringVar(&flags.Subscribe, "subscribe", "", "Subscribe topic for remote state")
	flag.DurationVar(&flags.QuietPeriod, "quiet", 0, "Coalescing quiet period")
	flag.BoolVar(&flags.Discover, "discover", false, "Discover the broker via mDNS when no URL is set")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.LogFile, "log-file", "", "CBOR event capture file")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	protocolLogger, closeLog, err := setupEventLog(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Broker.URL == "" && cfg.Discovery.Enabled {
		svc, err := discovery.FindBroker(ctx, discovery.Config{
			Timeout: cfg.Discovery.Timeout.Std(),
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.Broker.URL = svc.URL()
		logger.Info("discovered broker", "instance", svc.InstanceName, "url", cfg.Broker.URL)
	}

	gw := gateway.New(cfg.GatewayConfig(), gateway.WithLogger(protocolLogger))
	b := bridge.New(gw,
		bridge.WithLogger(protocolLogger),
		bridge.WithQuietPeriod(cfg.QuietPeriod.Std()),
	)

	// Remote state is reconciled into the local snapshot: the remote peer
	// is authoritative for state it reports.
	b.OnRemoteState(func(state map[string]any) {
		logger.Info("remote state received", "state", state)
		merged := b.Snapshot()
		for k, v := range state {
			merged[k] = v
		}
		b.Reconcile(merged)
	})

	logger.Info("starting bridge",
		"broker", cfg.Broker.URL,
		"publish_topic", cfg.Topics.Publish,
		"subscribe_topic", cfg.Topics.Subscribe,
		"quiet_period", cfg.QuietPeriod.Std(),
	)

	if err := b.Start(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	b.Stop()
}

// loadConfig merges the config file (if any) with command-line overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if flags.ConfigFile != "" {
		cfg, err = config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if flags.BrokerURL != "" {
		cfg.Broker.URL = flags.BrokerURL
	}
	if flags.ClientID != "" {
		cfg.Broker.ClientID = flags.ClientID
	}
	if flags.Publish != "" {
		cfg.Topics.Publish = flags.Publish
	}
	if flags.Subscribe != "" {
		cfg.Topics.Subscribe = flags.Subscribe
	}
	if flags.QuietPeriod > 0 {
		cfg.QuietPeriod = config.Duration(flags.QuietPeriod)
	}
	if flags.Discover {
		cfg.Discovery.Enabled = true
		cfg.Broker.URL = flags.BrokerURL // discovery only fills an empty URL
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.Log.File = flags.LogFile
	}

	return cfg, cfg.Validate()
}

// setupLogging configures the console slog logger.
func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// setupEventLog builds the bridge event logger: console always, CBOR file
// capture when configured.
func setupEventLog(cfg *config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	console := log.NewSlogAdapter(logger)
	if cfg.Log.File == "" {
		return console, func() {}, nil
	}

	file, err := log.NewFileLogger(cfg.Log.File)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log %s: %w", cfg.Log.File, err)
	}
	return log.NewMultiLogger(console, file), func() { _ = file.Close() }, nil
}
