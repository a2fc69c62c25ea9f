// Command bridgectl is an interactive shell for driving a state bridge.
//
// It connects to a broker, then accepts commands to mutate the local state
// snapshot and observe how mutations are coalesced, published and resolved.
//
// Usage:
//
//	bridgectl [flags]
//
// Flags:
//
//	-broker string      Broker URL (default "tcp://localhost:1883")
//	-client-id string   MQTT client ID (auto-generated if empty)
//	-publish string     Publish topic for local snapshots
//	-subscribe string   Subscribe topic for remote state
//	-quiet duration     Coalescing quiet period (default 20ms)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/imaustink/homebridge-mqtt-base/cmd/bridgectl/interactive"
	"github.com/imaustink/homebridge-mqtt-base/pkg/bridge"
	"github.com/imaustink/homebridge-mqtt-base/pkg/coalesce"
	"github.com/imaustink/homebridge-mqtt-base/pkg/config"
	"github.com/imaustink/homebridge-mqtt-base/pkg/gateway"
)

var flags struct {
	BrokerURL   string
	ClientID    string
	Publish     string
	Subscribe   string
	QuietPeriod time.Duration
}

func init() {
	flag.StringVar(&flags.BrokerURL, "broker", gateway.DefaultBrokerURL, "Broker URL")
	flag.StringVar(&flags.ClientID, "client-id", "", "MQTT client ID (auto-generated if empty)")
	flag.StringVar(&flags.Publish, "publish", config.DefaultPublishTopic, "Publish topic for local snapshots")
	flag.StringVar(&flags.Subscribe, "subscribe", config.DefaultSubscribeTopic, "Subscribe topic for remote state")
	flag.DurationVar(&flags.QuietPeriod, "quiet", coalesce.DefaultQuietPeriod, "Coalescing quiet period")
}

func main() {
	flag.Parse()

	gw := gateway.New(gateway.Config{
		BrokerURL:      flags.BrokerURL,
		ClientID:       flags.ClientID,
		PublishTopic:   flags.Publish,
		SubscribeTopic: flags.Subscribe,
		QoS:            gateway.DefaultQoS,
	})
	b := bridge.New(gw, bridge.WithQuietPeriod(flags.QuietPeriod))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shell, err := interactive.New(b)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Show remote reconciliations without corrupting the prompt.
	b.OnRemoteState(func(state map[string]any) {
		fmt.Fprintf(shell.Stdout(), "remote state: %v\n", state)
		merged := b.Snapshot()
		for k, v := range state {
			merged[k] = v
		}
		b.Reconcile(merged)
	})

	if err := b.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer b.Stop()

	shell.Run(ctx, cancel)
}
