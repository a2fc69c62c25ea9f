package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceTypeMQTT is the standard mDNS service type for MQTT brokers.
	ServiceTypeMQTT = "_mqtt._tcp"

	// Domain is the mDNS domain to browse.
	Domain = "local."

	// DefaultTimeout bounds a broker browse.
	DefaultTimeout = 5 * time.Second
)

// ErrNoBroker is returned when no broker was found within the timeout.
var ErrNoBroker = errors.New("discovery: no MQTT broker found")

// BrokerService describes a discovered MQTT broker.
type BrokerService struct {
	// InstanceName is the advertised service instance name.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Port is the broker port.
	Port uint16

	// Addresses are the resolved IP addresses.
	Addresses []string
}

// URL returns a broker URL suitable for the gateway, preferring a resolved
// address over the mDNS hostname.
func (s *BrokerService) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return fmt.Sprintf("tcp://%s", net.JoinHostPort(host, fmt.Sprintf("%d", s.Port)))
}

// Config configures broker discovery.
type Config struct {
	// Timeout bounds the browse. Zero means DefaultTimeout.
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// FindBroker browses for MQTT brokers and returns the first one found.
// It returns ErrNoBroker when the timeout elapses without a result.
func FindBroker(ctx context.Context, config Config) (*BrokerService, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	found := make(chan *BrokerService, 1)

	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToBroker(entry)
				if svc == nil {
					continue
				}
				select {
				case found <- svc:
				default:
				}
			case <-removed:
				// A disappearing broker is irrelevant to a one-shot find.
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceTypeMQTT, Domain, entries, removed, browserOptions(config)...)
	}()

	select {
	case svc := <-found:
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNoBroker
	}
}

// browserOptions returns zeroconf client options based on config.
func browserOptions(config Config) []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if config.Interface != "" {
		iface, err := net.InterfaceByName(config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToBroker converts a zeroconf entry to a BrokerService.
func entryToBroker(entry *zeroconf.ServiceEntry) *BrokerService {
	if entry.Port == 0 {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &BrokerService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    addrs,
	}
}
