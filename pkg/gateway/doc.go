// Package gateway provides the MQTT adapter for the bridge.
//
// The Gateway is a thin layer over an MQTT client. Outbound, it serializes a
// coalesced state snapshot to the wire format and publishes it on the
// configured topic, reporting the transport outcome to the caller (it
// satisfies coalesce.Publisher). Inbound, it filters messages to the
// subscribed topic, decodes them and forwards the state mapping to a
// host-provided reconciliation hook.
//
// # Connection states
//
// The gateway tracks the broker connection through a small state machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> SUBSCRIBED
//
// Any state may transition to ERRORED on a transport error. ERRORED is not
// terminal: the MQTT client's automatic reconnection re-enters CONNECTING
// and, on success, CONNECTED. Reconnect timing and backoff belong to the
// MQTT client, not to this package.
//
// A failed subscription leaves the gateway in CONNECTED: publishing keeps
// working, remote state updates simply never arrive.
package gateway
